// internal/domain/coupon/admin.go
package coupon

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when the requested coupon does not exist
var ErrNotFound = errors.New("coupon not found")

// AdminService handles administrative coupon management
type AdminService struct {
	db *gorm.DB
}

// NewAdminService creates a new coupon admin service
func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

// Create creates a new coupon
func (s *AdminService) Create(c *Coupon) error {
	if c.Code == "" {
		return fmt.Errorf("coupon code is required")
	}
	if c.Kind != KindPercentage && c.Kind != KindFixed {
		return fmt.Errorf("coupon kind must be %q or %q", KindPercentage, KindFixed)
	}
	if c.Value <= 0 {
		return fmt.Errorf("coupon value must be positive")
	}
	if c.Kind == KindPercentage && c.Value > 100 {
		return fmt.Errorf("percentage coupon value cannot exceed 100")
	}
	if c.PerUserLimit <= 0 {
		c.PerUserLimit = 1
	}

	if err := s.db.Create(c).Error; err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// List returns all coupons, newest first
func (s *AdminService) List() ([]Coupon, error) {
	var coupons []Coupon
	if err := s.db.Order("created_at DESC").Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}

// Update applies administrative edits to a coupon. The used_count column is
// owned by usage recording and cannot be edited here.
func (s *AdminService) Update(id uint, updates map[string]interface{}) (*Coupon, error) {
	delete(updates, "used_count")

	var c Coupon
	if err := s.db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	if err := s.db.Model(&c).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update coupon: %w", err)
	}
	return &c, nil
}

// Delete soft-deletes a coupon
func (s *AdminService) Delete(id uint) error {
	result := s.db.Delete(&Coupon{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete coupon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
