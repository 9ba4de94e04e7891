// internal/domain/exam/service.go
package exam

import (
	"errors"
	"fmt"

	"github.com/your-org/examprep-backend/internal/config"
	"gorm.io/gorm"
)

// ErrNotFound is returned when the requested exam does not exist
var ErrNotFound = errors.New("exam not found")

// Service handles exam catalog business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new exam service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// ListFilter narrows the exam listing
type ListFilter struct {
	Category string
	Vendor   string
	Search   string
	Page     int
	Limit    int
}

// List returns active exams matching the filter
func (s *Service) List(filter ListFilter) ([]Exam, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	query := s.db.Model(&Exam{}).Where("is_active = ?", true)
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Vendor != "" {
		query = query.Where("vendor = ?", filter.Vendor)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count exams: %w", err)
	}

	var exams []Exam
	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("title ASC").Offset(offset).Limit(filter.Limit).Find(&exams).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list exams: %w", err)
	}

	return exams, total, nil
}

// GetBySlug returns a single active exam by its slug
func (s *Service) GetBySlug(slug string) (*Exam, error) {
	var e Exam
	err := s.db.Where("slug = ? AND is_active = ?", slug, true).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return &e, nil
}

// GetByIDs returns the exams for the given IDs, active or not.
// Used by checkout to resolve line item metadata and coupon exclusions.
func (s *Service) GetByIDs(ids []uint) ([]Exam, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var exams []Exam
	if err := s.db.Where("id IN ?", ids).Find(&exams).Error; err != nil {
		return nil, fmt.Errorf("failed to get exams: %w", err)
	}
	return exams, nil
}

// Create creates a new exam (admin)
func (s *Service) Create(e *Exam) error {
	if e.Slug == "" || e.Title == "" {
		return fmt.Errorf("slug and title are required")
	}
	if e.PriceCents < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if err := s.db.Create(e).Error; err != nil {
		return fmt.Errorf("failed to create exam: %w", err)
	}
	return nil
}

// Update updates an existing exam (admin)
func (s *Service) Update(id uint, updates map[string]interface{}) (*Exam, error) {
	var e Exam
	if err := s.db.First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if err := s.db.Model(&e).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update exam: %w", err)
	}
	return &e, nil
}

// Delete soft-deletes an exam (admin)
func (s *Service) Delete(id uint) error {
	result := s.db.Delete(&Exam{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete exam: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
