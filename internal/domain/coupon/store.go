// internal/domain/coupon/store.go
package coupon

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a database-backed coupon store
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	var c Coupon
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *gormStore) CountUserUsage(ctx context.Context, userID uint, code string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Where("user_id = ? AND coupon_code = ?", userID, code).
		Count(&count).Error
	return count, err
}

func (s *gormStore) HasUsageForSession(ctx context.Context, code, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Where("coupon_code = ? AND session_id = ?", code, sessionID).
		Count(&count).Error
	return count > 0, err
}

// CreateUsage writes the usage record and bumps the coupon counter together.
// The increment is a plain atomic counter update; it is not re-validated
// against the global limit, so two near-simultaneous redemptions of a nearly
// exhausted coupon can over-redeem by a small margin. Accepted trade-off.
func (s *gormStore) CreateUsage(ctx context.Context, usage *UsageRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(usage).Error; err != nil {
			return fmt.Errorf("failed to create usage record: %w", err)
		}
		if err := tx.Model(&Coupon{}).
			Where("code = ?", usage.CouponCode).
			UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error; err != nil {
			return fmt.Errorf("failed to increment coupon counter: %w", err)
		}
		return nil
	})
}
