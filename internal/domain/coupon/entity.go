// internal/domain/coupon/entity.go
package coupon

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Kind represents the discount kind of a coupon
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// Coupon represents a discount code and its redemption rules
type Coupon struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Kind Kind   `gorm:"not null;size:20" json:"kind"`

	// Value is a percentage (0-100) for percentage coupons and an amount in
	// cents for fixed coupons.
	Value            int64 `gorm:"not null" json:"value"`
	MaxDiscountCents int64 `gorm:"default:0" json:"max_discount_cents"` // 0 = no cap
	MinPurchaseCents int64 `gorm:"default:0" json:"min_purchase_cents"`

	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	GlobalUsageLimit int `gorm:"default:0" json:"global_usage_limit"` // 0 = unlimited
	UsedCount        int `gorm:"default:0" json:"used_count"`
	PerUserLimit     int `gorm:"default:1" json:"per_user_limit"`

	// Comma-separated lists. Empty means no restriction.
	AllowedCategories string `gorm:"size:255" json:"allowed_categories"`
	ExcludedExamIDs   string `gorm:"size:255" json:"excluded_exam_ids"`

	// StripeCouponID is the provider-side coupon reference attached to the
	// checkout session so the hosted payment page shows the discounted total.
	StripeCouponID string `gorm:"size:255" json:"stripe_coupon_id"`

	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// UsageRecord records one successful redemption of a coupon.
// Its existence is the per-user usage counter; one row is written per
// checkout session after payment is confirmed, never at validation time.
type UsageRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index:idx_coupon_usage_user_code" json:"user_id"`
	CouponCode string    `gorm:"not null;size:50;index:idx_coupon_usage_user_code" json:"coupon_code"`
	SessionID  string    `gorm:"not null;size:255;index" json:"session_id"`
	UsedAt     time.Time `json:"used_at"`
}

// TableName overrides
func (Coupon) TableName() string      { return "coupons" }
func (UsageRecord) TableName() string { return "coupon_usage_records" }

// AllowedCategoryList parses the comma-separated category restriction
func (c *Coupon) AllowedCategoryList() []string {
	return splitCSV(c.AllowedCategories)
}

// ExcludedExamIDList parses the comma-separated exam exclusion list
func (c *Coupon) ExcludedExamIDList() []uint {
	var ids []uint
	for _, part := range splitCSV(c.ExcludedExamIDs) {
		if id, err := strconv.ParseUint(part, 10, 32); err == nil {
			ids = append(ids, uint(id))
		}
	}
	return ids
}

// HasGlobalCapacity reports whether the coupon can still be redeemed globally
func (c *Coupon) HasGlobalCapacity() bool {
	return c.GlobalUsageLimit == 0 || c.UsedCount < c.GlobalUsageLimit
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
