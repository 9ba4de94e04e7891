// internal/domain/coupon/service.go
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store abstracts coupon persistence so validation can be tested without a database
type Store interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountUserUsage(ctx context.Context, userID uint, code string) (int64, error)
	HasUsageForSession(ctx context.Context, code, sessionID string) (bool, error)
	// CreateUsage inserts the usage record and atomically increments the
	// coupon's used_count in one transaction.
	CreateUsage(ctx context.Context, usage *UsageRecord) error
}

// ValidationResult is the outcome of validating a coupon against a cart.
// Business failures are reported through Valid/Message, never as errors.
type ValidationResult struct {
	Valid          bool   `json:"valid"`
	Code           string `json:"code"`
	DiscountCents  int64  `json:"discount_cents"`
	StripeCouponID string `json:"-"`
	Message        string `json:"message"`
}

// CartContext carries the items the coupon is being applied to
type CartContext struct {
	ExamIDs    []uint
	Categories []string
}

// Validator validates discount codes and records their usage.
// Validation is a pure read; usage recording happens separately after
// payment succeeds so an abandoned cart never consumes a one-time code.
type Validator struct {
	store Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewValidator creates a new coupon validator
func NewValidator(store Store, log *logrus.Logger) *Validator {
	return &Validator{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

func invalid(code, message string) *ValidationResult {
	return &ValidationResult{Valid: false, Code: code, Message: message}
}

// Validate checks a coupon code against the cart subtotal and the requesting
// user. The checks short-circuit on first failure, in a fixed order:
// exists, active, validity window, minimum purchase, global limit, per-user
// limit, item/category restrictions. The computed discount must satisfy
// 0 <= discount < subtotal; a discount equal to the subtotal is rejected so a
// coupon can never produce a zero-value payment session.
func (v *Validator) Validate(ctx context.Context, code string, subtotalCents int64, userID *uint, cart CartContext) (*ValidationResult, error) {
	if code == "" {
		return invalid(code, "Coupon code is required"), nil
	}
	if subtotalCents <= 0 {
		return invalid(code, "Cart is empty"), nil
	}

	c, err := v.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid(code, "Invalid coupon code"), nil
		}
		return nil, fmt.Errorf("failed to look up coupon: %w", err)
	}

	if !c.IsActive {
		return invalid(code, "This coupon is no longer active"), nil
	}

	now := v.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return invalid(code, "This coupon is not valid yet"), nil
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return invalid(code, "This coupon has expired"), nil
	}

	if subtotalCents < c.MinPurchaseCents {
		return invalid(code, fmt.Sprintf("Minimum purchase of %.2f required", float64(c.MinPurchaseCents)/100)), nil
	}

	if !c.HasGlobalCapacity() {
		return invalid(code, "This coupon has reached its usage limit"), nil
	}

	if userID != nil && c.PerUserLimit > 0 {
		used, err := v.store.CountUserUsage(ctx, *userID, c.Code)
		if err != nil {
			return nil, fmt.Errorf("failed to count coupon usage: %w", err)
		}
		if used >= int64(c.PerUserLimit) {
			return invalid(code, "You have already used this coupon"), nil
		}
	}

	if msg := checkRestrictions(c, cart); msg != "" {
		return invalid(code, msg), nil
	}

	discount := computeDiscount(c, subtotalCents)
	if discount <= 0 {
		return invalid(code, "This coupon does not apply to your cart"), nil
	}
	if discount >= subtotalCents {
		// A coupon may never zero out or exceed the order.
		return invalid(code, "This coupon cannot cover the full order amount"), nil
	}

	return &ValidationResult{
		Valid:          true,
		Code:           c.Code,
		DiscountCents:  discount,
		StripeCouponID: c.StripeCouponID,
		Message:        fmt.Sprintf("Coupon applied! You saved %.2f", float64(discount)/100),
	}, nil
}

// RecordUsage persists a redemption after payment has been confirmed.
// It is idempotent per session: re-running verification for the same checkout
// session does not consume the coupon twice.
func (v *Validator) RecordUsage(ctx context.Context, userID uint, code, sessionID string) error {
	exists, err := v.store.HasUsageForSession(ctx, code, sessionID)
	if err != nil {
		return fmt.Errorf("failed to check coupon usage: %w", err)
	}
	if exists {
		v.log.WithFields(logrus.Fields{
			"coupon_code": code,
			"session_id":  sessionID,
		}).Debug("Coupon usage already recorded for session")
		return nil
	}

	usage := &UsageRecord{
		UserID:     userID,
		CouponCode: code,
		SessionID:  sessionID,
		UsedAt:     v.now().UTC(),
	}
	if err := v.store.CreateUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}

	v.log.WithFields(logrus.Fields{
		"coupon_code": code,
		"user_id":     userID,
		"session_id":  sessionID,
	}).Info("Coupon usage recorded")
	return nil
}

func checkRestrictions(c *Coupon, cart CartContext) string {
	excluded := c.ExcludedExamIDList()
	if len(excluded) > 0 {
		for _, examID := range cart.ExamIDs {
			for _, ex := range excluded {
				if examID == ex {
					return "This coupon cannot be used with one of the items in your cart"
				}
			}
		}
	}

	allowed := c.AllowedCategoryList()
	if len(allowed) > 0 {
		for _, category := range cart.Categories {
			if !containsString(allowed, category) {
				return "This coupon is not valid for one of the items in your cart"
			}
		}
	}

	return ""
}

func computeDiscount(c *Coupon, subtotalCents int64) int64 {
	switch c.Kind {
	case KindPercentage:
		discount := subtotalCents * c.Value / 100
		if c.MaxDiscountCents > 0 && discount > c.MaxDiscountCents {
			discount = c.MaxDiscountCents
		}
		return discount
	case KindFixed:
		if c.Value > subtotalCents {
			return subtotalCents
		}
		return c.Value
	default:
		return 0
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
