package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type mockStore struct {
	findByCodeFn         func(ctx context.Context, code string) (*Coupon, error)
	countUserUsageFn     func(ctx context.Context, userID uint, code string) (int64, error)
	hasUsageForSessionFn func(ctx context.Context, code, sessionID string) (bool, error)
	createUsageFn        func(ctx context.Context, usage *UsageRecord) error
}

func (m *mockStore) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	if m.findByCodeFn != nil {
		return m.findByCodeFn(ctx, code)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStore) CountUserUsage(ctx context.Context, userID uint, code string) (int64, error) {
	if m.countUserUsageFn != nil {
		return m.countUserUsageFn(ctx, userID, code)
	}
	return 0, nil
}

func (m *mockStore) HasUsageForSession(ctx context.Context, code, sessionID string) (bool, error) {
	if m.hasUsageForSessionFn != nil {
		return m.hasUsageForSessionFn(ctx, code, sessionID)
	}
	return false, nil
}

func (m *mockStore) CreateUsage(ctx context.Context, usage *UsageRecord) error {
	if m.createUsageFn != nil {
		return m.createUsageFn(ctx, usage)
	}
	return nil
}

func testValidator(store Store) *Validator {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewValidator(store, log)
}

func storeWith(c *Coupon) *mockStore {
	return &mockStore{
		findByCodeFn: func(ctx context.Context, code string) (*Coupon, error) {
			if c != nil && code == c.Code {
				return c, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
	}
}

func uintPtr(v uint) *uint { return &v }

func TestValidate_UnknownCode(t *testing.T) {
	v := testValidator(storeWith(nil))

	result, err := v.Validate(context.Background(), "NOPE", 10000, uintPtr(1), CartContext{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid result for unknown code")
	}
	if result.Message != "Invalid coupon code" {
		t.Fatalf("unexpected message: %s", result.Message)
	}
}

func TestValidate_Inactive(t *testing.T) {
	v := testValidator(storeWith(&Coupon{Code: "SAVE10", Kind: KindPercentage, Value: 10, IsActive: false}))

	result, err := v.Validate(context.Background(), "SAVE10", 10000, uintPtr(1), CartContext{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Valid {
		t.Fatal("expected inactive coupon to be rejected")
	}
}

func TestValidate_ValidityWindow(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	moreRecent := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	cases := []struct {
		name       string
		validFrom  *time.Time
		validUntil *time.Time
		wantValid  bool
	}{
		{"within window", &past, &future, true},
		{"not started", &future, nil, false},
		{"expired", &past, &moreRecent, false},
		{"no window", nil, nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := testValidator(storeWith(&Coupon{
				Code:       "WINDOW",
				Kind:       KindPercentage,
				Value:      10,
				IsActive:   true,
				ValidFrom:  tc.validFrom,
				ValidUntil: tc.validUntil,
			}))

			result, err := v.Validate(context.Background(), "WINDOW", 10000, uintPtr(1), CartContext{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result.Valid != tc.wantValid {
				t.Fatalf("expected valid=%v, got valid=%v (%s)", tc.wantValid, result.Valid, result.Message)
			}
		})
	}
}

func TestValidate_MinPurchase(t *testing.T) {
	v := testValidator(storeWith(&Coupon{
		Code:             "MIN20",
		Kind:             KindFixed,
		Value:            500,
		MinPurchaseCents: 2000,
		IsActive:         true,
	}))

	result, _ := v.Validate(context.Background(), "MIN20", 1999, uintPtr(1), CartContext{})
	if result.Valid {
		t.Fatal("expected rejection below minimum purchase")
	}

	result, _ = v.Validate(context.Background(), "MIN20", 2000, uintPtr(1), CartContext{})
	if !result.Valid {
		t.Fatalf("expected acceptance at minimum purchase: %s", result.Message)
	}
}

func TestValidate_GlobalLimitExhausted(t *testing.T) {
	v := testValidator(storeWith(&Coupon{
		Code:             "LIMITED",
		Kind:             KindPercentage,
		Value:            10,
		GlobalUsageLimit: 5,
		UsedCount:        5,
		IsActive:         true,
	}))

	result, _ := v.Validate(context.Background(), "LIMITED", 10000, uintPtr(1), CartContext{})
	if result.Valid {
		t.Fatal("expected rejection when global limit exhausted")
	}
}

func TestValidate_PerUserLimit(t *testing.T) {
	store := storeWith(&Coupon{
		Code:         "ONCE",
		Kind:         KindFixed,
		Value:        1000,
		PerUserLimit: 1,
		IsActive:     true,
	})
	store.countUserUsageFn = func(ctx context.Context, userID uint, code string) (int64, error) {
		if userID == 1 {
			return 1, nil
		}
		return 0, nil
	}
	v := testValidator(store)

	// User 1 already redeemed once
	result, _ := v.Validate(context.Background(), "ONCE", 10000, uintPtr(1), CartContext{})
	if result.Valid {
		t.Fatal("expected rejection for user over per-user limit")
	}
	if result.Message != "You have already used this coupon" {
		t.Fatalf("unexpected message: %s", result.Message)
	}

	// A different user can still redeem
	result, _ = v.Validate(context.Background(), "ONCE", 10000, uintPtr(2), CartContext{})
	if !result.Valid {
		t.Fatalf("expected different user to redeem: %s", result.Message)
	}
}

func TestValidate_PercentageDiscount(t *testing.T) {
	v := testValidator(storeWith(&Coupon{
		Code:     "PCT10",
		Kind:     KindPercentage,
		Value:    10,
		IsActive: true,
	}))

	result, _ := v.Validate(context.Background(), "PCT10", 10000, uintPtr(1), CartContext{})
	if !result.Valid {
		t.Fatalf("expected valid result: %s", result.Message)
	}
	if result.DiscountCents != 1000 {
		t.Fatalf("expected discount 1000, got %d", result.DiscountCents)
	}
}

func TestValidate_MaxDiscountClamp(t *testing.T) {
	v := testValidator(storeWith(&Coupon{
		Code:             "PCT50CAP",
		Kind:             KindPercentage,
		Value:            50,
		MaxDiscountCents: 1500,
		IsActive:         true,
	}))

	// 50% of 100.00 would be 50.00; the cap limits it to 15.00
	result, _ := v.Validate(context.Background(), "PCT50CAP", 10000, uintPtr(1), CartContext{})
	if !result.Valid {
		t.Fatalf("expected valid result: %s", result.Message)
	}
	if result.DiscountCents != 1500 {
		t.Fatalf("expected discount clamped to 1500, got %d", result.DiscountCents)
	}

	// Far larger subtotal still never exceeds the cap
	result, _ = v.Validate(context.Background(), "PCT50CAP", 10000000, uintPtr(1), CartContext{})
	if result.DiscountCents != 1500 {
		t.Fatalf("expected discount clamped to 1500, got %d", result.DiscountCents)
	}
}

func TestValidate_FixedDiscountNeverExceedsSubtotal(t *testing.T) {
	v := testValidator(storeWith(&Coupon{
		Code:     "FLAT20",
		Kind:     KindFixed,
		Value:    2000,
		IsActive: true,
	}))

	result, _ := v.Validate(context.Background(), "FLAT20", 10000, uintPtr(1), CartContext{})
	if !result.Valid {
		t.Fatalf("expected valid result: %s", result.Message)
	}
	if result.DiscountCents != 2000 {
		t.Fatalf("expected discount 2000, got %d", result.DiscountCents)
	}
}

func TestValidate_DiscountEqualToSubtotalRejected(t *testing.T) {
	// A fixed coupon worth exactly the subtotal must be rejected, not
	// clamped: a free order would create a degenerate zero-value session.
	v := testValidator(storeWith(&Coupon{
		Code:     "FLAT100",
		Kind:     KindFixed,
		Value:    10000,
		IsActive: true,
	}))

	result, _ := v.Validate(context.Background(), "FLAT100", 10000, uintPtr(1), CartContext{})
	if result.Valid {
		t.Fatal("expected rejection when discount equals subtotal")
	}

	// Same for a 100% percentage coupon
	v = testValidator(storeWith(&Coupon{
		Code:     "PCT100",
		Kind:     KindPercentage,
		Value:    100,
		IsActive: true,
	}))

	result, _ = v.Validate(context.Background(), "PCT100", 10000, uintPtr(1), CartContext{})
	if result.Valid {
		t.Fatal("expected rejection for 100% coupon")
	}
}

func TestValidate_ExcludedExam(t *testing.T) {
	v := testValidator(storeWith(&Coupon{
		Code:            "NOCLOUD",
		Kind:            KindPercentage,
		Value:           10,
		ExcludedExamIDs: "7,9",
		IsActive:        true,
	}))

	result, _ := v.Validate(context.Background(), "NOCLOUD", 10000, uintPtr(1), CartContext{ExamIDs: []uint{3, 9}})
	if result.Valid {
		t.Fatal("expected rejection for excluded exam in cart")
	}

	result, _ = v.Validate(context.Background(), "NOCLOUD", 10000, uintPtr(1), CartContext{ExamIDs: []uint{3, 4}})
	if !result.Valid {
		t.Fatalf("expected acceptance without excluded exams: %s", result.Message)
	}
}

func TestValidate_AllowedCategories(t *testing.T) {
	v := testValidator(storeWith(&Coupon{
		Code:              "SECONLY",
		Kind:              KindPercentage,
		Value:             10,
		AllowedCategories: "security",
		IsActive:          true,
	}))

	result, _ := v.Validate(context.Background(), "SECONLY", 10000, uintPtr(1), CartContext{Categories: []string{"security", "cloud"}})
	if result.Valid {
		t.Fatal("expected rejection when cart contains a non-allowed category")
	}

	result, _ = v.Validate(context.Background(), "SECONLY", 10000, uintPtr(1), CartContext{Categories: []string{"security"}})
	if !result.Valid {
		t.Fatalf("expected acceptance for allowed category: %s", result.Message)
	}
}

func TestRecordUsage_IdempotentPerSession(t *testing.T) {
	created := 0
	store := &mockStore{
		hasUsageForSessionFn: func(ctx context.Context, code, sessionID string) (bool, error) {
			return created > 0, nil
		},
		createUsageFn: func(ctx context.Context, usage *UsageRecord) error {
			created++
			return nil
		},
	}
	v := testValidator(store)

	if err := v.RecordUsage(context.Background(), 1, "ONCE", "cs_test_123"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := v.RecordUsage(context.Background(), 1, "ONCE", "cs_test_123"); err != nil {
		t.Fatalf("expected no error on redundant call, got %v", err)
	}
	if created != 1 {
		t.Fatalf("expected exactly 1 usage record, got %d", created)
	}
}
