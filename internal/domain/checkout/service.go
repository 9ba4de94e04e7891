// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/examprep-backend/internal/config"
	"github.com/your-org/examprep-backend/internal/domain/coupon"
	"github.com/your-org/examprep-backend/internal/domain/exam"
	"github.com/your-org/examprep-backend/internal/domain/payment"
)

// Business errors surfaced to the API layer
var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrExamUnavailable = errors.New("one or more exams are unavailable")
	ErrInvalidCoupon   = errors.New("coupon is not valid for this cart")
)

// Provider creates checkout sessions at the payment provider
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params payment.CreateSessionParams) (*payment.ProviderSession, error)
}

// Catalog resolves exam IDs to priced catalog entries
type Catalog interface {
	GetByIDs(ids []uint) ([]exam.Exam, error)
}

// CouponChecker validates a discount code against a cart
type CouponChecker interface {
	Validate(ctx context.Context, code string, subtotalCents int64, userID *uint, cart coupon.CartContext) (*coupon.ValidationResult, error)
}

// Service aggregates cart items, applies discounts and opens provider
// checkout sessions.
type Service struct {
	store    Store
	provider Provider
	catalog  Catalog
	coupons  CouponChecker
	config   *config.Config
	log      *logrus.Logger
}

// NewService creates a new checkout service
func NewService(store Store, provider Provider, catalog Catalog, coupons CouponChecker, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		catalog:  catalog,
		coupons:  coupons,
		config:   cfg,
		log:      log,
	}
}

// CreateSessionInput is the request to open a checkout session
type CreateSessionInput struct {
	ExamIDs       []uint
	CouponCode    string
	UserID        *uint
	CustomerEmail string
	CustomerName  string
}

// CreateSessionOutput is returned to the client for redirect
type CreateSessionOutput struct {
	SessionID     string `json:"session_id"`
	URL           string `json:"url"`
	SubtotalCents int64  `json:"subtotal_cents"`
	DiscountCents int64  `json:"discount_cents"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
}

// CreateSession prices the cart, applies an optional coupon and opens a
// provider checkout session. The local mirror row is written after the
// provider accepts the session, so a provider failure leaves no state behind.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (*CreateSessionOutput, error) {
	examIDs := dedupeIDs(input.ExamIDs)
	if len(examIDs) == 0 {
		return nil, ErrEmptyCart
	}

	exams, err := s.catalog.GetByIDs(examIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cart items: %w", err)
	}
	if err := checkAvailability(examIDs, exams); err != nil {
		return nil, err
	}

	var subtotal int64
	categories := make([]string, 0, len(exams))
	for _, e := range exams {
		subtotal += e.PriceCents
		categories = append(categories, e.Category)
	}
	if subtotal <= 0 {
		return nil, ErrEmptyCart
	}

	var discount int64
	var stripeCouponID string
	couponCode := strings.TrimSpace(strings.ToUpper(input.CouponCode))
	if couponCode != "" {
		result, err := s.coupons.Validate(ctx, couponCode, subtotal, input.UserID, coupon.CartContext{
			ExamIDs:    examIDs,
			Categories: categories,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to validate coupon: %w", err)
		}
		if !result.Valid {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, result.Message)
		}
		discount = result.DiscountCents
		stripeCouponID = result.StripeCouponID
	}

	total := subtotal - discount
	if total < 0 {
		// Should be unreachable given coupon validation; clamp and flag it
		// rather than sending a negative charge to the provider.
		s.log.WithFields(logrus.Fields{
			"subtotal_cents": subtotal,
			"discount_cents": discount,
			"coupon_code":    couponCode,
		}).Warn("Discount exceeded subtotal, clamping total to zero")
		total = 0
	}

	metadata := map[string]string{
		"exam_ids": joinIDs(examIDs),
	}
	if input.UserID != nil {
		metadata["user_id"] = strconv.FormatUint(uint64(*input.UserID), 10)
	}
	if couponCode != "" {
		metadata["coupon_code"] = couponCode
	}

	items := make([]payment.CheckoutItem, 0, len(exams))
	for _, e := range exams {
		items = append(items, payment.CheckoutItem{
			Name:           e.Title,
			UnitPriceCents: e.PriceCents,
			Quantity:       1,
		})
	}

	providerSession, err := s.provider.CreateCheckoutSession(ctx, payment.CreateSessionParams{
		Items:          items,
		Currency:       s.config.Purchase.Currency,
		CustomerEmail:  input.CustomerEmail,
		SuccessURL:     s.config.App.BaseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      s.config.App.BaseURL + "/checkout/cancel",
		StripeCouponID: stripeCouponID,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider session: %w", err)
	}

	sess := &Session{
		SessionID:     providerSession.ID,
		UserID:        input.UserID,
		CustomerEmail: input.CustomerEmail,
		CustomerName:  input.CustomerName,
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TotalCents:    total,
		Currency:      s.config.Purchase.Currency,
		CouponCode:    couponCode,
		Status:        StatusCreated,
	}
	for _, e := range exams {
		sess.Items = append(sess.Items, LineItem{
			ExamID:         e.ID,
			Name:           e.Title,
			UnitPriceCents: e.PriceCents,
			Quantity:       1,
		})
	}

	if err := s.store.Create(ctx, sess); err != nil {
		// The provider session already exists and carries enough metadata for
		// reconciliation to rebuild the cart, so the client still gets its
		// redirect URL.
		s.log.WithFields(logrus.Fields{
			"session_id": providerSession.ID,
			"error":      err.Error(),
		}).Error("Failed to persist checkout session mirror")
	} else {
		s.log.WithFields(logrus.Fields{
			"session_id":     providerSession.ID,
			"subtotal_cents": subtotal,
			"discount_cents": discount,
			"total_cents":    total,
			"item_count":     len(exams),
		}).Info("Checkout session created")
	}

	return &CreateSessionOutput{
		SessionID:     providerSession.ID,
		URL:           providerSession.URL,
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TotalCents:    total,
		Currency:      s.config.Purchase.Currency,
	}, nil
}

// GetSession returns the local mirror of a checkout session
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return s.store.FindBySessionID(ctx, sessionID)
}

// ListSessions returns a user's checkout sessions, newest first
func (s *Service) ListSessions(ctx context.Context, userID uint) ([]Session, error) {
	return s.store.ListByUser(ctx, userID)
}

// ExpireSession marks a session expired after the provider reports it lapsed
func (s *Service) ExpireSession(ctx context.Context, sessionID string) error {
	return s.store.MarkExpired(ctx, sessionID)
}

// checkAvailability rejects the cart when an exam is missing or inactive.
// Partial carts are never silently pruned; the client must resubmit.
func checkAvailability(requested []uint, exams []exam.Exam) error {
	found := make(map[uint]bool, len(exams))
	for _, e := range exams {
		if !e.IsActive {
			return fmt.Errorf("%w: %s is not available", ErrExamUnavailable, e.Title)
		}
		found[e.ID] = true
	}
	for _, id := range requested {
		if !found[id] {
			return fmt.Errorf("%w: exam %d not found", ErrExamUnavailable, id)
		}
	}
	return nil
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinIDs(ids []uint) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(parts, ",")
}

// ParseExamIDs parses the exam_ids metadata value written at session
// creation. Unparseable fragments are skipped.
func ParseExamIDs(csv string) []uint {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil || v == 0 {
			continue
		}
		ids = append(ids, uint(v))
	}
	return ids
}
