// internal/domain/purchase/verifier.go
package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/payment"
)

// VerifyStatus is the client-facing outcome of a verification call
type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyPending VerifyStatus = "pending"
	VerifyFailed  VerifyStatus = "failed"
)

// SessionFetcher retrieves authoritative payment state from the provider
type SessionFetcher interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*payment.ProviderSession, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*payment.ProviderIntent, error)
}

// CouponRecorder persists a coupon redemption after payment success
type CouponRecorder interface {
	RecordUsage(ctx context.Context, userID uint, code, sessionID string) error
}

// VerifyResult is returned to the client polling after checkout redirect
type VerifyResult struct {
	Status       VerifyStatus  `json:"status"`
	SessionID    string        `json:"session_id"`
	TotalCents   int64         `json:"total_cents"`
	Currency     string        `json:"currency"`
	Message      string        `json:"message,omitempty"`
	Entitlements []Entitlement `json:"entitlements,omitempty"`
}

// Verifier answers "did my payment go through?" from the client side. It
// reconciles synchronously on success, so a user whose webhook delivery is
// delayed still gets access before the page finishes loading.
type Verifier struct {
	provider   SessionFetcher
	reconciler *Reconciler
	store      Store
	payments   payment.Store
	coupons    CouponRecorder
	log        *logrus.Logger
}

// NewVerifier creates a new payment verifier
func NewVerifier(provider SessionFetcher, reconciler *Reconciler, store Store, payments payment.Store, coupons CouponRecorder, log *logrus.Logger) *Verifier {
	return &Verifier{
		provider:   provider,
		reconciler: reconciler,
		store:      store,
		payments:   payments,
		coupons:    coupons,
		log:        log,
	}
}

// VerifySession checks a checkout session's payment state with the provider
// and, on success, reconciles the purchase before returning. userID is the
// authenticated caller, used when session metadata lacks one.
func (v *Verifier) VerifySession(ctx context.Context, sessionID string, userID *uint) (*VerifyResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	// Fast path: an earlier webhook or verification call already granted
	// access; no provider round trip needed.
	existing, err := v.store.EntitlementsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &VerifyResult{
			Status:       VerifySuccess,
			SessionID:    sessionID,
			Entitlements: existing,
		}, nil
	}

	ps, err := v.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			return nil, checkout.ErrSessionNotFound
		}
		return nil, err
	}

	switch {
	case ps.PaymentStatus == "paid":
		return v.reconcilePaid(ctx, ps, userID)
	case ps.Status == "expired":
		if err := v.reconciler.sessions.MarkExpired(ctx, sessionID); err != nil {
			v.log.WithField("session_id", sessionID).WithError(err).Warn("Failed to mark session expired")
		}
		return &VerifyResult{
			Status:    VerifyFailed,
			SessionID: sessionID,
			Message:   "Checkout session expired before payment",
		}, nil
	case ps.PaymentIntentStatus == "canceled":
		return &VerifyResult{
			Status:    VerifyFailed,
			SessionID: sessionID,
			Message:   "Payment was canceled",
		}, nil
	default:
		return &VerifyResult{
			Status:    VerifyPending,
			SessionID: sessionID,
			Message:   "Payment has not completed yet",
		}, nil
	}
}

func (v *Verifier) reconcilePaid(ctx context.Context, ps *payment.ProviderSession, userID *uint) (*VerifyResult, error) {
	input := v.reconciler.BuildInput(ctx, ps)
	if input.UserID == nil {
		input.UserID = userID
	}

	entitlements, err := v.reconciler.Reconcile(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile verified payment: %w", err)
	}

	// Coupon usage is recorded here rather than on the webhook path: this is
	// the single place that runs exactly once per user-visible success, and
	// the write itself is idempotent per session.
	if input.CouponCode != "" && input.UserID != nil {
		if err := v.coupons.RecordUsage(ctx, *input.UserID, input.CouponCode, ps.ID); err != nil {
			v.log.WithFields(logrus.Fields{
				"session_id":  ps.ID,
				"coupon_code": input.CouponCode,
			}).WithError(err).Warn("Failed to record coupon usage")
		}
	}

	return &VerifyResult{
		Status:       VerifySuccess,
		SessionID:    ps.ID,
		TotalCents:   ps.AmountTotalCents,
		Currency:     ps.Currency,
		Entitlements: entitlements,
	}, nil
}

// PaymentStatusResult reports the state of a single payment intent
type PaymentStatusResult struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// CheckPaymentStatus reports a payment intent's state, answering from the
// local record when it already holds a terminal status and falling back to
// the provider otherwise.
func (v *Verifier) CheckPaymentStatus(ctx context.Context, paymentIntentID string) (*PaymentStatusResult, error) {
	if rec, err := v.payments.FindByIntentID(ctx, paymentIntentID); err == nil {
		return &PaymentStatusResult{
			PaymentIntentID: rec.PaymentIntentID,
			Status:          string(rec.Status),
			AmountCents:     rec.AmountCents,
			Currency:        rec.Currency,
			ErrorMessage:    rec.ErrorMessage,
		}, nil
	} else if !errors.Is(err, payment.ErrRecordNotFound) {
		return nil, err
	}

	intent, err := v.provider.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}

	result := &PaymentStatusResult{
		PaymentIntentID: intent.ID,
		Status:          intent.Status,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
		ErrorMessage:    intent.ErrorMessage,
	}

	// Mirror terminal states locally so the next poll skips the provider.
	switch intent.Status {
	case "succeeded":
		v.mirrorIntent(ctx, intent, payment.StatusSucceeded)
	case "canceled":
		v.mirrorIntent(ctx, intent, payment.StatusFailed)
	}

	return result, nil
}

func (v *Verifier) mirrorIntent(ctx context.Context, intent *payment.ProviderIntent, status payment.Status) {
	rec := &payment.Record{
		PaymentIntentID: intent.ID,
		AmountCents:     intent.AmountCents,
		Currency:        intent.Currency,
		Status:          status,
		ErrorMessage:    intent.ErrorMessage,
	}
	if err := v.payments.Upsert(ctx, rec); err != nil {
		v.log.WithField("payment_intent_id", intent.ID).WithError(err).Warn("Failed to mirror payment intent")
	}
}

// GetSessionDetail returns the local session mirror with its entitlements,
// for the post-checkout summary page.
func (v *Verifier) GetSessionDetail(ctx context.Context, sessionID string) (*checkout.Session, []Entitlement, error) {
	sess, err := v.reconciler.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ents, err := v.store.EntitlementsBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, ents, nil
}
