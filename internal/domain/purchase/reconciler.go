// internal/domain/purchase/reconciler.go
package purchase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/examprep-backend/internal/config"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/payment"
)

// Mailer sends the purchase confirmation. Delivery is best-effort and never
// blocks reconciliation.
type Mailer interface {
	SendPurchaseConfirmation(ctx context.Context, toEmail, sessionID string, examTitles []string, totalCents int64, currency string) error
}

// ReconcileInput carries everything needed to grant access for one confirmed
// payment. It is assembled from the local session mirror when available, or
// from provider session metadata when the mirror row was lost.
type ReconcileInput struct {
	SessionID       string
	UserID          *uint
	CustomerEmail   string
	CustomerName    string
	ExamIDs         []uint
	ExamPrices      map[uint]int64 // unit price per exam, zero when unknown
	ExamTitles      map[uint]string
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	CouponCode      string
}

// Reconciler turns confirmed payments into entitlements. It is invoked from
// both the webhook path and the client verification path; both converge on
// the same idempotent write.
type Reconciler struct {
	store    Store
	sessions checkout.Store
	mailer   Mailer
	config   *config.Config
	log      *logrus.Logger
	now      func() time.Time
}

// NewReconciler creates a new purchase reconciler. mailer may be nil when
// email is disabled.
func NewReconciler(store Store, sessions checkout.Store, mailer Mailer, cfg *config.Config, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		sessions: sessions,
		mailer:   mailer,
		config:   cfg,
		log:      log,
		now:      time.Now,
	}
}

// Reconcile grants entitlements for a confirmed payment. Safe to call any
// number of times for the same session: the first call writes, every later
// call observes the existing rows and returns them.
func (r *Reconciler) Reconcile(ctx context.Context, input ReconcileInput) ([]Entitlement, error) {
	if input.SessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	currency := input.Currency
	if currency == "" {
		currency = r.config.Purchase.Currency
	}

	// Guest payments are recorded for bookkeeping but grant nothing: there is
	// no account to attach an entitlement to.
	if input.UserID == nil {
		r.log.WithFields(logrus.Fields{
			"session_id":     input.SessionID,
			"customer_email": input.CustomerEmail,
		}).Info("Guest payment confirmed, no entitlements to grant")
		completedAt := r.now().UTC()
		rec := &Reconciliation{
			SessionID:   input.SessionID,
			Payment:     r.paymentRecord(input, currency),
			CompletedAt: completedAt,
			Session:     rebuildSession(input, currency, completedAt),
		}
		if err := r.store.ApplyReconciliation(ctx, rec); err != nil && err != ErrAlreadyReconciled {
			return nil, err
		}
		return nil, nil
	}
	userID := *input.UserID

	existing, err := r.store.EntitlementsBySession(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		r.log.WithFields(logrus.Fields{
			"session_id": input.SessionID,
			"user_id":    userID,
			"count":      len(existing),
		}).Debug("Session already reconciled")
		return existing, nil
	}

	now := r.now().UTC()
	expiresAt := now.Add(r.config.Purchase.ValidityWindow)

	entitlements := make([]Entitlement, 0, len(input.ExamIDs))
	for _, examID := range input.ExamIDs {
		if examID == 0 {
			// A stale cart can reference a removed exam; grant the rest and
			// flag the gap instead of failing the whole batch.
			r.log.WithFields(logrus.Fields{
				"session_id": input.SessionID,
				"user_id":    userID,
			}).Warn("Skipping entitlement for unresolvable exam")
			continue
		}
		entitlements = append(entitlements, Entitlement{
			PurchaseID:  uuid.NewString(),
			UserID:      userID,
			ExamID:      examID,
			SessionID:   input.SessionID,
			AmountCents: input.ExamPrices[examID],
			Currency:    currency,
			PurchasedAt: now,
			ExpiresAt:   expiresAt,
		})
	}

	rec := &Reconciliation{
		SessionID:    input.SessionID,
		Entitlements: entitlements,
		Payment:      r.paymentRecord(input, currency),
		CompletedAt:  now,
		Session:      rebuildSession(input, currency, now),
	}

	if err := r.store.ApplyReconciliation(ctx, rec); err != nil {
		if err == ErrAlreadyReconciled {
			return r.store.EntitlementsBySession(ctx, input.SessionID)
		}
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"session_id":   input.SessionID,
		"user_id":      userID,
		"entitlements": len(entitlements),
		"expires_at":   expiresAt,
	}).Info("Purchase reconciled")

	r.sendConfirmation(ctx, input, currency)

	return entitlements, nil
}

// rebuildSession assembles the completed session row written when the local
// mirror is missing, so purchase history and receipts survive a lost
// creation-time write. The store only inserts it when no row exists.
func rebuildSession(input ReconcileInput, currency string, completedAt time.Time) *checkout.Session {
	sess := &checkout.Session{
		SessionID:     input.SessionID,
		UserID:        input.UserID,
		CustomerEmail: input.CustomerEmail,
		CustomerName:  input.CustomerName,
		TotalCents:    input.AmountCents,
		Currency:      currency,
		CouponCode:    input.CouponCode,
		Status:        checkout.StatusCompleted,
		CompletedAt:   &completedAt,
	}
	var subtotal int64
	for _, examID := range input.ExamIDs {
		if examID == 0 {
			continue
		}
		price := input.ExamPrices[examID]
		subtotal += price
		sess.Items = append(sess.Items, checkout.LineItem{
			ExamID:         examID,
			Name:           input.ExamTitles[examID],
			UnitPriceCents: price,
			Quantity:       1,
		})
	}
	sess.SubtotalCents = subtotal
	if discount := subtotal - input.AmountCents; discount > 0 {
		sess.DiscountCents = discount
	}
	return sess
}

func (r *Reconciler) paymentRecord(input ReconcileInput, currency string) *payment.Record {
	if input.PaymentIntentID == "" {
		return nil
	}
	return &payment.Record{
		PaymentIntentID: input.PaymentIntentID,
		UserID:          input.UserID,
		SessionID:       input.SessionID,
		AmountCents:     input.AmountCents,
		Currency:        currency,
		Status:          payment.StatusSucceeded,
	}
}

func (r *Reconciler) sendConfirmation(ctx context.Context, input ReconcileInput, currency string) {
	if r.mailer == nil || input.CustomerEmail == "" {
		return
	}
	titles := make([]string, 0, len(input.ExamIDs))
	for _, examID := range input.ExamIDs {
		if title, ok := input.ExamTitles[examID]; ok {
			titles = append(titles, title)
		}
	}
	if err := r.mailer.SendPurchaseConfirmation(ctx, input.CustomerEmail, input.SessionID, titles, input.AmountCents, currency); err != nil {
		r.log.WithFields(logrus.Fields{
			"session_id": input.SessionID,
			"error":      err.Error(),
		}).Warn("Failed to send purchase confirmation email")
	}
}

// BuildInput assembles a ReconcileInput from a provider session, preferring
// the local mirror row over session metadata. The mirror carries per-item
// prices; metadata only carries IDs.
func (r *Reconciler) BuildInput(ctx context.Context, ps *payment.ProviderSession) ReconcileInput {
	input := ReconcileInput{
		SessionID:       ps.ID,
		CustomerEmail:   ps.CustomerEmail,
		CustomerName:    ps.CustomerName,
		PaymentIntentID: ps.PaymentIntentID,
		AmountCents:     ps.AmountTotalCents,
		Currency:        ps.Currency,
		CouponCode:      ps.Metadata["coupon_code"],
		ExamPrices:      map[uint]int64{},
		ExamTitles:      map[uint]string{},
	}

	if raw, ok := ps.Metadata["user_id"]; ok && raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 32); err == nil && v > 0 {
			id := uint(v)
			input.UserID = &id
		}
	}

	local, err := r.sessions.FindBySessionID(ctx, ps.ID)
	if err == nil {
		if input.UserID == nil {
			input.UserID = local.UserID
		}
		if input.CustomerEmail == "" {
			input.CustomerEmail = local.CustomerEmail
		}
		if input.CustomerName == "" {
			input.CustomerName = local.CustomerName
		}
		if input.CouponCode == "" {
			input.CouponCode = local.CouponCode
		}
		for _, item := range local.Items {
			input.ExamIDs = append(input.ExamIDs, item.ExamID)
			input.ExamPrices[item.ExamID] = item.UnitPriceCents
			input.ExamTitles[item.ExamID] = item.Name
		}
		return input
	}
	if err != checkout.ErrSessionNotFound {
		r.log.WithFields(logrus.Fields{
			"session_id": ps.ID,
			"error":      err.Error(),
		}).Warn("Failed to load local session mirror, falling back to metadata")
	}

	input.ExamIDs = checkout.ParseExamIDs(ps.Metadata["exam_ids"])
	return input
}
