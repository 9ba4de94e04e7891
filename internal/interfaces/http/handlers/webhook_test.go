package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v83/webhook"
	"github.com/your-org/examprep-backend/internal/config"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/payment"
	"github.com/your-org/examprep-backend/internal/domain/purchase"
)

const testWebhookSecret = "whsec_test_secret"

type recordingEntitlementStore struct {
	applied []*purchase.Reconciliation
}

func (m *recordingEntitlementStore) EntitlementsBySession(ctx context.Context, sessionID string) ([]purchase.Entitlement, error) {
	return nil, nil
}

func (m *recordingEntitlementStore) EntitlementsByUser(ctx context.Context, userID uint) ([]purchase.Entitlement, error) {
	return nil, nil
}

func (m *recordingEntitlementStore) HasActiveEntitlement(ctx context.Context, userID, examID uint) (bool, error) {
	return false, nil
}

func (m *recordingEntitlementStore) ApplyReconciliation(ctx context.Context, rec *purchase.Reconciliation) error {
	m.applied = append(m.applied, rec)
	return nil
}

type recordingSessionStore struct {
	expired []string
}

func (m *recordingSessionStore) Create(ctx context.Context, sess *checkout.Session) error {
	return nil
}

func (m *recordingSessionStore) FindBySessionID(ctx context.Context, sessionID string) (*checkout.Session, error) {
	return nil, checkout.ErrSessionNotFound
}

func (m *recordingSessionStore) ListByUser(ctx context.Context, userID uint) ([]checkout.Session, error) {
	return nil, nil
}

func (m *recordingSessionStore) MarkExpired(ctx context.Context, sessionID string) error {
	m.expired = append(m.expired, sessionID)
	return nil
}

type recordingPaymentStore struct {
	upserts []*payment.Record
}

func (m *recordingPaymentStore) Upsert(ctx context.Context, rec *payment.Record) error {
	m.upserts = append(m.upserts, rec)
	return nil
}

func (m *recordingPaymentStore) FindByIntentID(ctx context.Context, paymentIntentID string) (*payment.Record, error) {
	return nil, payment.ErrRecordNotFound
}

type webhookFixture struct {
	handler      *WebhookHandler
	entitlements *recordingEntitlementStore
	sessions     *recordingSessionStore
	payments     *recordingPaymentStore
}

func newWebhookFixture() *webhookFixture {
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		Stripe:   config.StripeConfig{SecretKey: "sk_test_x", WebhookSecret: testWebhookSecret},
		Purchase: config.PurchaseConfig{Currency: "usd", ValidityWindow: 365 * 24 * time.Hour},
	}

	entitlements := &recordingEntitlementStore{}
	sessions := &recordingSessionStore{}
	payments := &recordingPaymentStore{}

	provider := payment.NewStripeProvider(cfg)
	reconciler := purchase.NewReconciler(entitlements, sessions, nil, cfg, log)
	checkoutService := checkout.NewService(sessions, nil, nil, nil, cfg, log)

	return &webhookFixture{
		handler:      NewWebhookHandler(provider, reconciler, checkoutService, payments, log),
		entitlements: entitlements,
		sessions:     sessions,
		payments:     payments,
	}
}

func (f *webhookFixture) post(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	c.Request = req
	f.handler.HandleStripeWebhook(c)
	return w
}

func signPayload(payload []byte) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestHandleStripeWebhook_RejectsBadSignature(t *testing.T) {
	f := newWebhookFixture()
	body := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	cases := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"garbage header", "t=123,v1=deadbeef"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.post(t, body, tc.signature)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}

	if len(f.entitlements.applied) != 0 {
		t.Fatalf("expected no reconciliation for unsigned events, got %d", len(f.entitlements.applied))
	}
	if len(f.payments.upserts) != 0 {
		t.Fatalf("expected no payment writes for unsigned events, got %d", len(f.payments.upserts))
	}
}

func TestHandleStripeWebhook_AcknowledgesUnknownEventType(t *testing.T) {
	f := newWebhookFixture()
	body := []byte(`{"id":"evt_1","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	w := f.post(t, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unhandled event type, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"received":true}` {
		t.Fatalf("unexpected acknowledgement body: %s", body)
	}
	if len(f.entitlements.applied) != 0 || len(f.payments.upserts) != 0 {
		t.Fatal("expected unhandled event to write nothing")
	}
}

func TestHandleStripeWebhook_SessionCompletedReconciles(t *testing.T) {
	f := newWebhookFixture()
	body := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_hook_1",
				"object": "checkout.session",
				"payment_status": "paid",
				"amount_total": 7998,
				"currency": "usd",
				"customer_email": "buyer@example.com",
				"metadata": {"exam_ids": "10,11", "user_id": "7"},
				"payment_intent": {"id": "pi_hook_1", "status": "succeeded"}
			}
		}
	}`)

	w := f.post(t, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if len(f.entitlements.applied) != 1 {
		t.Fatalf("expected 1 reconciliation batch, got %d", len(f.entitlements.applied))
	}
	batch := f.entitlements.applied[0]
	if batch.SessionID != "cs_hook_1" {
		t.Fatalf("unexpected session in batch: %q", batch.SessionID)
	}
	if len(batch.Entitlements) != 2 {
		t.Fatalf("expected 2 entitlements, got %d", len(batch.Entitlements))
	}
	for _, e := range batch.Entitlements {
		if e.UserID != 7 {
			t.Fatalf("expected entitlements for user 7, got %+v", e)
		}
	}
	if batch.Payment == nil || batch.Payment.PaymentIntentID != "pi_hook_1" || batch.Payment.Status != payment.StatusSucceeded {
		t.Fatalf("expected succeeded payment record in batch, got %+v", batch.Payment)
	}
}

func TestHandleStripeWebhook_UnpaidSessionSkipsReconciliation(t *testing.T) {
	f := newWebhookFixture()
	body := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_hook_2",
				"object": "checkout.session",
				"payment_status": "unpaid",
				"metadata": {"exam_ids": "10", "user_id": "7"}
			}
		}
	}`)

	w := f.post(t, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(f.entitlements.applied) != 0 {
		t.Fatalf("expected no reconciliation for unpaid session, got %d", len(f.entitlements.applied))
	}
}

func TestHandleStripeWebhook_SessionExpired(t *testing.T) {
	f := newWebhookFixture()
	body := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.expired",
		"data": {"object": {"id": "cs_hook_3", "object": "checkout.session"}}
	}`)

	w := f.post(t, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(f.sessions.expired) != 1 || f.sessions.expired[0] != "cs_hook_3" {
		t.Fatalf("expected session cs_hook_3 marked expired, got %v", f.sessions.expired)
	}
}

func TestHandleStripeWebhook_IntentFailedRecordsFailure(t *testing.T) {
	f := newWebhookFixture()
	body := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.payment_failed",
		"data": {
			"object": {
				"id": "pi_fail_1",
				"object": "payment_intent",
				"amount": 4999,
				"currency": "usd",
				"last_payment_error": {"message": "Your card was declined."}
			}
		}
	}`)

	w := f.post(t, body, signPayload(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if len(f.payments.upserts) != 1 {
		t.Fatalf("expected 1 payment write, got %d", len(f.payments.upserts))
	}
	rec := f.payments.upserts[0]
	if rec.PaymentIntentID != "pi_fail_1" || rec.Status != payment.StatusFailed {
		t.Fatalf("expected failed record for pi_fail_1, got %+v", rec)
	}
	if rec.AmountCents != 4999 {
		t.Fatalf("expected amount 4999, got %d", rec.AmountCents)
	}
	if rec.ErrorMessage != "Your card was declined." {
		t.Fatalf("expected decline message, got %q", rec.ErrorMessage)
	}
}
