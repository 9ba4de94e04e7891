package purchase

import (
	"context"
	"errors"
	"testing"

	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/payment"
)

type mockFetcher struct {
	session    *payment.ProviderSession
	sessionErr error
	intent     *payment.ProviderIntent
	intentErr  error
	calls      int
}

func (m *mockFetcher) GetCheckoutSession(ctx context.Context, sessionID string) (*payment.ProviderSession, error) {
	m.calls++
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return m.session, nil
}

func (m *mockFetcher) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*payment.ProviderIntent, error) {
	if m.intentErr != nil {
		return nil, m.intentErr
	}
	return m.intent, nil
}

type mockPaymentStore struct {
	records map[string]*payment.Record
	upserts int
}

func newMockPaymentStore() *mockPaymentStore {
	return &mockPaymentStore{records: map[string]*payment.Record{}}
}

func (m *mockPaymentStore) Upsert(ctx context.Context, rec *payment.Record) error {
	m.upserts++
	m.records[rec.PaymentIntentID] = rec
	return nil
}

func (m *mockPaymentStore) FindByIntentID(ctx context.Context, paymentIntentID string) (*payment.Record, error) {
	if rec, ok := m.records[paymentIntentID]; ok {
		return rec, nil
	}
	return nil, payment.ErrRecordNotFound
}

type mockCouponRecorder struct {
	recorded int
	err      error
	lastCode string
}

func (m *mockCouponRecorder) RecordUsage(ctx context.Context, userID uint, code, sessionID string) error {
	m.recorded++
	m.lastCode = code
	return m.err
}

func paidSession(sessionID string) *payment.ProviderSession {
	return &payment.ProviderSession{
		ID:               sessionID,
		Status:           "complete",
		PaymentStatus:    "paid",
		PaymentIntentID:  "pi_test_1",
		AmountTotalCents: 7198,
		Currency:         "usd",
		CustomerEmail:    "buyer@example.com",
		Metadata: map[string]string{
			"exam_ids":    "10,11",
			"user_id":     "7",
			"coupon_code": "SAVE10",
		},
	}
}

func testVerifier(fetcher SessionFetcher, store Store, payments payment.Store, coupons CouponRecorder) *Verifier {
	r := testReconciler(store, newMockSessionStore(), nil)
	return NewVerifier(fetcher, r, store, payments, coupons, quietLogger())
}

func TestVerifySession_FastPathSkipsProvider(t *testing.T) {
	store := newMockStore()
	store.bySession["cs_done"] = []Entitlement{{PurchaseID: "p1", UserID: 7, ExamID: 10, SessionID: "cs_done"}}
	fetcher := &mockFetcher{}
	v := testVerifier(fetcher, store, newMockPaymentStore(), &mockCouponRecorder{})

	result, err := v.VerifySession(context.Background(), "cs_done", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Status != VerifySuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if fetcher.calls != 0 {
		t.Fatalf("expected no provider call on fast path, got %d", fetcher.calls)
	}
}

func TestVerifySession_PaidReconcilesAndRecordsCoupon(t *testing.T) {
	store := newMockStore()
	coupons := &mockCouponRecorder{}
	fetcher := &mockFetcher{session: paidSession("cs_paid")}
	v := testVerifier(fetcher, store, newMockPaymentStore(), coupons)

	result, err := v.VerifySession(context.Background(), "cs_paid", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Status != VerifySuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Message)
	}
	if len(result.Entitlements) != 2 {
		t.Fatalf("expected 2 entitlements, got %d", len(result.Entitlements))
	}
	if coupons.recorded != 1 || coupons.lastCode != "SAVE10" {
		t.Fatalf("expected coupon usage recorded once, got %d (%s)", coupons.recorded, coupons.lastCode)
	}
}

func TestVerifySession_CouponRecordingFailureStillSucceeds(t *testing.T) {
	store := newMockStore()
	coupons := &mockCouponRecorder{err: errors.New("db down")}
	fetcher := &mockFetcher{session: paidSession("cs_paid")}
	v := testVerifier(fetcher, store, newMockPaymentStore(), coupons)

	result, err := v.VerifySession(context.Background(), "cs_paid", nil)
	if err != nil {
		t.Fatalf("expected success despite coupon failure, got %v", err)
	}
	if result.Status != VerifySuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
}

func TestVerifySession_Pending(t *testing.T) {
	fetcher := &mockFetcher{session: &payment.ProviderSession{
		ID:            "cs_open",
		Status:        "open",
		PaymentStatus: "unpaid",
	}}
	v := testVerifier(fetcher, newMockStore(), newMockPaymentStore(), &mockCouponRecorder{})

	result, err := v.VerifySession(context.Background(), "cs_open", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Status != VerifyPending {
		t.Fatalf("expected pending, got %s", result.Status)
	}
}

func TestVerifySession_Expired(t *testing.T) {
	fetcher := &mockFetcher{session: &payment.ProviderSession{
		ID:            "cs_old",
		Status:        "expired",
		PaymentStatus: "unpaid",
	}}
	v := testVerifier(fetcher, newMockStore(), newMockPaymentStore(), &mockCouponRecorder{})

	result, err := v.VerifySession(context.Background(), "cs_old", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Status != VerifyFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
}

func TestVerifySession_CanceledIntent(t *testing.T) {
	fetcher := &mockFetcher{session: &payment.ProviderSession{
		ID:                  "cs_cancel",
		Status:              "open",
		PaymentStatus:       "unpaid",
		PaymentIntentStatus: "canceled",
	}}
	v := testVerifier(fetcher, newMockStore(), newMockPaymentStore(), &mockCouponRecorder{})

	result, err := v.VerifySession(context.Background(), "cs_cancel", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Status != VerifyFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
}

func TestVerifySession_ReplayDoesNotDoubleGrant(t *testing.T) {
	store := newMockStore()
	fetcher := &mockFetcher{session: paidSession("cs_paid")}
	v := testVerifier(fetcher, store, newMockPaymentStore(), &mockCouponRecorder{})

	first, err := v.VerifySession(context.Background(), "cs_paid", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := v.VerifySession(context.Background(), "cs_paid", nil)
	if err != nil {
		t.Fatalf("expected no error on replay, got %v", err)
	}
	if len(first.Entitlements) != len(second.Entitlements) {
		t.Fatalf("expected identical entitlements, got %d vs %d", len(first.Entitlements), len(second.Entitlements))
	}
	if len(store.applied) != 1 {
		t.Fatalf("expected 1 write across replays, got %d", len(store.applied))
	}
}

func TestGetSessionDetail(t *testing.T) {
	store := newMockStore()
	store.bySession["cs_done"] = []Entitlement{{PurchaseID: "p1", UserID: 7, ExamID: 10, SessionID: "cs_done"}}
	sessions := newMockSessionStore()
	userID := uint(7)
	sessions.sessions["cs_done"] = &checkout.Session{
		SessionID: "cs_done",
		UserID:    &userID,
		Status:    checkout.StatusCompleted,
	}
	r := testReconciler(store, sessions, nil)
	v := NewVerifier(&mockFetcher{}, r, store, newMockPaymentStore(), &mockCouponRecorder{}, quietLogger())

	sess, ents, err := v.GetSessionDetail(context.Background(), "cs_done")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sess.SessionID != "cs_done" || sess.Status != checkout.StatusCompleted {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if len(ents) != 1 || ents[0].PurchaseID != "p1" {
		t.Fatalf("expected the session's entitlements, got %+v", ents)
	}

	_, _, err = v.GetSessionDetail(context.Background(), "cs_missing")
	if !errors.Is(err, checkout.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCheckPaymentStatus_LocalFastPath(t *testing.T) {
	payments := newMockPaymentStore()
	payments.records["pi_local"] = &payment.Record{
		PaymentIntentID: "pi_local",
		Status:          payment.StatusSucceeded,
		AmountCents:     7198,
		Currency:        "usd",
	}
	fetcher := &mockFetcher{intentErr: errors.New("should not be called")}
	v := testVerifier(fetcher, newMockStore(), payments, &mockCouponRecorder{})

	result, err := v.CheckPaymentStatus(context.Background(), "pi_local")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Status != "succeeded" {
		t.Fatalf("expected succeeded from local record, got %s", result.Status)
	}
}

func TestCheckPaymentStatus_ProviderFallbackMirrorsTerminal(t *testing.T) {
	payments := newMockPaymentStore()
	fetcher := &mockFetcher{intent: &payment.ProviderIntent{
		ID:          "pi_remote",
		Status:      "succeeded",
		AmountCents: 4999,
		Currency:    "usd",
	}}
	v := testVerifier(fetcher, newMockStore(), payments, &mockCouponRecorder{})

	result, err := v.CheckPaymentStatus(context.Background(), "pi_remote")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Status != "succeeded" {
		t.Fatalf("expected succeeded, got %s", result.Status)
	}
	if payments.upserts != 1 {
		t.Fatalf("expected terminal state mirrored locally, got %d upserts", payments.upserts)
	}
}
