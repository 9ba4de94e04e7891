package purchase

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/examprep-backend/internal/config"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/payment"
)

type mockStore struct {
	bySession map[string][]Entitlement
	applied   []*Reconciliation
	applyErr  error
}

func newMockStore() *mockStore {
	return &mockStore{bySession: map[string][]Entitlement{}}
}

func (m *mockStore) EntitlementsBySession(ctx context.Context, sessionID string) ([]Entitlement, error) {
	return m.bySession[sessionID], nil
}

func (m *mockStore) EntitlementsByUser(ctx context.Context, userID uint) ([]Entitlement, error) {
	var out []Entitlement
	for _, ents := range m.bySession {
		for _, e := range ents {
			if e.UserID == userID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *mockStore) HasActiveEntitlement(ctx context.Context, userID, examID uint) (bool, error) {
	now := time.Now()
	for _, ents := range m.bySession {
		for _, e := range ents {
			if e.UserID == userID && e.ExamID == examID && e.IsActive(now) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockStore) ApplyReconciliation(ctx context.Context, rec *Reconciliation) error {
	m.applied = append(m.applied, rec)
	if m.applyErr != nil {
		return m.applyErr
	}
	m.bySession[rec.SessionID] = append(m.bySession[rec.SessionID], rec.Entitlements...)
	return nil
}

type mockSessionStore struct {
	sessions map[string]*checkout.Session
	expired  []string
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: map[string]*checkout.Session{}}
}

func (m *mockSessionStore) Create(ctx context.Context, sess *checkout.Session) error {
	m.sessions[sess.SessionID] = sess
	return nil
}

func (m *mockSessionStore) FindBySessionID(ctx context.Context, sessionID string) (*checkout.Session, error) {
	if sess, ok := m.sessions[sessionID]; ok {
		return sess, nil
	}
	return nil, checkout.ErrSessionNotFound
}

func (m *mockSessionStore) ListByUser(ctx context.Context, userID uint) ([]checkout.Session, error) {
	return nil, nil
}

func (m *mockSessionStore) MarkExpired(ctx context.Context, sessionID string) error {
	m.expired = append(m.expired, sessionID)
	return nil
}

type mockMailer struct {
	sent int
	err  error
}

func (m *mockMailer) SendPurchaseConfirmation(ctx context.Context, toEmail, sessionID string, examTitles []string, totalCents int64, currency string) error {
	m.sent++
	return m.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func reconcilerConfig() *config.Config {
	return &config.Config{
		Purchase: config.PurchaseConfig{Currency: "usd", ValidityWindow: 365 * 24 * time.Hour},
	}
}

func testReconciler(store Store, sessions checkout.Store, mailer Mailer) *Reconciler {
	return NewReconciler(store, sessions, mailer, reconcilerConfig(), quietLogger())
}

func userInput(userID uint) ReconcileInput {
	return ReconcileInput{
		SessionID:       "cs_test_1",
		UserID:          &userID,
		CustomerEmail:   "buyer@example.com",
		ExamIDs:         []uint{10, 11},
		ExamPrices:      map[uint]int64{10: 4999, 11: 2999},
		ExamTitles:      map[uint]string{10: "Cloud Architect", 11: "Security Essentials"},
		PaymentIntentID: "pi_test_1",
		AmountCents:     7998,
		Currency:        "usd",
	}
}

func TestReconcile_GrantsEntitlements(t *testing.T) {
	store := newMockStore()
	mailer := &mockMailer{}
	r := testReconciler(store, newMockSessionStore(), mailer)

	ents, err := r.Reconcile(context.Background(), userInput(7))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ents) != 2 {
		t.Fatalf("expected 2 entitlements, got %d", len(ents))
	}
	for _, e := range ents {
		if e.UserID != 7 || e.SessionID != "cs_test_1" {
			t.Fatalf("unexpected entitlement: %+v", e)
		}
		if e.PurchaseID == "" {
			t.Fatal("expected purchase ID to be assigned")
		}
		wantExpiry := e.PurchasedAt.Add(365 * 24 * time.Hour)
		if !e.ExpiresAt.Equal(wantExpiry) {
			t.Fatalf("expected expiry %v, got %v", wantExpiry, e.ExpiresAt)
		}
	}
	if ents[0].AmountCents != 4999 || ents[1].AmountCents != 2999 {
		t.Fatalf("expected per-item prices, got %d and %d", ents[0].AmountCents, ents[1].AmountCents)
	}

	if len(store.applied) != 1 {
		t.Fatalf("expected 1 reconciliation batch, got %d", len(store.applied))
	}
	batch := store.applied[0]
	if batch.Payment == nil || batch.Payment.Status != payment.StatusSucceeded {
		t.Fatalf("expected succeeded payment record in batch, got %+v", batch.Payment)
	}
	if mailer.sent != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", mailer.sent)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store := newMockStore()
	r := testReconciler(store, newMockSessionStore(), nil)

	first, err := r.Reconcile(context.Background(), userInput(7))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := r.Reconcile(context.Background(), userInput(7))
	if err != nil {
		t.Fatalf("expected no error on replay, got %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected same entitlements on replay, got %d vs %d", len(first), len(second))
	}
	if len(store.applied) != 1 {
		t.Fatalf("expected a single write, got %d", len(store.applied))
	}
}

func TestReconcile_LostRaceConverges(t *testing.T) {
	base := newMockStore()
	base.applyErr = ErrAlreadyReconciled
	store := &raceStore{
		mockStore: base,
		winner:    []Entitlement{{PurchaseID: "p1", UserID: 7, ExamID: 10, SessionID: "cs_test_1"}},
	}
	r := testReconciler(store, newMockSessionStore(), nil)

	ents, err := r.Reconcile(context.Background(), userInput(7))
	if err != nil {
		t.Fatalf("expected convergence, got %v", err)
	}
	if len(ents) != 1 || ents[0].PurchaseID != "p1" {
		t.Fatalf("expected winner's entitlements, got %+v", ents)
	}
}

// raceStore sees no entitlements on the first read (so the write is
// attempted) and the concurrent winner's rows afterwards.
type raceStore struct {
	*mockStore
	reads  int
	winner []Entitlement
}

func (r *raceStore) EntitlementsBySession(ctx context.Context, sessionID string) ([]Entitlement, error) {
	r.reads++
	if r.reads == 1 {
		return nil, nil
	}
	return r.winner, nil
}

func TestReconcile_RebuildsMissingSessionMirror(t *testing.T) {
	store := newMockStore()
	r := testReconciler(store, newMockSessionStore(), nil)

	input := userInput(7)
	input.CustomerName = "Pat Buyer"
	// Simulate a coupon: total below the per-item sum
	input.AmountCents = 6998

	if _, err := r.Reconcile(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(store.applied) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(store.applied))
	}
	sess := store.applied[0].Session
	if sess == nil {
		t.Fatal("expected rebuilt session row in the batch")
	}
	if sess.Status != checkout.StatusCompleted || sess.CompletedAt == nil {
		t.Fatalf("expected completed session, got %+v", sess)
	}
	if sess.UserID == nil || *sess.UserID != 7 {
		t.Fatalf("expected user on rebuilt session, got %v", sess.UserID)
	}
	if sess.CustomerName != "Pat Buyer" || sess.CustomerEmail != "buyer@example.com" {
		t.Fatalf("expected customer identity on rebuilt session, got %q / %q", sess.CustomerName, sess.CustomerEmail)
	}
	if len(sess.Items) != 2 {
		t.Fatalf("expected 2 rebuilt line items, got %d", len(sess.Items))
	}
	if sess.SubtotalCents != 7998 || sess.TotalCents != 6998 || sess.DiscountCents != 1000 {
		t.Fatalf("unexpected rebuilt totals: %+v", sess)
	}
}

func TestReconcile_GuestGrantsNothing(t *testing.T) {
	store := newMockStore()
	mailer := &mockMailer{}
	r := testReconciler(store, newMockSessionStore(), mailer)

	input := userInput(0)
	input.UserID = nil

	ents, err := r.Reconcile(context.Background(), input)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ents) != 0 {
		t.Fatalf("expected no entitlements for guest, got %d", len(ents))
	}
	// The payment and session completion are still recorded
	if len(store.applied) != 1 {
		t.Fatalf("expected 1 bookkeeping write, got %d", len(store.applied))
	}
	if store.applied[0].Payment == nil {
		t.Fatal("expected payment record for guest purchase")
	}
	if len(store.applied[0].Entitlements) != 0 {
		t.Fatal("expected no entitlements in guest batch")
	}
	if store.applied[0].Session == nil {
		t.Fatal("expected rebuilt session row in guest batch")
	}
}

func TestReconcile_SkipsUnresolvableExam(t *testing.T) {
	store := newMockStore()
	r := testReconciler(store, newMockSessionStore(), nil)

	input := userInput(7)
	input.ExamIDs = []uint{10, 0, 11}

	ents, err := r.Reconcile(context.Background(), input)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ents) != 2 {
		t.Fatalf("expected 2 entitlements with the zero ID skipped, got %d", len(ents))
	}
}

func TestReconcile_MailerFailureDoesNotFail(t *testing.T) {
	store := newMockStore()
	mailer := &mockMailer{err: context.DeadlineExceeded}
	r := testReconciler(store, newMockSessionStore(), mailer)

	ents, err := r.Reconcile(context.Background(), userInput(7))
	if err != nil {
		t.Fatalf("expected no error despite mailer failure, got %v", err)
	}
	if len(ents) != 2 {
		t.Fatalf("expected entitlements, got %d", len(ents))
	}
}

func TestBuildInput_PrefersLocalMirror(t *testing.T) {
	sessions := newMockSessionStore()
	userID := uint(7)
	sessions.sessions["cs_test_1"] = &checkout.Session{
		SessionID:     "cs_test_1",
		UserID:        &userID,
		CustomerEmail: "mirror@example.com",
		CustomerName:  "Pat Buyer",
		CouponCode:    "SAVE10",
		Items: []checkout.LineItem{
			{ExamID: 10, Name: "Cloud Architect", UnitPriceCents: 4999},
			{ExamID: 11, Name: "Security Essentials", UnitPriceCents: 2999},
		},
	}
	r := testReconciler(newMockStore(), sessions, nil)

	input := r.BuildInput(context.Background(), &payment.ProviderSession{
		ID:               "cs_test_1",
		PaymentIntentID:  "pi_test_1",
		AmountTotalCents: 7198,
		Currency:         "usd",
		Metadata:         map[string]string{"exam_ids": "10,11"},
	})

	if input.UserID == nil || *input.UserID != 7 {
		t.Fatalf("expected user from mirror, got %v", input.UserID)
	}
	if len(input.ExamIDs) != 2 {
		t.Fatalf("expected 2 exam IDs, got %v", input.ExamIDs)
	}
	if input.ExamPrices[10] != 4999 {
		t.Fatalf("expected mirror price, got %d", input.ExamPrices[10])
	}
	if input.CouponCode != "SAVE10" {
		t.Fatalf("expected coupon from mirror, got %q", input.CouponCode)
	}
	if input.CustomerEmail != "mirror@example.com" {
		t.Fatalf("expected mirror email, got %q", input.CustomerEmail)
	}
	if input.CustomerName != "Pat Buyer" {
		t.Fatalf("expected mirror customer name, got %q", input.CustomerName)
	}
}

func TestBuildInput_FallsBackToMetadata(t *testing.T) {
	r := testReconciler(newMockStore(), newMockSessionStore(), nil)

	input := r.BuildInput(context.Background(), &payment.ProviderSession{
		ID:               "cs_lost_mirror",
		PaymentIntentID:  "pi_test_2",
		AmountTotalCents: 4999,
		Currency:         "usd",
		CustomerEmail:    "buyer@example.com",
		Metadata: map[string]string{
			"exam_ids":    "10,11",
			"user_id":     "42",
			"coupon_code": "SAVE10",
		},
	})

	if input.UserID == nil || *input.UserID != 42 {
		t.Fatalf("expected user from metadata, got %v", input.UserID)
	}
	if len(input.ExamIDs) != 2 || input.ExamIDs[0] != 10 || input.ExamIDs[1] != 11 {
		t.Fatalf("expected exam IDs from metadata, got %v", input.ExamIDs)
	}
	if input.CouponCode != "SAVE10" {
		t.Fatalf("expected coupon from metadata, got %q", input.CouponCode)
	}
}
