// internal/domain/payment/store.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrRecordNotFound is returned when no local payment record exists
var ErrRecordNotFound = errors.New("payment record not found")

// Store abstracts payment record persistence
type Store interface {
	// Upsert creates or updates the record keyed by PaymentIntentID with
	// merge semantics: unrelated fields of an existing row are preserved and
	// a succeeded record is never downgraded to failed.
	Upsert(ctx context.Context, rec *Record) error
	FindByIntentID(ctx context.Context, paymentIntentID string) (*Record, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a database-backed payment record store
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Upsert(ctx context.Context, rec *Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return UpsertTx(tx, rec)
	})
}

// UpsertTx applies the merge-upsert inside an existing transaction, so callers
// composing larger atomic writes (reconciliation) share the same semantics as
// the standalone store.
func UpsertTx(tx *gorm.DB, rec *Record) error {
	var existing Record
	err := tx.Where("payment_intent_id = ?", rec.PaymentIntentID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if rec.Status == StatusSucceeded && rec.SucceededAt == nil {
			now := time.Now().UTC()
			rec.SucceededAt = &now
		}
		if rec.Status == StatusFailed && rec.FailedAt == nil {
			now := time.Now().UTC()
			rec.FailedAt = &now
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to create payment record: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load payment record: %w", err)
	}

	// Success is terminal: a late "failed" delivery for an intent that
	// already succeeded is stale information and is dropped.
	if existing.Status == StatusSucceeded {
		return nil
	}
	if existing.Status == rec.Status {
		return nil
	}

	updates := map[string]interface{}{
		"status": rec.Status,
	}
	if rec.AmountCents > 0 {
		updates["amount_cents"] = rec.AmountCents
	}
	if rec.Currency != "" {
		updates["currency"] = rec.Currency
	}
	if rec.SessionID != "" {
		updates["session_id"] = rec.SessionID
	}
	if rec.UserID != nil {
		updates["user_id"] = *rec.UserID
	}
	if rec.ErrorMessage != "" {
		updates["error_message"] = rec.ErrorMessage
	}
	now := time.Now().UTC()
	switch rec.Status {
	case StatusSucceeded:
		updates["succeeded_at"] = now
	case StatusFailed:
		updates["failed_at"] = now
	}

	if err := tx.Model(&existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update payment record: %w", err)
	}
	return nil
}

func (s *gormStore) FindByIntentID(ctx context.Context, paymentIntentID string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load payment record: %w", err)
	}
	return &rec, nil
}
