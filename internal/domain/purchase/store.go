// internal/domain/purchase/store.go
package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/payment"
	"gorm.io/gorm"
)

// ErrAlreadyReconciled signals that a concurrent writer applied the same
// reconciliation first. Callers treat it as success.
var ErrAlreadyReconciled = errors.New("session already reconciled")

// Reconciliation is the atomic write applied when a payment is confirmed:
// entitlements, the session completion transition and the payment record all
// commit together or not at all.
type Reconciliation struct {
	SessionID    string
	Entitlements []Entitlement
	Payment      *payment.Record
	CompletedAt  time.Time
	// Session is the completed row to insert when no local mirror exists,
	// rebuilt from provider metadata after the creation-time write was lost.
	Session *checkout.Session
}

// Store abstracts entitlement persistence
type Store interface {
	EntitlementsBySession(ctx context.Context, sessionID string) ([]Entitlement, error)
	EntitlementsByUser(ctx context.Context, userID uint) ([]Entitlement, error)
	HasActiveEntitlement(ctx context.Context, userID, examID uint) (bool, error)
	// ApplyReconciliation commits the whole reconciliation in one
	// transaction. Returns ErrAlreadyReconciled when a concurrent writer got
	// there first.
	ApplyReconciliation(ctx context.Context, rec *Reconciliation) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a database-backed entitlement store
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) EntitlementsBySession(ctx context.Context, sessionID string) ([]Entitlement, error) {
	var ents []Entitlement
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&ents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlements: %w", err)
	}
	return ents, nil
}

func (s *gormStore) EntitlementsByUser(ctx context.Context, userID uint) ([]Entitlement, error) {
	var ents []Entitlement
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchased_at DESC").
		Find(&ents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlements: %w", err)
	}
	return ents, nil
}

func (s *gormStore) HasActiveEntitlement(ctx context.Context, userID, examID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Entitlement{}).
		Where("user_id = ? AND exam_id = ? AND expires_at > ?", userID, examID, time.Now().UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check entitlement: %w", err)
	}
	return count > 0, nil
}

func (s *gormStore) ApplyReconciliation(ctx context.Context, rec *Reconciliation) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rec.Entitlements {
			e := &rec.Entitlements[i]
			var count int64
			err := tx.Model(&Entitlement{}).
				Where("user_id = ? AND exam_id = ? AND session_id = ?", e.UserID, e.ExamID, e.SessionID).
				Count(&count).Error
			if err != nil {
				return fmt.Errorf("failed to check existing entitlement: %w", err)
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(e).Error; err != nil {
				return fmt.Errorf("failed to create entitlement: %w", err)
			}
		}

		if rec.SessionID != "" {
			completedAt := rec.CompletedAt
			if completedAt.IsZero() {
				completedAt = time.Now().UTC()
			}
			res := tx.Model(&checkout.Session{}).
				Where("session_id = ? AND status <> ?", rec.SessionID, checkout.StatusCompleted).
				Updates(map[string]interface{}{
					"status":       checkout.StatusCompleted,
					"completed_at": completedAt,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to complete checkout session: %w", res.Error)
			}
			// Zero rows means either the session is already completed or the
			// mirror row was never written. Only the latter needs the rebuilt
			// row inserted, so check existence before creating.
			if res.RowsAffected == 0 && rec.Session != nil {
				var count int64
				err := tx.Model(&checkout.Session{}).
					Where("session_id = ?", rec.SessionID).
					Count(&count).Error
				if err != nil {
					return fmt.Errorf("failed to check checkout session: %w", err)
				}
				if count == 0 {
					if err := tx.Create(rec.Session).Error; err != nil {
						return fmt.Errorf("failed to restore checkout session: %w", err)
					}
				}
			}
		}

		if rec.Payment != nil {
			if err := payment.UpsertTx(tx, rec.Payment); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		// The composite unique index on (user_id, exam_id, session_id) turns
		// a lost race into a rollback; the winner already wrote this exact
		// batch, so converge instead of failing.
		if isUniqueViolation(err) {
			return ErrAlreadyReconciled
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
