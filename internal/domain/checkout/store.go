// internal/domain/checkout/store.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrSessionNotFound is returned when no local session row exists
var ErrSessionNotFound = errors.New("checkout session not found")

// Store abstracts checkout session persistence
type Store interface {
	Create(ctx context.Context, sess *Session) error
	FindBySessionID(ctx context.Context, sessionID string) (*Session, error)
	ListByUser(ctx context.Context, userID uint) ([]Session, error)
	// MarkExpired transitions a session from created to expired. Sessions in
	// any other state are left untouched.
	MarkExpired(ctx context.Context, sessionID string) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a database-backed checkout session store
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, sess *Session) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("failed to create checkout session: %w", err)
	}
	return nil
}

func (s *gormStore) FindBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("session_id = ?", sessionID).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}
	return &sess, nil
}

func (s *gormStore) ListByUser(ctx context.Context, userID uint) ([]Session, error) {
	var sessions []Session
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormStore) MarkExpired(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("session_id = ? AND status = ?", sessionID, StatusCreated).
		Updates(map[string]interface{}{
			"status":     StatusExpired,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to expire checkout session: %w", err)
	}
	return nil
}
