// internal/domain/payment/entity.go
package payment

import (
	"time"
)

// Status represents the terminal state of a payment attempt
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record mirrors one payment attempt reported by the provider. The provider
// remains the source of truth; this row is a local cache that tolerates being
// stale or re-derived. It is upserted with merge semantics by whichever
// handler (webhook or client poll) observes the terminal state first.
type Record struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	PaymentIntentID string     `gorm:"uniqueIndex;not null;size:255" json:"payment_intent_id"`
	UserID          *uint      `gorm:"index" json:"user_id"` // Nullable for guest payments
	SessionID       string     `gorm:"size:255;index" json:"session_id"`
	AmountCents     int64      `gorm:"not null" json:"amount_cents"`
	Currency        string     `gorm:"size:3;default:'usd'" json:"currency"`
	Status          Status     `gorm:"not null;size:20" json:"status"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SucceededAt     *time.Time `json:"succeeded_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
}

// TableName overrides the table name
func (Record) TableName() string {
	return "payment_records"
}
