// internal/domain/purchase/entity.go
package purchase

import (
	"time"
)

// Entitlement grants a user access to one exam, created when a payment for a
// checkout session is confirmed. The composite unique index on
// (user_id, exam_id, session_id) is the idempotency backstop: replayed
// webhooks and concurrent verification calls cannot mint duplicates.
type Entitlement struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PurchaseID string `gorm:"uniqueIndex;not null;size:36" json:"purchase_id"`
	UserID     uint   `gorm:"not null;uniqueIndex:idx_entitlement_user_exam_session" json:"user_id"`
	ExamID     uint   `gorm:"not null;uniqueIndex:idx_entitlement_user_exam_session" json:"exam_id"`
	SessionID  string `gorm:"not null;size:255;uniqueIndex:idx_entitlement_user_exam_session;index" json:"session_id"`
	// AmountCents is the unit price paid for this exam before discounts.
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"size:3;default:'usd'" json:"currency"`
	PurchasedAt time.Time `gorm:"not null" json:"purchased_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Entitlement) TableName() string {
	return "entitlements"
}

// IsActive reports whether the entitlement grants access at the given time
func (e *Entitlement) IsActive(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
