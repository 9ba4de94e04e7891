// internal/domain/checkout/entity.go
package checkout

import (
	"time"
)

// Status represents the lifecycle state of a checkout session.
// Transitions are monotonic: created -> completed, or created -> expired.
// A completed session never moves back.
type Status string

const (
	StatusCreated   Status = "created"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Session is the local mirror of a provider checkout session. The provider
// remains the source of truth for payment state; this row captures the cart
// snapshot (items, coupon, totals) at the moment the session was created.
type Session struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SessionID     string     `gorm:"uniqueIndex;not null;size:255" json:"session_id"`
	UserID        *uint      `gorm:"index" json:"user_id"` // Nullable for guest checkout
	CustomerEmail string     `gorm:"size:255" json:"customer_email"`
	CustomerName  string     `gorm:"size:255" json:"customer_name"`
	SubtotalCents int64      `gorm:"not null" json:"subtotal_cents"`
	DiscountCents int64      `gorm:"default:0" json:"discount_cents"`
	TotalCents    int64      `gorm:"not null" json:"total_cents"`
	Currency      string     `gorm:"size:3;default:'usd'" json:"currency"`
	CouponCode    string     `gorm:"size:50" json:"coupon_code,omitempty"`
	Status        Status     `gorm:"not null;size:20;default:'created';index" json:"status"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Items []LineItem `gorm:"foreignKey:CheckoutSessionID" json:"items"`
}

// TableName overrides the table name
func (Session) TableName() string {
	return "checkout_sessions"
}

// LineItem is one exam in a checkout session's cart snapshot. The name and
// unit price are copied at session creation so later catalog edits do not
// rewrite purchase history.
type LineItem struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CheckoutSessionID uint      `gorm:"not null;index" json:"-"`
	ExamID            uint      `gorm:"not null" json:"exam_id"`
	Name              string    `gorm:"not null;size:255" json:"name"`
	UnitPriceCents    int64     `gorm:"not null" json:"unit_price_cents"`
	Quantity          int64     `gorm:"not null;default:1" json:"quantity"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName overrides the table name
func (LineItem) TableName() string {
	return "checkout_line_items"
}
