// internal/domain/cart/entity.go
package cart

import (
	"time"
)

// Item is one exam in a cart. Quantity is implicit: exam access is bought at
// most once, so the cart is a set.
type Item struct {
	ExamID  uint      `json:"exam_id"`
	AddedAt time.Time `json:"added_at"`
}

// StoredCart is the Redis representation of a cart, serialized as JSON under
// a per-user or per-guest key.
type StoredCart struct {
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Totals summarizes a priced cart
type Totals struct {
	ItemCount     int   `json:"item_count"`
	SubtotalCents int64 `json:"subtotal_cents"`
}
