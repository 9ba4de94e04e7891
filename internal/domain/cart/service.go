// internal/domain/cart/service.go
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/your-org/examprep-backend/internal/config"
	"github.com/your-org/examprep-backend/internal/domain/exam"
)

// cartTTL bounds how long an untouched cart survives in Redis
const cartTTL = 30 * 24 * time.Hour

// Business errors surfaced to the API layer
var (
	ErrExamNotFound   = errors.New("exam not found or inactive")
	ErrAlreadyInCart  = errors.New("exam is already in the cart")
	ErrNotInCart      = errors.New("exam is not in the cart")
	ErrAlreadyOwned   = errors.New("exam is already purchased")
	ErrMissingCartKey = errors.New("user or guest session is required")
)

// Catalog resolves exam IDs to priced catalog entries
type Catalog interface {
	GetByIDs(ids []uint) ([]exam.Exam, error)
}

// EntitlementChecker reports whether a user already owns an exam
type EntitlementChecker interface {
	HasActiveEntitlement(ctx context.Context, userID, examID uint) (bool, error)
}

// Service manages exam carts in Redis. Carts for both authenticated users and
// guests live in Redis under distinct key prefixes; a guest cart merges into
// the user cart at login.
type Service struct {
	redisClient  *redis.Client
	catalog      Catalog
	entitlements EntitlementChecker
	config       *config.Config
}

// NewService creates a new cart service
func NewService(redisClient *redis.Client, catalog Catalog, entitlements EntitlementChecker, cfg *config.Config) *Service {
	return &Service{
		redisClient:  redisClient,
		catalog:      catalog,
		entitlements: entitlements,
		config:       cfg,
	}
}

// ItemDetail is a cart item joined with its catalog entry
type ItemDetail struct {
	ExamID     uint      `json:"exam_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	PriceCents int64     `json:"price_cents"`
	AddedAt    time.Time `json:"added_at"`
}

// View is the priced cart returned to clients
type View struct {
	Items     []ItemDetail `json:"items"`
	Totals    Totals       `json:"totals"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Get returns the priced cart for a user or guest session. Items whose exam
// has been deactivated since they were added are dropped from the view.
func (s *Service) Get(ctx context.Context, userID *uint, guestID string) (*View, error) {
	key, err := cartKey(userID, guestID)
	if err != nil {
		return nil, err
	}

	stored, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	return s.price(stored)
}

// Add puts an exam in the cart. Adding an exam the user already owns, or one
// already in the cart, is rejected.
func (s *Service) Add(ctx context.Context, userID *uint, guestID string, examID uint) (*View, error) {
	key, err := cartKey(userID, guestID)
	if err != nil {
		return nil, err
	}

	exams, err := s.catalog.GetByIDs([]uint{examID})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve exam: %w", err)
	}
	if len(exams) == 0 || !exams[0].IsActive {
		return nil, ErrExamNotFound
	}

	if userID != nil && s.entitlements != nil {
		owned, err := s.entitlements.HasActiveEntitlement(ctx, *userID, examID)
		if err != nil {
			return nil, fmt.Errorf("failed to check ownership: %w", err)
		}
		if owned {
			return nil, ErrAlreadyOwned
		}
	}

	stored, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	for _, item := range stored.Items {
		if item.ExamID == examID {
			return nil, ErrAlreadyInCart
		}
	}

	now := time.Now().UTC()
	stored.Items = append(stored.Items, Item{ExamID: examID, AddedAt: now})
	stored.UpdatedAt = now

	if err := s.save(ctx, key, stored); err != nil {
		return nil, err
	}
	return s.price(stored)
}

// Remove takes an exam out of the cart
func (s *Service) Remove(ctx context.Context, userID *uint, guestID string, examID uint) (*View, error) {
	key, err := cartKey(userID, guestID)
	if err != nil {
		return nil, err
	}

	stored, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	found := false
	for i, item := range stored.Items {
		if item.ExamID == examID {
			stored.Items = append(stored.Items[:i], stored.Items[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNotInCart
	}

	stored.UpdatedAt = time.Now().UTC()
	if err := s.save(ctx, key, stored); err != nil {
		return nil, err
	}
	return s.price(stored)
}

// Clear empties the cart, called after a successful checkout
func (s *Service) Clear(ctx context.Context, userID *uint, guestID string) error {
	key, err := cartKey(userID, guestID)
	if err != nil {
		return err
	}
	return s.redisClient.Del(ctx, key).Err()
}

// ExamIDs returns the raw exam IDs in the cart, in insertion order
func (s *Service) ExamIDs(ctx context.Context, userID *uint, guestID string) ([]uint, error) {
	key, err := cartKey(userID, guestID)
	if err != nil {
		return nil, err
	}
	stored, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(stored.Items))
	for _, item := range stored.Items {
		ids = append(ids, item.ExamID)
	}
	return ids, nil
}

// MergeGuestCart folds a guest cart into the user's cart at login. Exams
// already present or already owned are skipped; the guest cart is deleted.
func (s *Service) MergeGuestCart(ctx context.Context, userID uint, guestID string) error {
	if guestID == "" {
		return nil
	}

	guestKey := fmt.Sprintf("cart:guest:%s", guestID)
	guestCart, err := s.load(ctx, guestKey)
	if err != nil {
		return err
	}
	if len(guestCart.Items) == 0 {
		return nil
	}

	userKey := fmt.Sprintf("cart:user:%d", userID)
	userCart, err := s.load(ctx, userKey)
	if err != nil {
		return err
	}

	present := make(map[uint]bool, len(userCart.Items))
	for _, item := range userCart.Items {
		present[item.ExamID] = true
	}

	changed := false
	for _, item := range guestCart.Items {
		if present[item.ExamID] {
			continue
		}
		if s.entitlements != nil {
			owned, err := s.entitlements.HasActiveEntitlement(ctx, userID, item.ExamID)
			if err == nil && owned {
				continue
			}
		}
		userCart.Items = append(userCart.Items, item)
		present[item.ExamID] = true
		changed = true
	}

	if changed {
		userCart.UpdatedAt = time.Now().UTC()
		if err := s.save(ctx, userKey, userCart); err != nil {
			return err
		}
	}

	return s.redisClient.Del(ctx, guestKey).Err()
}

func (s *Service) load(ctx context.Context, key string) (*StoredCart, error) {
	data, err := s.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		now := time.Now().UTC()
		return &StoredCart{Items: []Item{}, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	var stored StoredCart
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return &stored, nil
}

func (s *Service) save(ctx context.Context, key string, stored *StoredCart) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.redisClient.Set(ctx, key, data, cartTTL).Err(); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (s *Service) price(stored *StoredCart) (*View, error) {
	ids := make([]uint, 0, len(stored.Items))
	for _, item := range stored.Items {
		ids = append(ids, item.ExamID)
	}

	exams, err := s.catalog.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to price cart: %w", err)
	}
	byID := make(map[uint]exam.Exam, len(exams))
	for _, e := range exams {
		byID[e.ID] = e
	}

	view := &View{Items: []ItemDetail{}, UpdatedAt: stored.UpdatedAt}
	for _, item := range stored.Items {
		e, ok := byID[item.ExamID]
		if !ok || !e.IsActive {
			continue
		}
		view.Items = append(view.Items, ItemDetail{
			ExamID:     e.ID,
			Title:      e.Title,
			Category:   e.Category,
			PriceCents: e.PriceCents,
			AddedAt:    item.AddedAt,
		})
		view.Totals.ItemCount++
		view.Totals.SubtotalCents += e.PriceCents
	}

	return view, nil
}

func cartKey(userID *uint, guestID string) (string, error) {
	if userID != nil {
		return fmt.Sprintf("cart:user:%d", *userID), nil
	}
	if guestID != "" {
		return fmt.Sprintf("cart:guest:%s", guestID), nil
	}
	return "", ErrMissingCartKey
}
