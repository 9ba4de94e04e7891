// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/examprep-backend/internal/domain/cart"
	"github.com/your-org/examprep-backend/internal/interfaces/http/middleware"
)

// CartHandler handles cart endpoints. Guests identify their cart with the
// X-Guest-ID header; authenticated users are keyed by their account.
type CartHandler struct {
	cartService *cart.Service
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *cart.Service) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

// GetCart returns the current cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, guestID := cartIdentity(c)

	view, err := h.cartService.Get(c.Request.Context(), userID, guestID)
	if err != nil {
		respondCartError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

// AddToCart adds an exam to the cart
func (h *CartHandler) AddToCart(c *gin.Context) {
	userID, guestID := cartIdentity(c)

	var req struct {
		ExamID uint `json:"exam_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	view, err := h.cartService.Add(c.Request.Context(), userID, guestID, req.ExamID)
	if err != nil {
		respondCartError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Exam added to cart",
		"data":    view,
	})
}

// RemoveFromCart removes an exam from the cart
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	userID, guestID := cartIdentity(c)

	examID, err := strconv.ParseUint(c.Param("exam_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}

	view, err := h.cartService.Remove(c.Request.Context(), userID, guestID, uint(examID))
	if err != nil {
		respondCartError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Exam removed from cart",
		"data":    view,
	})
}

// ClearCart empties the cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, guestID := cartIdentity(c)

	if err := h.cartService.Clear(c.Request.Context(), userID, guestID); err != nil {
		respondCartError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

func cartIdentity(c *gin.Context) (*uint, string) {
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		return &userID, ""
	}
	return nil, c.GetHeader("X-Guest-ID")
}

func respondCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrMissingCartKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication or X-Guest-ID header required"})
	case errors.Is(err, cart.ErrExamNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrAlreadyInCart),
		errors.Is(err, cart.ErrAlreadyOwned),
		errors.Is(err, cart.ErrNotInCart):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cart operation failed"})
	}
}
