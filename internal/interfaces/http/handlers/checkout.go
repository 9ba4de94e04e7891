// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/examprep-backend/internal/domain/cart"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/purchase"
	"github.com/your-org/examprep-backend/internal/interfaces/http/middleware"
)

// CheckoutHandler handles checkout session creation and verification
type CheckoutHandler struct {
	checkoutService *checkout.Service
	verifier        *purchase.Verifier
	cartService     *cart.Service
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkoutService *checkout.Service, verifier *purchase.Verifier, cartService *cart.Service) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		verifier:        verifier,
		cartService:     cartService,
	}
}

// CreateSession opens a provider checkout session. Exam IDs may be supplied
// directly; when omitted, the caller's cart is used.
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	var req struct {
		ExamIDs       []uint `json:"exam_ids"`
		CouponCode    string `json:"coupon_code"`
		CustomerEmail string `json:"customer_email"`
		CustomerName  string `json:"customer_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	userID, guestID := cartIdentity(c)

	examIDs := req.ExamIDs
	if len(examIDs) == 0 {
		ids, err := h.cartService.ExamIDs(c.Request.Context(), userID, guestID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
			return
		}
		examIDs = ids
	}

	email := req.CustomerEmail
	if email == "" {
		if userEmail, ok := middleware.GetUserEmailFromContext(c); ok {
			email = userEmail
		}
	}

	out, err := h.checkoutService.CreateSession(c.Request.Context(), checkout.CreateSessionInput{
		ExamIDs:       examIDs,
		CouponCode:    req.CouponCode,
		UserID:        userID,
		CustomerEmail: email,
		CustomerName:  req.CustomerName,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
		case errors.Is(err, checkout.ErrExamUnavailable),
			errors.Is(err, checkout.ErrInvalidCoupon):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create checkout session"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Checkout session created",
		"data":    out,
	})
}

// VerifySession confirms payment state after the checkout redirect and, on
// success, returns the granted entitlements. Also clears the caller's cart.
func (h *CheckoutHandler) VerifySession(c *gin.Context) {
	sessionID := c.Param("session_id")

	userID, guestID := cartIdentity(c)

	result, err := h.verifier.VerifySession(c.Request.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, checkout.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Checkout session not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment verification failed"})
		return
	}

	if result.Status == purchase.VerifySuccess {
		// Best-effort: the purchased items no longer belong in the cart.
		_ = h.cartService.Clear(c.Request.Context(), userID, guestID)
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetSession returns the local mirror of a checkout session together with any
// entitlements it granted, for the post-checkout summary page.
func (h *CheckoutHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	sess, ents, err := h.verifier.GetSessionDetail(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, checkout.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Checkout session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load checkout session"})
		return
	}

	// A session is only visible to the user who opened it.
	if sess.UserID != nil {
		userID, ok := middleware.GetUserIDFromContext(c)
		if !ok || (userID != *sess.UserID && !middleware.IsAdminFromContext(c)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"session":      sess,
		"entitlements": ents,
	}})
}
