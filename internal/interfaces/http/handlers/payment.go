// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/examprep-backend/internal/domain/payment"
	"github.com/your-org/examprep-backend/internal/domain/purchase"
)

// PaymentHandler handles payment status queries
type PaymentHandler struct {
	verifier *purchase.Verifier
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(verifier *purchase.Verifier) *PaymentHandler {
	return &PaymentHandler{
		verifier: verifier,
	}
}

// GetPaymentStatus reports the state of one payment intent
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	paymentIntentID := c.Param("payment_intent_id")

	result, err := h.verifier.CheckPaymentStatus(c.Request.Context(), paymentIntentID)
	if err != nil {
		if errors.Is(err, payment.ErrIntentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to check payment status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
