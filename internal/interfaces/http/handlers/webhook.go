// internal/interfaces/http/handlers/webhook.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v83"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/payment"
	"github.com/your-org/examprep-backend/internal/domain/purchase"
)

// maxWebhookBody bounds the webhook payload read; provider events are small.
const maxWebhookBody = 1 << 20

// WebhookHandler receives provider webhook events. Signature verification is
// the only authentication on this endpoint; unsigned or malformed requests
// get a 400 so the provider retries, everything else gets a 200 so it does
// not. Reconciliation failures are recovered by the verification path.
type WebhookHandler struct {
	provider        *payment.StripeProvider
	reconciler      *purchase.Reconciler
	checkoutService *checkout.Service
	payments        payment.Store
	log             *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(provider *payment.StripeProvider, reconciler *purchase.Reconciler, checkoutService *checkout.Service, payments payment.Store, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		provider:        provider,
		reconciler:      reconciler,
		checkoutService: checkoutService,
		payments:        payments,
		log:             log,
	}
}

// HandleStripeWebhook verifies and dispatches one webhook event
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	event, err := h.provider.VerifyWebhookSignature(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.WithError(err).Warn("Rejected webhook with invalid signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	h.log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	}).Info("Webhook event received")

	switch event.Type {
	case "checkout.session.completed":
		h.handleSessionCompleted(c, event)
	case "checkout.session.expired":
		h.handleSessionExpired(c, event)
	case "payment_intent.succeeded":
		h.handleIntentSucceeded(c, event)
	case "payment_intent.payment_failed":
		h.handleIntentFailed(c, event)
	default:
		h.log.WithField("event_type", event.Type).Debug("Ignoring unhandled webhook event type")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) handleSessionCompleted(c *gin.Context, event *stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.log.WithError(err).Error("Failed to decode checkout session event")
		return
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		h.log.WithFields(logrus.Fields{
			"session_id":     sess.ID,
			"payment_status": sess.PaymentStatus,
		}).Info("Completed session is not paid, skipping reconciliation")
		return
	}

	ps := payment.ProviderSessionFromStripe(&sess)
	input := h.reconciler.BuildInput(c.Request.Context(), ps)

	if _, err := h.reconciler.Reconcile(c.Request.Context(), input); err != nil {
		// Still acknowledged with 200: the client verification path retries
		// the same idempotent reconciliation.
		h.log.WithFields(logrus.Fields{
			"session_id": sess.ID,
		}).WithError(err).Error("Webhook reconciliation failed")
	}
}

func (h *WebhookHandler) handleSessionExpired(c *gin.Context, event *stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.log.WithError(err).Error("Failed to decode checkout session event")
		return
	}

	if err := h.checkoutService.ExpireSession(c.Request.Context(), sess.ID); err != nil {
		h.log.WithField("session_id", sess.ID).WithError(err).Warn("Failed to expire checkout session")
	}
}

func (h *WebhookHandler) handleIntentSucceeded(c *gin.Context, event *stripe.Event) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.log.WithError(err).Error("Failed to decode payment intent event")
		return
	}

	rec := &payment.Record{
		PaymentIntentID: pi.ID,
		AmountCents:     pi.Amount,
		Currency:        string(pi.Currency),
		Status:          payment.StatusSucceeded,
	}
	if err := h.payments.Upsert(c.Request.Context(), rec); err != nil {
		h.log.WithField("payment_intent_id", pi.ID).WithError(err).Error("Failed to record payment success")
	}
}

func (h *WebhookHandler) handleIntentFailed(c *gin.Context, event *stripe.Event) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.log.WithError(err).Error("Failed to decode payment intent event")
		return
	}

	rec := &payment.Record{
		PaymentIntentID: pi.ID,
		AmountCents:     pi.Amount,
		Currency:        string(pi.Currency),
		Status:          payment.StatusFailed,
	}
	if pi.LastPaymentError != nil {
		rec.ErrorMessage = pi.LastPaymentError.Msg
	}
	if err := h.payments.Upsert(c.Request.Context(), rec); err != nil {
		h.log.WithField("payment_intent_id", pi.ID).WithError(err).Error("Failed to record payment failure")
	}

	h.log.WithFields(logrus.Fields{
		"payment_intent_id": pi.ID,
		"error_message":     rec.ErrorMessage,
	}).Info("Payment failure recorded")
}
