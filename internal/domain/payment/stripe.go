// internal/domain/payment/stripe.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/webhook"
	"github.com/your-org/examprep-backend/internal/config"
)

// Provider-level sentinel errors. Callers use these to distinguish a
// not-found business outcome from a retryable provider/network failure.
var (
	ErrSessionNotFound         = errors.New("checkout session not found")
	ErrIntentNotFound          = errors.New("payment intent not found")
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")
)

// StripeProvider wraps the Stripe API for checkout sessions, payment intents
// and webhook verification. It is constructed once at process start from
// configuration and reused across requests.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider creates a new Stripe provider from configuration
func NewStripeProvider(cfg *config.Config) *StripeProvider {
	// The SDK uses a process-wide key; set it once here.
	stripe.Key = cfg.Stripe.SecretKey

	return &StripeProvider{
		webhookSecret: cfg.Stripe.WebhookSecret,
	}
}

// CheckoutItem is one purchasable line in a checkout session request
type CheckoutItem struct {
	Name           string
	UnitPriceCents int64
	Quantity       int64
}

// CreateSessionParams describes the checkout session to create
type CreateSessionParams struct {
	Items         []CheckoutItem
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	// StripeCouponID attaches a provider-side discount so the hosted payment
	// page displays the same total the cart computed.
	StripeCouponID string
	Metadata       map[string]string
}

// ProviderSession is the provider's view of a checkout session
type ProviderSession struct {
	ID                  string
	URL                 string
	Status              string // open, complete, expired
	PaymentStatus       string // paid, unpaid, no_payment_required
	AmountSubtotalCents int64
	AmountTotalCents    int64
	Currency            string
	CustomerEmail       string
	CustomerName        string
	PaymentIntentID     string
	PaymentIntentStatus string
	Metadata            map[string]string
	CreatedAt           time.Time
}

// ProviderIntent is the provider's view of a payment intent
type ProviderIntent struct {
	ID           string
	Status       string
	AmountCents  int64
	Currency     string
	CreatedAt    time.Time
	ErrorMessage string
}

// CreateCheckoutSession creates a hosted checkout session and returns its
// identifier and redirect URL. On failure nothing is persisted locally and
// the error is surfaced to the caller for retry.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CreateSessionParams) (*ProviderSession, error) {
	if len(params.Items) == 0 {
		return nil, fmt.Errorf("at least one line item is required")
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	sessionParams.Context = ctx

	for _, item := range params.Items {
		sessionParams.LineItems = append(sessionParams.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(params.Currency),
				UnitAmount: stripe.Int64(item.UnitPriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	if params.StripeCouponID != "" {
		sessionParams.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(params.StripeCouponID)},
		}
	}

	if params.Metadata != nil {
		sessionParams.Metadata = params.Metadata
	}

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return ProviderSessionFromStripe(sess), nil
}

// GetCheckoutSession retrieves a checkout session with its payment intent
// expanded, so a single call yields both the session and payment status.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*ProviderSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx
	getParams.AddExpand("payment_intent")

	sess, err := session.Get(sessionID, getParams)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrSessionNotFound
		}
		return nil, wrapStripeError(err)
	}

	return ProviderSessionFromStripe(sess), nil
}

// GetPaymentIntent retrieves a payment intent's authoritative status
func (p *StripeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*ProviderIntent, error) {
	if paymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx

	pi, err := paymentintent.Get(paymentIntentID, getParams)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrIntentNotFound
		}
		return nil, wrapStripeError(err)
	}

	return ProviderIntentFromStripe(pi), nil
}

// VerifyWebhookSignature verifies a webhook payload against the raw request
// body and returns the parsed event. This is the sole authentication
// mechanism on the webhook endpoint; a failure here halts all processing.
func (p *StripeProvider) VerifyWebhookSignature(payload []byte, signature string) (*stripe.Event, error) {
	if len(payload) == 0 || signature == "" {
		return nil, ErrInvalidWebhookSignature
	}

	// Allow API version mismatch: signature verification is unaffected and
	// the CLI/test tooling often sends a different pinned version.
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ErrInvalidWebhookSignature
	}

	return &event, nil
}

// ProviderSessionFromStripe maps an SDK checkout session to the provider
// view. Used for both API responses and webhook event payloads.
func ProviderSessionFromStripe(sess *stripe.CheckoutSession) *ProviderSession {
	if sess == nil {
		return nil
	}

	ps := &ProviderSession{
		ID:                  sess.ID,
		URL:                 sess.URL,
		Status:              string(sess.Status),
		PaymentStatus:       string(sess.PaymentStatus),
		AmountSubtotalCents: sess.AmountSubtotal,
		AmountTotalCents:    sess.AmountTotal,
		Currency:            string(sess.Currency),
		CustomerEmail:       sess.CustomerEmail,
		Metadata:            sess.Metadata,
		CreatedAt:           time.Unix(sess.Created, 0),
	}

	if sess.CustomerDetails != nil {
		if sess.CustomerDetails.Email != "" {
			ps.CustomerEmail = sess.CustomerDetails.Email
		}
		ps.CustomerName = sess.CustomerDetails.Name
	}

	if sess.PaymentIntent != nil {
		ps.PaymentIntentID = sess.PaymentIntent.ID
		ps.PaymentIntentStatus = string(sess.PaymentIntent.Status)
	}

	return ps
}

func ProviderIntentFromStripe(pi *stripe.PaymentIntent) *ProviderIntent {
	if pi == nil {
		return nil
	}

	intent := &ProviderIntent{
		ID:          pi.ID,
		Status:      string(pi.Status),
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
		CreatedAt:   time.Unix(pi.Created, 0),
	}

	if pi.LastPaymentError != nil {
		intent.ErrorMessage = pi.LastPaymentError.Msg
	}

	return intent
}

// wrapStripeError keeps the provider error message without leaking the full
// SDK error structure to callers.
func wrapStripeError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe API error (%s): %s", stripeErr.Code, stripeErr.Msg)
	}
	return fmt.Errorf("stripe API call failed: %w", err)
}
