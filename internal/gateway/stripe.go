package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/templui/picsellart/internal/config"
)

// StripeGateway uses hosted Checkout Sessions; the session ID is the
// provider order ID and settlement arrives as a signed webhook.
type StripeGateway struct {
	cfg *config.Config
}

func NewStripeGateway(cfg *config.Config) *StripeGateway {
	// Set Stripe API key
	stripe.Key = cfg.StripeSecretKey

	slog.Info("stripe gateway initialized", "app_env", cfg.AppEnv)

	return &StripeGateway{cfg: cfg}
}

func (s *StripeGateway) Name() string {
	return ProviderStripe
}

func (s *StripeGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	successURL := fmt.Sprintf("%s/orders/%s?session_id={CHECKOUT_SESSION_ID}", s.cfg.AppURL, req.Reference)
	cancelURL := fmt.Sprintf("%s/orders/%s", s.cfg.AppURL, req.Reference)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: req.Metadata,
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout session: %v", ErrUnavailable, err)
	}

	slog.Info("stripe checkout created", "reference", req.Reference, "session_id", sess.ID)
	return &Order{ID: sess.ID, CheckoutURL: sess.URL}, nil
}

func (s *StripeGateway) VerifyCallback(payload []byte, headers http.Header) (*Callback, error) {
	signature := headers.Get("Stripe-Signature")
	if signature == "" {
		return nil, ErrInvalidSignature
	}

	// Use ConstructEventWithOptions to ignore API version mismatch
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		slog.Warn("stripe webhook signature rejected", "error", err)
		return nil, ErrInvalidSignature
	}

	var session struct {
		ID            string `json:"id"`
		PaymentIntent string `json:"payment_intent"`
		PaymentStatus string `json:"payment_status"`
		AmountTotal   int64  `json:"amount_total"`
	}
	cb := &Callback{Event: string(event.Type), Raw: payload, Status: CallbackIgnored}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.expired", "checkout.session.async_payment_failed":
		err = json.Unmarshal(event.Data.Raw, &session)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
	default:
		slog.Info("stripe webhook ignored", "event_type", event.Type)
		return cb, nil
	}

	cb.OrderID = session.ID
	cb.PaymentID = session.PaymentIntent
	cb.Amount = session.AmountTotal

	switch event.Type {
	case "checkout.session.completed":
		// async methods complete unpaid and report later
		if session.PaymentStatus == "paid" || session.PaymentStatus == "no_payment_required" {
			cb.Status = CallbackPaid
		}
	case "checkout.session.async_payment_succeeded":
		cb.Status = CallbackPaid
	default:
		cb.Status = CallbackFailed
	}
	return cb, nil
}
