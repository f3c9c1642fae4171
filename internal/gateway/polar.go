package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	polargo "github.com/polarsource/polar-go"
	"github.com/polarsource/polar-go/models/components"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/templui/picsellart/internal/config"
)

// PolarGateway sells through Polar checkouts. Polar prices live on its
// products, so each product ID must be configured at the matching price.
type PolarGateway struct {
	cfg    *config.Config
	client *polargo.Polar
}

func NewPolarGateway(cfg *config.Config) *PolarGateway {
	var serverOption polargo.SDKOption
	if cfg.PolarSandboxMode {
		serverOption = polargo.WithServer(polargo.ServerSandbox)
		slog.Info("polar using sandbox mode", "app_env", cfg.AppEnv)
	} else {
		serverOption = polargo.WithServer(polargo.ServerProduction)
		slog.Info("polar using production mode", "app_env", cfg.AppEnv)
	}

	client := polargo.New(
		polargo.WithSecurity(cfg.PolarAPIKey),
		serverOption,
	)

	return &PolarGateway{cfg: cfg, client: client}
}

func (p *PolarGateway) Name() string {
	return ProviderPolar
}

// CreateOrder opens a checkout for a fixed-price Polar product. Listings are
// priced per seller and cannot be mapped to one product, so they are refused.
func (p *PolarGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Product == ProductPhoto {
		return nil, fmt.Errorf("%w: polar cannot charge per-listing prices", ErrUnsupported)
	}
	productID := p.cfg.PolarProductIDs[req.Product]
	if productID == "" {
		return nil, fmt.Errorf("no polar product configured for: %s", req.Product)
	}

	returnURL := fmt.Sprintf("%s/orders/%s", p.cfg.AppURL, req.Reference)

	metadata := map[string]components.CheckoutCreateMetadata{
		"reference": components.CreateCheckoutCreateMetadataStr(req.Reference),
	}
	for k, v := range req.Metadata {
		metadata[k] = components.CreateCheckoutCreateMetadataStr(v)
	}

	create := components.CheckoutCreate{
		Products:   []string{productID},
		SuccessURL: polargo.String(returnURL),
		ReturnURL:  polargo.String(returnURL),
		Metadata:   metadata,
	}
	if req.CustomerEmail != "" {
		create.CustomerEmail = polargo.String(req.CustomerEmail)
	}

	res, err := p.client.Checkouts.Create(ctx, create)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout: %v", ErrUnavailable, err)
	}
	if res == nil || res.Checkout == nil {
		return nil, fmt.Errorf("%w: checkout response is nil", ErrUnavailable)
	}

	slog.Info("polar checkout created", "reference", req.Reference, "product", req.Product, "checkout_id", res.Checkout.ID)
	return &Order{ID: res.Checkout.ID, CheckoutURL: res.Checkout.URL}, nil
}

func (p *PolarGateway) VerifyCallback(payload []byte, headers http.Header) (*Callback, error) {
	wh, err := standardwebhooks.NewWebhookRaw([]byte(p.cfg.PolarWebhookSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook verifier: %w", err)
	}

	httpHeaders := http.Header{}
	httpHeaders.Set("webhook-id", headers.Get("webhook-id"))
	httpHeaders.Set("webhook-timestamp", headers.Get("webhook-timestamp"))
	httpHeaders.Set("webhook-signature", headers.Get("webhook-signature"))

	err = wh.Verify(payload, httpHeaders)
	if err != nil {
		slog.Warn("polar webhook signature rejected", "error", err)
		return nil, ErrInvalidSignature
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			ID         string `json:"id"`
			CheckoutID string `json:"checkout_id"`
			Status     string `json:"status"`
			Amount     int64  `json:"amount"`
		} `json:"data"`
	}
	err = json.Unmarshal(payload, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	cb := &Callback{Event: event.Type, Raw: payload, Status: CallbackIgnored}
	switch event.Type {
	case "order.paid":
		if event.Data.CheckoutID == "" {
			return nil, fmt.Errorf("%w: order has no checkout id", ErrMalformedCallback)
		}
		cb.OrderID = event.Data.CheckoutID
		cb.PaymentID = event.Data.ID
		cb.Amount = event.Data.Amount
		cb.Status = CallbackPaid
	case "checkout.updated":
		cb.OrderID = event.Data.ID
		if event.Data.Status == "expired" || event.Data.Status == "failed" {
			cb.Status = CallbackFailed
		}
	default:
		slog.Info("polar webhook ignored", "event_type", event.Type)
	}
	return cb, nil
}
