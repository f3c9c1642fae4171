package gateway

import (
	"fmt"
	"log/slog"

	"github.com/templui/picsellart/internal/config"
)

// New creates a payment gateway based on configuration
func New(cfg *config.Config) (Gateway, error) {
	provider := cfg.PaymentProvider

	slog.Info("initializing payment gateway", "provider", provider)

	switch provider {
	case ProviderRazorpay:
		if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
			return nil, fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required when using Razorpay provider")
		}
		return NewRazorpayGateway(RazorpayConfig{
			KeyID:         cfg.RazorpayKeyID,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
			APIURL:        cfg.RazorpayAPIURL,
		}), nil

	case ProviderStripe:
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when using Stripe provider")
		}
		if cfg.StripeWebhookSecret == "" {
			return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when using Stripe provider")
		}
		return NewStripeGateway(cfg), nil

	case ProviderPolar:
		if cfg.PolarAPIKey == "" {
			return nil, fmt.Errorf("POLAR_API_KEY is required when using Polar provider")
		}
		if cfg.PolarWebhookSecret == "" {
			return nil, fmt.Errorf("POLAR_WEBHOOK_SECRET is required when using Polar provider")
		}
		if cfg.PolarProductIDs[ProductPhoto] != "" {
			return nil, fmt.Errorf("POLAR_PRODUCT_IDS must not map %q: Polar products have fixed prices and listings are priced per seller", ProductPhoto)
		}
		slog.Warn("listing sales are disabled with the polar provider, only packs can be bought")
		return NewPolarGateway(cfg), nil

	default:
		return nil, fmt.Errorf("unknown payment provider: %s (supported: razorpay, stripe, polar)", provider)
	}
}
