package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/templui/picsellart/internal/config"
)

func polarConfig() *config.Config {
	return &config.Config{
		PaymentProvider:    ProviderPolar,
		PolarAPIKey:        "polar_key",
		PolarWebhookSecret: "polar_whsec",
		PolarSandboxMode:   true,
		PolarProductIDs:    map[string]string{"basic": "prod_basic"},
	}
}

func TestNewRejectsPolarPhotoProduct(t *testing.T) {
	cfg := polarConfig()
	gw, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, ProviderPolar, gw.Name())

	cfg.PolarProductIDs[ProductPhoto] = "prod_photo"
	_, err = New(cfg)
	assert.ErrorContains(t, err, "POLAR_PRODUCT_IDS")
}

func TestPolarGateway_RefusesListingOrders(t *testing.T) {
	g := NewPolarGateway(polarConfig())

	_, err := g.CreateOrder(context.Background(), OrderRequest{Reference: "o1", Amount: 19900, Product: ProductPhoto})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPolarGateway_VerifyOrderPaid(t *testing.T) {
	secret := []byte("polar_whsec")
	cfg := polarConfig()
	cfg.PolarWebhookSecret = string(secret)
	g := NewPolarGateway(cfg)

	wh, err := standardwebhooks.NewWebhookRaw(secret)
	require.NoError(t, err)

	body := []byte(`{"type":"order.paid","data":{"id":"ord_1","checkout_id":"chk_1","status":"paid","amount":10000}}`)
	now := time.Now()
	sig, err := wh.Sign("msg_1", now, body)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("webhook-id", "msg_1")
	headers.Set("webhook-timestamp", strconv.FormatInt(now.Unix(), 10))
	headers.Set("webhook-signature", sig)

	cb, err := g.VerifyCallback(body, headers)
	require.NoError(t, err)
	assert.Equal(t, CallbackPaid, cb.Status)
	assert.Equal(t, "chk_1", cb.OrderID)
	assert.Equal(t, "ord_1", cb.PaymentID)
	assert.Equal(t, int64(10000), cb.Amount)

	headers.Set("webhook-signature", "v1,AAAA")
	_, err = g.VerifyCallback(body, headers)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeGateway_VerifySessionAmount(t *testing.T) {
	const secret = "whsec_stripe"
	g := NewStripeGateway(&config.Config{StripeSecretKey: "sk_test", StripeWebhookSecret: secret})

	event := func(typ, status string) []byte {
		return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":"cs_1","payment_intent":"pi_1","payment_status":%q,"amount_total":19900}}}`, typ, status))
	}
	verify := func(body []byte) (*Callback, error) {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: secret})
		headers := http.Header{}
		headers.Set("Stripe-Signature", signed.Header)
		return g.VerifyCallback(body, headers)
	}

	cb, err := verify(event("checkout.session.completed", "paid"))
	require.NoError(t, err)
	assert.Equal(t, CallbackPaid, cb.Status)
	assert.Equal(t, "cs_1", cb.OrderID)
	assert.Equal(t, int64(19900), cb.Amount)

	cb, err = verify(event("checkout.session.expired", "unpaid"))
	require.NoError(t, err)
	assert.Equal(t, CallbackFailed, cb.Status)

	_, err = g.VerifyCallback(event("checkout.session.completed", "paid"), http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
