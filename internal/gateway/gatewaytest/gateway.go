// Package gatewaytest provides a gateway that allocates orders locally and
// verifies callbacks with the real Razorpay signature scheme.
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/templui/picsellart/internal/gateway"
)

const (
	KeyID         = "rzp_test"
	KeySecret     = "rzp_secret"
	WebhookSecret = "whsec"
)

type Gateway struct {
	*gateway.RazorpayGateway

	mu        sync.Mutex
	requests  []gateway.OrderRequest
	createErr error
}

func New() *Gateway {
	return &Gateway{
		RazorpayGateway: gateway.NewRazorpayGateway(gateway.RazorpayConfig{
			KeyID:         KeyID,
			KeySecret:     KeySecret,
			WebhookSecret: WebhookSecret,
		}),
	}
}

// FailCreate makes every following CreateOrder fail with err.
func (g *Gateway) FailCreate(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createErr = err
}

// CreateOrder returns "gw_" + the caller's reference as the gateway order ID.
func (g *Gateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.Order{ID: "gw_" + req.Reference, KeyID: KeyID}, nil
}

// Requests returns every CreateOrder request received so far.
func (g *Gateway) Requests() []gateway.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.OrderRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// PaidCallback is the checkout payload a client forwards after paying.
func PaidCallback(gatewayOrderID, paymentID string) []byte {
	sig := gateway.SignCheckout(KeySecret, gatewayOrderID, paymentID)
	return []byte(`{"razorpay_order_id":"` + gatewayOrderID + `","razorpay_payment_id":"` + paymentID + `","razorpay_signature":"` + sig + `"}`)
}

// Webhook is a signed Razorpay webhook delivery for a payment entity.
func Webhook(event, gatewayOrderID, paymentID string, amount int64) ([]byte, http.Header) {
	body := []byte(fmt.Sprintf(`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":%d}}}}`,
		event, paymentID, gatewayOrderID, amount))
	headers := http.Header{}
	headers.Set("X-Razorpay-Signature", gateway.SignWebhook(WebhookSecret, body))
	return body, headers
}
