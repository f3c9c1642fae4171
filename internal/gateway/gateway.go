// Package gateway talks to the external payment providers: it allocates
// provider-side orders and authenticates their callbacks.
package gateway

import (
	"context"
	"errors"
	"net/http"
)

const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
	ProviderPolar    = "polar"

	// ProductPhoto is the OrderRequest.Product of listing orders.
	ProductPhoto = "photo"
)

var (
	// ErrInvalidSignature means the callback could not be authenticated.
	ErrInvalidSignature = errors.New("invalid callback signature")
	// ErrUnavailable means the provider could not be reached or refused the
	// request; nothing was allocated on our side.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrMalformedCallback means the payload authenticated but lacks the
	// fields needed to settle.
	ErrMalformedCallback = errors.New("malformed callback payload")
	// ErrUnsupported means the provider cannot charge the requested product
	// at the requested amount.
	ErrUnsupported = errors.New("not supported by payment gateway")
)

type CallbackStatus string

const (
	CallbackPaid    CallbackStatus = "paid"
	CallbackFailed  CallbackStatus = "failed"
	CallbackIgnored CallbackStatus = "ignored" // authentic but not a payment outcome
)

type OrderRequest struct {
	Reference     string // our PaymentOrder ID
	Amount        int64  // minor units
	Currency      string
	Description   string
	CustomerEmail string
	Product       string // "photo" or a pack ID, used by catalog-based providers
	Metadata      map[string]string
}

// Order is the provider-side handle returned to the client to complete
// payment.
type Order struct {
	ID          string
	CheckoutURL string // hosted checkout, empty for inline checkouts
	KeyID       string // public key for inline checkouts
}

// Callback is an authenticated payment outcome.
type Callback struct {
	OrderID   string
	PaymentID string
	Status    CallbackStatus
	Amount    int64 // minor units paid, 0 when the provider does not report it
	Event     string
	Raw       []byte
}

type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// VerifyCallback authenticates a client callback or a server webhook.
	// It never has side effects.
	VerifyCallback(payload []byte, headers http.Header) (*Callback, error)
}
