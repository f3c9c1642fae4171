package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const razorpaySignatureHeader = "X-Razorpay-Signature"

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	APIURL        string
	HTTPClient    *http.Client
	MaxRetries    uint64
}

// RazorpayGateway uses the Orders API and the checkout/webhook HMAC scheme.
type RazorpayGateway struct {
	cfg    RazorpayConfig
	client *http.Client
}

func NewRazorpayGateway(cfg RazorpayConfig) *RazorpayGateway {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.razorpay.com"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RazorpayGateway{cfg: cfg, client: client}
}

func (g *RazorpayGateway) Name() string {
	return ProviderRazorpay
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateOrder allocates an order for req.Amount. Network errors and 5xx
// answers are retried with exponential backoff; the receipt makes retries
// traceable on the provider side.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(map[string]any{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  truncate(req.Reference, 40),
		"notes":    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	var order razorpayOrder
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(g.cfg.APIURL, "/")+"/v1/orders", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("razorpay returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("razorpay returned %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
		}
		return json.Unmarshal(respBody, &order)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.cfg.MaxRetries), ctx)
	err = backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		slog.Warn("razorpay create order failed, retrying", "error", err, "wait", wait, "reference", req.Reference)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrUnavailable)
	}

	slog.Info("razorpay order created", "reference", req.Reference, "order_id", order.ID, "amount", order.Amount)
	return &Order{ID: order.ID, KeyID: g.cfg.KeyID}, nil
}

type razorpayCheckout struct {
	OrderID      string `json:"razorpay_order_id"`
	PaymentID    string `json:"razorpay_payment_id"`
	Signature    string `json:"razorpay_signature"`
	AltOrderID   string `json:"orderId"`
	AltPaymentID string `json:"paymentId"`
	AltSignature string `json:"signature"`
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
				Amount  int64  `json:"amount"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// VerifyCallback accepts either the checkout handler payload (signature over
// "order_id|payment_id" with the key secret) or a webhook delivery (signature
// header over the raw body with the webhook secret).
func (g *RazorpayGateway) VerifyCallback(payload []byte, headers http.Header) (*Callback, error) {
	if sig := headers.Get(razorpaySignatureHeader); sig != "" {
		return g.verifyWebhook(payload, sig)
	}

	var cb razorpayCheckout
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	orderID := firstNonEmpty(cb.OrderID, cb.AltOrderID)
	paymentID := firstNonEmpty(cb.PaymentID, cb.AltPaymentID)
	signature := firstNonEmpty(cb.Signature, cb.AltSignature)
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, fmt.Errorf("%w: order id, payment id and signature are required", ErrMalformedCallback)
	}

	if !validHMAC(g.cfg.KeySecret, []byte(orderID+"|"+paymentID), signature) {
		return nil, ErrInvalidSignature
	}

	return &Callback{
		OrderID:   orderID,
		PaymentID: paymentID,
		Status:    CallbackPaid,
		Event:     "checkout",
		Raw:       payload,
	}, nil
}

func (g *RazorpayGateway) verifyWebhook(payload []byte, signature string) (*Callback, error) {
	if g.cfg.WebhookSecret == "" {
		slog.Warn("razorpay webhook received but no webhook secret configured")
		return nil, ErrInvalidSignature
	}
	if !validHMAC(g.cfg.WebhookSecret, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var event razorpayWebhook
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	entity := event.Payload.Payment.Entity
	cb := &Callback{
		OrderID:   entity.OrderID,
		PaymentID: entity.ID,
		Amount:    entity.Amount,
		Event:     event.Event,
		Raw:       payload,
	}
	switch event.Event {
	case "payment.captured", "order.paid":
		cb.Status = CallbackPaid
	case "payment.failed":
		// one failed attempt; the buyer may retry on the same order, so
		// abandonment is left to the order TTL
		slog.Info("razorpay payment attempt failed", "order_id", entity.OrderID, "payment_id", entity.ID)
		cb.Status = CallbackIgnored
		return cb, nil
	default:
		cb.Status = CallbackIgnored
		return cb, nil
	}
	if cb.OrderID == "" {
		return nil, fmt.Errorf("%w: payment entity has no order id", ErrMalformedCallback)
	}
	return cb, nil
}

// SignCheckout computes the checkout signature Razorpay returns to the
// client for a successful payment.
func SignCheckout(keySecret, orderID, paymentID string) string {
	return sign(keySecret, []byte(orderID+"|"+paymentID))
}

// SignWebhook computes the X-Razorpay-Signature header for body.
func SignWebhook(webhookSecret string, body []byte) string {
	return sign(webhookSecret, body)
}

func sign(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func validHMAC(secret string, msg []byte, signature string) bool {
	if secret == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hmac.Equal(mac.Sum(nil), got)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
