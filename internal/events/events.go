// Package events publishes domain events to NATS after the state they
// describe has been committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectListingCreated  = "picsellart.listing.created"
	SubjectPurchaseSettled = "picsellart.purchase.settled"
	SubjectPlanRenewed     = "picsellart.plan.renewed"
)

type ListingCreated struct {
	ListingID string    `json:"listingId"`
	SellerID  string    `json:"sellerId"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

type PurchaseSettled struct {
	OrderID    string    `json:"orderId"`
	PurchaseID string    `json:"purchaseId,omitempty"`
	BuyerUID   string    `json:"buyerUid"`
	PhotoID    string    `json:"photoId"`
	Amount     int64     `json:"amount"`
	SettledAt  time.Time `json:"settledAt"`
}

type PlanRenewed struct {
	OrderID   string    `json:"orderId"`
	SellerID  string    `json:"sellerId"`
	PlanID    string    `json:"planId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close()
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.conn.Publish(subject, data)
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// LogPublisher is used when NATS_URL is unset; events only reach the log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, subject string, event any) error {
	slog.Debug("event published (log only)", "subject", subject, "event", event)
	return nil
}

func (LogPublisher) Close() {}
