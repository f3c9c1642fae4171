package model

import "time"

type OrderKind string

const (
	OrderKindListing OrderKind = "listing"
	OrderKindPlan    OrderKind = "plan"
)

func (k OrderKind) Valid() bool {
	return k == OrderKindListing || k == OrderKindPlan
}

type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusSettled OrderStatus = "settled"
	OrderStatusFailed  OrderStatus = "failed"
)

// PaymentOrder moves created -> settled or created -> failed, never back.
type PaymentOrder struct {
	ID               string      `db:"id"`
	GatewayOrderID   string      `db:"gateway_order_id"`
	Provider         string      `db:"provider"`
	Kind             OrderKind   `db:"kind"`
	SubjectID        string      `db:"subject_id"`   // listing ID or pack ID
	RequesterID      string      `db:"requester_id"` // buyer or seller
	RequesterEmail   string      `db:"requester_email"`
	Amount           int64       `db:"amount"`
	Currency         string      `db:"currency"`
	Status           OrderStatus `db:"status"`
	PaymentID        *string     `db:"payment_id"`
	SignaturePayload *string     `db:"signature_payload"` // raw verified callback
	ResultRef        *string     `db:"result_ref"`        // purchase ID, or plan ID after renewal
	FailureReason    *string     `db:"failure_reason"`
	RefundRequired   bool        `db:"refund_required"` // settled without granting anything new
	Version          int64       `db:"version"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
	SettledAt        *time.Time  `db:"settled_at"`
}

func (o *PaymentOrder) IsTerminal() bool {
	return o.Status == OrderStatusSettled || o.Status == OrderStatusFailed
}
