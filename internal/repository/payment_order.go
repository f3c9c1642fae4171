package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/model"
)

var (
	ErrOrderNotFound        = errors.New("payment order not found")
	ErrOrderExists          = errors.New("payment order already exists")
	ErrOrderVersionConflict = errors.New("payment order is no longer in the expected state")
)

type PaymentOrderRepository interface {
	Create(ctx context.Context, order *model.PaymentOrder) error
	ByID(ctx context.Context, id string) (*model.PaymentOrder, error)
	ByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.PaymentOrder, error)
	// Settle moves a created order to settled. It fails with
	// ErrOrderVersionConflict when the order moved on in the meantime.
	Settle(ctx context.Context, order *model.PaymentOrder) error
	Fail(ctx context.Context, order *model.PaymentOrder) error
	StaleCreated(ctx context.Context, before time.Time, limit int) ([]*model.PaymentOrder, error)
	WithTx(tx *sqlx.Tx) PaymentOrderRepository
}

type paymentOrderRepository struct {
	db Querier
}

func NewPaymentOrderRepository(db *sqlx.DB) PaymentOrderRepository {
	return &paymentOrderRepository{db: db}
}

func (r *paymentOrderRepository) WithTx(tx *sqlx.Tx) PaymentOrderRepository {
	return &paymentOrderRepository{db: tx}
}

func (r *paymentOrderRepository) Create(ctx context.Context, order *model.PaymentOrder) error {
	if order.Version == 0 {
		order.Version = 1
	}
	query := `INSERT INTO payment_orders (id, gateway_order_id, provider, kind, subject_id, requester_id, requester_email, amount, currency, status, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.GatewayOrderID,
		order.Provider,
		order.Kind,
		order.SubjectID,
		order.RequesterID,
		order.RequesterEmail,
		order.Amount,
		order.Currency,
		order.Status,
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrOrderExists
	}
	return err
}

func (r *paymentOrderRepository) ByID(ctx context.Context, id string) (*model.PaymentOrder, error) {
	return r.get(ctx, `SELECT * FROM payment_orders WHERE id = $1`, id)
}

func (r *paymentOrderRepository) ByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.PaymentOrder, error) {
	return r.get(ctx, `SELECT * FROM payment_orders WHERE gateway_order_id = $1`, gatewayOrderID)
}

func (r *paymentOrderRepository) get(ctx context.Context, query string, arg string) (*model.PaymentOrder, error) {
	order := &model.PaymentOrder{}
	err := r.db.GetContext(ctx, order, query, arg)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *paymentOrderRepository) Settle(ctx context.Context, order *model.PaymentOrder) error {
	query := `UPDATE payment_orders
	          SET status = $1, payment_id = $2, signature_payload = $3, result_ref = $4, refund_required = $5,
	              settled_at = $6, updated_at = $7, version = version + 1
	          WHERE id = $8 AND status = $9 AND version = $10`

	result, err := r.db.ExecContext(ctx, query,
		model.OrderStatusSettled,
		order.PaymentID,
		order.SignaturePayload,
		order.ResultRef,
		order.RefundRequired,
		order.SettledAt,
		order.UpdatedAt,
		order.ID,
		model.OrderStatusCreated,
		order.Version,
	)
	if err != nil {
		return err
	}
	if err := expectOneRow(result, ErrOrderVersionConflict); err != nil {
		return err
	}

	order.Status = model.OrderStatusSettled
	order.Version++
	return nil
}

func (r *paymentOrderRepository) Fail(ctx context.Context, order *model.PaymentOrder) error {
	query := `UPDATE payment_orders
	          SET status = $1, failure_reason = $2, payment_id = COALESCE($3, payment_id), refund_required = $4,
	              updated_at = $5, version = version + 1
	          WHERE id = $6 AND status = $7 AND version = $8`

	result, err := r.db.ExecContext(ctx, query,
		model.OrderStatusFailed,
		order.FailureReason,
		order.PaymentID,
		order.RefundRequired,
		order.UpdatedAt,
		order.ID,
		model.OrderStatusCreated,
		order.Version,
	)
	if err != nil {
		return err
	}
	if err := expectOneRow(result, ErrOrderVersionConflict); err != nil {
		return err
	}

	order.Status = model.OrderStatusFailed
	order.Version++
	return nil
}

func (r *paymentOrderRepository) StaleCreated(ctx context.Context, before time.Time, limit int) ([]*model.PaymentOrder, error) {
	var orders []*model.PaymentOrder
	query := `SELECT * FROM payment_orders WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3`

	err := r.db.SelectContext(ctx, &orders, query, model.OrderStatusCreated, before, limit)
	if err != nil {
		return nil, err
	}

	return orders, nil
}
