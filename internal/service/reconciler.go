package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/events"
	"github.com/templui/picsellart/internal/gateway"
	"github.com/templui/picsellart/internal/metrics"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/repository"
)

const failureAmountMismatch = "amount_mismatch"

type ReconcilerConfig struct {
	Currency     string
	TxMaxRetries int
}

// Reconciler owns the PaymentOrder state machine: created -> settled or
// created -> failed. Settlement only follows a callback the gateway
// authenticated, and grants ownership or a plan renewal at most once.
type Reconciler struct {
	db        *sqlx.DB
	orders    repository.PaymentOrderRepository
	purchases repository.PurchaseRepository
	plans     repository.SellerPlanRepository
	listings  repository.ListingRepository
	gateway   gateway.Gateway
	previews  PreviewURLs
	publisher events.Publisher
	email     *EmailService
	metrics   *metrics.Metrics
	cfg       ReconcilerConfig
	now       func() time.Time
}

func NewReconciler(
	database *sqlx.DB,
	orders repository.PaymentOrderRepository,
	purchases repository.PurchaseRepository,
	plans repository.SellerPlanRepository,
	listings repository.ListingRepository,
	gw gateway.Gateway,
	previews PreviewURLs,
	publisher events.Publisher,
	email *EmailService,
	m *metrics.Metrics,
	cfg ReconcilerConfig,
) *Reconciler {
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	return &Reconciler{
		db:        database,
		orders:    orders,
		purchases: purchases,
		plans:     plans,
		listings:  listings,
		gateway:   gw,
		previews:  previews,
		publisher: publisher,
		email:     email,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CheckoutOrder is handed to the client to complete payment.
type CheckoutOrder struct {
	OrderID        string          `json:"orderId"`
	GatewayOrderID string          `json:"gatewayOrderId"`
	Provider       string          `json:"provider"`
	Kind           model.OrderKind `json:"kind"`
	SubjectID      string          `json:"subjectId"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	KeyID          string          `json:"keyId,omitempty"`
	CheckoutURL    string          `json:"checkoutUrl,omitempty"`
}

// SettlementResult describes a terminal order. It is derived from the
// stored order only, so repeated callbacks observe the same value.
type SettlementResult struct {
	OrderID        string            `json:"orderId"`
	GatewayOrderID string            `json:"gatewayOrderId"`
	Kind           model.OrderKind   `json:"kind"`
	SubjectID      string            `json:"subjectId"`
	Status         model.OrderStatus `json:"status"`
	Amount         int64             `json:"amount"`
	PaymentID      string            `json:"paymentId,omitempty"`
	ResultRef      string            `json:"resultRef,omitempty"` // purchase ID or pack ID
	RefundRequired bool              `json:"refundRequired,omitempty"`
	SettledAt      *time.Time        `json:"settledAt,omitempty"`
}

func resultFromOrder(o *model.PaymentOrder) *SettlementResult {
	r := &SettlementResult{
		OrderID:        o.ID,
		GatewayOrderID: o.GatewayOrderID,
		Kind:           o.Kind,
		SubjectID:      o.SubjectID,
		Status:         o.Status,
		Amount:         o.Amount,
		RefundRequired: o.RefundRequired,
		SettledAt:      o.SettledAt,
	}
	if o.PaymentID != nil {
		r.PaymentID = *o.PaymentID
	}
	if o.ResultRef != nil {
		r.ResultRef = *o.ResultRef
	}
	return r
}

// CreateOrder allocates a gateway order for a listing purchase or a pack.
// The amount is always derived here from the subject. Nothing is persisted
// until the gateway acknowledged the order.
func (r *Reconciler) CreateOrder(ctx context.Context, kind model.OrderKind, subjectID string, requester model.Identity) (*CheckoutOrder, error) {
	if requester.UID == "" {
		return nil, ErrUnauthenticated
	}

	var (
		amount      int64
		product     string
		description string
	)
	switch kind {
	case model.OrderKindListing:
		listing, err := r.listings.ByID(ctx, subjectID)
		if errors.Is(err, repository.ErrListingNotFound) {
			return nil, ErrListingNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get listing: %w", err)
		}
		if listing.SellerID == requester.UID {
			return nil, ErrOwnListing
		}

		_, err = r.purchases.ByBuyerAndPhoto(ctx, requester.UID, subjectID)
		if err == nil {
			return nil, ErrAlreadyOwned
		}
		if !errors.Is(err, repository.ErrPurchaseNotFound) {
			return nil, fmt.Errorf("failed to check ownership: %w", err)
		}
		amount, product, description = listing.Price, gateway.ProductPhoto, listing.Title

	case model.OrderKindPlan:
		pack, ok := model.PackByID(subjectID)
		if !ok {
			return nil, ErrPackNotFound
		}
		amount, product, description = pack.Price, pack.ID, pack.Name+" seller pack"

	default:
		return nil, ValidationError(fmt.Sprintf("unknown order kind %q", kind))
	}

	orderID := uuid.New().String()
	gwOrder, err := r.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Reference:     orderID,
		Amount:        amount,
		Currency:      r.cfg.Currency,
		Description:   description,
		CustomerEmail: requester.Email,
		Product:       product,
		Metadata: map[string]string{
			"order_id":   orderID,
			"kind":       string(kind),
			"subject_id": subjectID,
		},
	})
	if err != nil {
		slog.Error("failed to create gateway order", "error", err, "kind", kind, "subject_id", subjectID, "requester_id", requester.UID)
		if errors.Is(err, gateway.ErrUnsupported) {
			return nil, wrap(ErrPaymentUnsupported, err)
		}
		return nil, wrap(ErrGatewayUnavailable, err)
	}

	now := r.now().UTC()
	order := &model.PaymentOrder{
		ID:             orderID,
		GatewayOrderID: gwOrder.ID,
		Provider:       r.gateway.Name(),
		Kind:           kind,
		SubjectID:      subjectID,
		RequesterID:    requester.UID,
		RequesterEmail: requester.Email,
		Amount:         amount,
		Currency:       r.cfg.Currency,
		Status:         model.OrderStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = r.orders.Create(ctx, order)
	if err != nil {
		// the gateway order is orphaned and will expire on its side
		slog.Error("failed to persist payment order", "error", err, "order_id", orderID, "gateway_order_id", gwOrder.ID)
		return nil, fmt.Errorf("failed to persist payment order: %w", err)
	}

	r.metrics.OrdersCreated.WithLabelValues(string(kind)).Inc()
	slog.Info("payment order created", "order_id", orderID, "gateway_order_id", gwOrder.ID, "kind", kind, "subject_id", subjectID, "amount", amount)

	return &CheckoutOrder{
		OrderID:        orderID,
		GatewayOrderID: gwOrder.ID,
		Provider:       r.gateway.Name(),
		Kind:           kind,
		SubjectID:      subjectID,
		Amount:         amount,
		Currency:       r.cfg.Currency,
		KeyID:          gwOrder.KeyID,
		CheckoutURL:    gwOrder.CheckoutURL,
	}, nil
}

// Callback is a raw gateway callback as received over HTTP.
type Callback struct {
	Payload []byte
	Headers http.Header
	// Requester is the authenticated caller for client-forwarded callbacks
	// and nil for server-to-server webhooks.
	Requester *model.Identity
	// Kind restricts the callback to one order kind when set.
	Kind model.OrderKind
}

// VerifyAndSettle authenticates cb and applies its outcome. A nil result
// with a nil error means the callback carried no payment outcome. An
// invalid signature never touches stored state.
func (r *Reconciler) VerifyAndSettle(ctx context.Context, cb Callback) (*SettlementResult, error) {
	verified, err := r.gateway.VerifyCallback(cb.Payload, cb.Headers)
	if errors.Is(err, gateway.ErrInvalidSignature) {
		r.metrics.SignatureFailures.Inc()
		slog.Warn("payment callback rejected", "reason", "invalid_signature", "provider", r.gateway.Name())
		return nil, wrap(ErrInvalidSignature, err)
	}
	if errors.Is(err, gateway.ErrMalformedCallback) {
		return nil, ValidationError(err.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify callback: %w", err)
	}
	if verified.Status == gateway.CallbackIgnored {
		slog.Debug("payment callback ignored", "event", verified.Event)
		return nil, nil
	}

	order, err := r.orders.ByGatewayOrderID(ctx, verified.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		slog.Warn("verified callback for unknown order", "gateway_order_id", verified.OrderID, "event", verified.Event)
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment order: %w", err)
	}

	if cb.Requester != nil && cb.Requester.UID != order.RequesterID {
		slog.Warn("payment callback from another user", "order_id", order.ID, "requester_id", cb.Requester.UID)
		return nil, ErrWrongRequester
	}
	if cb.Kind != "" && cb.Kind != order.Kind {
		return nil, ValidationError(fmt.Sprintf("order %s is not a %s order", order.ID, cb.Kind))
	}

	switch {
	case order.Status == model.OrderStatusSettled:
		slog.Info("duplicate payment callback", "order_id", order.ID, "event", verified.Event)
		return resultFromOrder(order), nil
	case order.Status == model.OrderStatusFailed && verified.Status == gateway.CallbackPaid:
		r.metrics.RefundsRequired.Inc()
		slog.Error("payment captured for failed order, refund required",
			"order_id", order.ID,
			"gateway_order_id", order.GatewayOrderID,
			"payment_id", verified.PaymentID,
			"amount", order.Amount,
		)
		return nil, ErrOrderFailed
	case order.Status == model.OrderStatusFailed:
		return resultFromOrder(order), nil
	}

	if verified.Status == gateway.CallbackFailed {
		return r.fail(ctx, order.ID, verified, "payment_failed")
	}
	return r.settle(ctx, order.ID, verified)
}

func (r *Reconciler) settle(ctx context.Context, orderID string, cb *gateway.Callback) (*SettlementResult, error) {
	var (
		order    *model.PaymentOrder
		purchase *model.Purchase
		plan     *model.SellerPlan
		replay   bool
		mismatch bool
	)

	err := runTx(ctx, r.db, r.cfg.TxMaxRetries, func(tx *sqlx.Tx) error {
		purchase, plan, replay, mismatch = nil, nil, false, false
		orders := r.orders.WithTx(tx)

		var err error
		order, err = orders.ByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to get payment order: %w", err)
		}
		switch order.Status {
		case model.OrderStatusSettled:
			replay = true
			return nil
		case model.OrderStatusFailed:
			return ErrOrderFailed
		}

		now := r.now().UTC()
		if cb.Amount != 0 && cb.Amount != order.Amount {
			mismatch = true
			reason := failureAmountMismatch
			order.FailureReason = &reason
			order.RefundRequired = true
			order.PaymentID = &cb.PaymentID
			order.UpdatedAt = now
			return orders.Fail(ctx, order)
		}

		var ref string
		switch order.Kind {
		case model.OrderKindListing:
			purchase, err = r.grantPurchase(ctx, tx, order, now)
			if err != nil {
				return err
			}
			ref = purchase.ID
			order.RefundRequired = purchase.OrderID != order.ID
		case model.OrderKindPlan:
			plan, err = r.renewPlan(ctx, tx, order, now)
			if err != nil {
				return err
			}
			ref = plan.PlanID
		}

		order.PaymentID = &cb.PaymentID
		raw := string(cb.Raw)
		order.SignaturePayload = &raw
		order.ResultRef = &ref
		order.SettledAt = &now
		order.UpdatedAt = now
		return orders.Settle(ctx, order)
	})
	if errors.Is(err, ErrOrderFailed) {
		r.metrics.RefundsRequired.Inc()
		slog.Error("payment captured for failed order, refund required", "order_id", orderID, "payment_id", cb.PaymentID)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to settle payment order", "error", err, "order_id", orderID)
		return nil, err
	}
	if mismatch {
		r.metrics.RefundsRequired.Inc()
		r.metrics.OrdersFailed.WithLabelValues(string(order.Kind), failureAmountMismatch).Inc()
		slog.Error("paid amount does not match order, refund required",
			"order_id", order.ID,
			"gateway_order_id", order.GatewayOrderID,
			"payment_id", cb.PaymentID,
			"expected", order.Amount,
			"paid", cb.Amount,
		)
		return nil, ErrAmountMismatch
	}

	result := resultFromOrder(order)
	if replay {
		slog.Info("duplicate payment callback", "order_id", order.ID, "event", cb.Event)
		return result, nil
	}

	r.metrics.OrdersSettled.WithLabelValues(string(order.Kind)).Inc()
	slog.Info("payment order settled", "order_id", order.ID, "kind", order.Kind, "subject_id", order.SubjectID, "result_ref", result.ResultRef)

	if order.RefundRequired {
		r.metrics.RefundsRequired.Inc()
		slog.Error("double payment for owned listing, refund required",
			"order_id", order.ID,
			"existing_purchase_id", purchase.ID,
			"buyer_uid", order.RequesterID,
			"photo_id", order.SubjectID,
			"amount", order.Amount,
		)
		return result, nil
	}

	r.afterSettle(ctx, order, purchase, plan)
	return result, nil
}

// grantPurchase creates the ownership record for a listing order, or
// returns the existing one when the buyer already owns the listing.
func (r *Reconciler) grantPurchase(ctx context.Context, tx *sqlx.Tx, order *model.PaymentOrder, now time.Time) (*model.Purchase, error) {
	purchases := r.purchases.WithTx(tx)

	existing, err := purchases.ByBuyerAndPhoto(ctx, order.RequesterID, order.SubjectID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrPurchaseNotFound) {
		return nil, fmt.Errorf("failed to check ownership: %w", err)
	}

	listing, err := r.listings.WithTx(tx).ByID(ctx, order.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	purchase := &model.Purchase{
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		BuyerUID:   order.RequesterID,
		PhotoID:    listing.ID,
		Price:      order.Amount,
		Title:      listing.Title,
		PreviewURL: r.previews.PublicURL(listing.PreviewPath),
		CreatedAt:  now,
	}
	err = purchases.Create(ctx, purchase)
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	return purchase, nil
}

func (r *Reconciler) renewPlan(ctx context.Context, tx *sqlx.Tx, order *model.PaymentOrder, now time.Time) (*model.SellerPlan, error) {
	pack, ok := model.PackByID(order.SubjectID)
	if !ok {
		return nil, fmt.Errorf("order %s references unknown pack %q", order.ID, order.SubjectID)
	}
	plans := r.plans.WithTx(tx)

	plan, err := plans.BySellerID(ctx, order.RequesterID)
	if errors.Is(err, repository.ErrPlanNotFound) {
		plan = &model.SellerPlan{SellerID: order.RequesterID, ActivatedAt: now, ExpiresAt: now}
		plan.Renew(pack, now)
		err = plans.Create(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("failed to create seller plan: %w", err)
		}
		return plan, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seller plan: %w", err)
	}

	plan.Renew(pack, now)
	err = plans.Update(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to renew seller plan: %w", err)
	}
	return plan, nil
}

// afterSettle emits receipts and events. Failures are logged only; the
// settlement is already committed.
func (r *Reconciler) afterSettle(ctx context.Context, order *model.PaymentOrder, purchase *model.Purchase, plan *model.SellerPlan) {
	ctx = context.WithoutCancel(ctx)
	amount := model.FormatAmount(order.Amount, order.Currency)
	paymentID := ""
	if order.PaymentID != nil {
		paymentID = *order.PaymentID
	}

	switch {
	case purchase != nil:
		err := r.publisher.Publish(ctx, events.SubjectPurchaseSettled, events.PurchaseSettled{
			OrderID:    order.ID,
			PurchaseID: purchase.ID,
			BuyerUID:   purchase.BuyerUID,
			PhotoID:    purchase.PhotoID,
			Amount:     order.Amount,
			SettledAt:  *order.SettledAt,
		})
		if err != nil {
			slog.Error("failed to publish event", "error", err, "subject", events.SubjectPurchaseSettled, "order_id", order.ID)
		}
		err = r.email.SendPurchaseReceipt(ctx, order.RequesterEmail, PurchaseReceipt{
			OrderID:   order.ID,
			PhotoID:   purchase.PhotoID,
			Title:     purchase.Title,
			Amount:    amount,
			PaymentID: paymentID,
		})
		if err != nil {
			slog.Error("failed to send purchase receipt", "error", err, "order_id", order.ID)
		}

	case plan != nil:
		err := r.publisher.Publish(ctx, events.SubjectPlanRenewed, events.PlanRenewed{
			OrderID:   order.ID,
			SellerID:  plan.SellerID,
			PlanID:    plan.PlanID,
			ExpiresAt: plan.ExpiresAt,
		})
		if err != nil {
			slog.Error("failed to publish event", "error", err, "subject", events.SubjectPlanRenewed, "order_id", order.ID)
		}
		pack, _ := model.PackByID(plan.PlanID)
		err = r.email.SendPlanReceipt(ctx, order.RequesterEmail, PlanReceipt{
			OrderID:     order.ID,
			PackName:    pack.Name,
			Amount:      amount,
			UploadLimit: plan.UploadLimit,
			ExpiresAt:   plan.ExpiresAt.Format("2 Jan 2006"),
		})
		if err != nil {
			slog.Error("failed to send plan receipt", "error", err, "order_id", order.ID)
		}
	}
}

// fail moves a created order to failed after a verified failure event.
func (r *Reconciler) fail(ctx context.Context, orderID string, cb *gateway.Callback, reason string) (*SettlementResult, error) {
	var order *model.PaymentOrder
	err := runTx(ctx, r.db, r.cfg.TxMaxRetries, func(tx *sqlx.Tx) error {
		orders := r.orders.WithTx(tx)

		var err error
		order, err = orders.ByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to get payment order: %w", err)
		}
		if order.IsTerminal() {
			return nil
		}

		now := r.now().UTC()
		order.FailureReason = &reason
		if cb != nil && cb.PaymentID != "" {
			order.PaymentID = &cb.PaymentID
		}
		order.UpdatedAt = now
		return orders.Fail(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	if order.Status == model.OrderStatusFailed {
		r.metrics.OrdersFailed.WithLabelValues(string(order.Kind), reason).Inc()
		slog.Info("payment order failed", "order_id", order.ID, "reason", reason)
	}
	return resultFromOrder(order), nil
}

// Purchases lists what buyerUID owns, newest first.
func (r *Reconciler) Purchases(ctx context.Context, buyerUID string) ([]*model.Purchase, error) {
	purchases, err := r.purchases.ByBuyer(ctx, buyerUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}
