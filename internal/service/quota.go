package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/metrics"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/repository"
)

// Authorization is the proof that a seller's quota was charged for one
// upload. It is bound to the transaction that charged it and can be
// consumed by exactly one CreateListing in that transaction.
type Authorization struct {
	SellerID string
	Price    int64
	PlanID   string

	tx       *sqlx.Tx
	consumed bool
}

type QuotaLedger struct {
	plans   repository.SellerPlanRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewQuotaLedger(plans repository.SellerPlanRepository, m *metrics.Metrics) *QuotaLedger {
	return &QuotaLedger{
		plans:   plans,
		metrics: m,
		now:     time.Now,
	}
}

// Plan returns the seller's current plan.
func (q *QuotaLedger) Plan(ctx context.Context, sellerID string) (*model.SellerPlan, error) {
	plan, err := q.plans.BySellerID(ctx, sellerID)
	if errors.Is(err, repository.ErrPlanNotFound) {
		return nil, ErrDeniedNoPlan
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seller plan: %w", err)
	}
	return plan, nil
}

// Check evaluates the upload rules without charging the quota.
func (q *QuotaLedger) Check(ctx context.Context, sellerID string, price int64) error {
	plan, err := q.plans.BySellerID(ctx, sellerID)
	if err != nil && !errors.Is(err, repository.ErrPlanNotFound) {
		return fmt.Errorf("failed to get seller plan: %w", err)
	}
	return q.deny(sellerID, evaluate(plan, price, q.now()))
}

// AuthorizeUpload charges one upload against the seller's plan inside tx.
// The charge only sticks if tx commits.
func (q *QuotaLedger) AuthorizeUpload(ctx context.Context, tx *sqlx.Tx, sellerID string, price int64) (*Authorization, error) {
	plans := q.plans.WithTx(tx)

	plan, err := plans.BySellerID(ctx, sellerID)
	if err != nil && !errors.Is(err, repository.ErrPlanNotFound) {
		return nil, fmt.Errorf("failed to get seller plan: %w", err)
	}

	now := q.now()
	if err := q.deny(sellerID, evaluate(plan, price, now)); err != nil {
		return nil, err
	}

	plan.UploadsUsed++
	plan.UpdatedAt = now
	err = plans.Update(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to charge upload: %w", err)
	}

	return &Authorization{
		SellerID: sellerID,
		Price:    price,
		PlanID:   plan.PlanID,
		tx:       tx,
	}, nil
}

// evaluate applies the upload rules in order; the first failing rule wins.
func evaluate(plan *model.SellerPlan, price int64, now time.Time) error {
	switch {
	case plan == nil:
		return ErrDeniedNoPlan
	case !plan.IsActive(now):
		return ErrDeniedPlanExpired
	case plan.UploadsUsed >= plan.UploadLimit:
		return ErrDeniedQuotaExhausted
	case price > plan.MaxPricePerItem:
		return ErrDeniedPriceTooHigh
	}
	return nil
}

func (q *QuotaLedger) deny(sellerID string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		q.metrics.QuotaDenials.WithLabelValues(string(e.Reason)).Inc()
		slog.Info("upload denied", "seller_id", sellerID, "reason", e.Reason)
	}
	return err
}

// Active reports whether plan is within its paid period.
func (q *QuotaLedger) Active(plan *model.SellerPlan) bool {
	return plan.IsActive(q.now())
}
