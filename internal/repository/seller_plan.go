package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/model"
)

var (
	ErrPlanNotFound        = errors.New("seller plan not found")
	ErrPlanExists          = errors.New("seller plan already exists")
	ErrPlanVersionConflict = errors.New("seller plan was modified concurrently")
)

type SellerPlanRepository interface {
	BySellerID(ctx context.Context, sellerID string) (*model.SellerPlan, error)
	Create(ctx context.Context, plan *model.SellerPlan) error
	// Update writes plan only if the stored version still matches and bumps
	// plan.Version on success.
	Update(ctx context.Context, plan *model.SellerPlan) error
	WithTx(tx *sqlx.Tx) SellerPlanRepository
}

type sellerPlanRepository struct {
	db Querier
}

func NewSellerPlanRepository(db *sqlx.DB) SellerPlanRepository {
	return &sellerPlanRepository{db: db}
}

func (r *sellerPlanRepository) WithTx(tx *sqlx.Tx) SellerPlanRepository {
	return &sellerPlanRepository{db: tx}
}

func (r *sellerPlanRepository) BySellerID(ctx context.Context, sellerID string) (*model.SellerPlan, error) {
	plan := &model.SellerPlan{}
	query := `SELECT * FROM seller_plans WHERE seller_id = $1`

	err := r.db.GetContext(ctx, plan, query, sellerID)
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	return plan, nil
}

func (r *sellerPlanRepository) Create(ctx context.Context, plan *model.SellerPlan) error {
	if plan.Version == 0 {
		plan.Version = 1
	}
	query := `INSERT INTO seller_plans (seller_id, plan_id, upload_limit, max_price_per_item, activated_at, expires_at, uploads_used, version, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		plan.SellerID,
		plan.PlanID,
		plan.UploadLimit,
		plan.MaxPricePerItem,
		plan.ActivatedAt,
		plan.ExpiresAt,
		plan.UploadsUsed,
		plan.Version,
		plan.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrPlanExists
	}
	return err
}

func (r *sellerPlanRepository) Update(ctx context.Context, plan *model.SellerPlan) error {
	query := `UPDATE seller_plans
	          SET plan_id = $1, upload_limit = $2, max_price_per_item = $3, activated_at = $4, expires_at = $5,
	              uploads_used = $6, updated_at = $7, version = version + 1
	          WHERE seller_id = $8 AND version = $9`

	result, err := r.db.ExecContext(ctx, query,
		plan.PlanID,
		plan.UploadLimit,
		plan.MaxPricePerItem,
		plan.ActivatedAt,
		plan.ExpiresAt,
		plan.UploadsUsed,
		plan.UpdatedAt,
		plan.SellerID,
		plan.Version,
	)
	if err != nil {
		return err
	}
	if err := expectOneRow(result, ErrPlanVersionConflict); err != nil {
		return err
	}

	plan.Version++
	return nil
}
