package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/model"
)

var (
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrPurchaseExists   = errors.New("purchase already exists")
)

type PurchaseRepository interface {
	Create(ctx context.Context, purchase *model.Purchase) error
	ByBuyerAndPhoto(ctx context.Context, buyerUID, photoID string) (*model.Purchase, error)
	ByOrderID(ctx context.Context, orderID string) (*model.Purchase, error)
	ByBuyer(ctx context.Context, buyerUID string) ([]*model.Purchase, error)
	WithTx(tx *sqlx.Tx) PurchaseRepository
}

type purchaseRepository struct {
	db Querier
}

func NewPurchaseRepository(db *sqlx.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) WithTx(tx *sqlx.Tx) PurchaseRepository {
	return &purchaseRepository{db: tx}
}

func (r *purchaseRepository) Create(ctx context.Context, purchase *model.Purchase) error {
	query := `INSERT INTO purchases (id, order_id, buyer_uid, photo_id, price, title, preview_url, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		purchase.ID,
		purchase.OrderID,
		purchase.BuyerUID,
		purchase.PhotoID,
		purchase.Price,
		purchase.Title,
		purchase.PreviewURL,
		purchase.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrPurchaseExists
	}
	return err
}

func (r *purchaseRepository) ByBuyerAndPhoto(ctx context.Context, buyerUID, photoID string) (*model.Purchase, error) {
	purchase := &model.Purchase{}
	query := `SELECT * FROM purchases WHERE buyer_uid = $1 AND photo_id = $2`

	err := r.db.GetContext(ctx, purchase, query, buyerUID, photoID)
	if err == sql.ErrNoRows {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}

	return purchase, nil
}

func (r *purchaseRepository) ByOrderID(ctx context.Context, orderID string) (*model.Purchase, error) {
	purchase := &model.Purchase{}
	query := `SELECT * FROM purchases WHERE order_id = $1`

	err := r.db.GetContext(ctx, purchase, query, orderID)
	if err == sql.ErrNoRows {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}

	return purchase, nil
}

func (r *purchaseRepository) ByBuyer(ctx context.Context, buyerUID string) ([]*model.Purchase, error) {
	var purchases []*model.Purchase
	query := `SELECT * FROM purchases WHERE buyer_uid = $1 ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &purchases, query, buyerUID)
	if err != nil {
		return nil, err
	}

	return purchases, nil
}
