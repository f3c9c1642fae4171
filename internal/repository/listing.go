package repository

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/model"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrListingExists   = errors.New("listing already exists")
)

// publicColumns deliberately omits original_path.
const publicColumns = `id, seller_id, title, price, tags, preview_path, created_at`

type ListingFilter struct {
	SellerID string
	Tag      string
	Limit    int
}

type ListingRepository interface {
	Create(ctx context.Context, listing *model.Listing) error
	ByID(ctx context.Context, id string) (*model.PublicListing, error)
	All(ctx context.Context, filter ListingFilter) iter.Seq2[*model.PublicListing, error]
	CountBySeller(ctx context.Context, sellerID string) (int, error)
	// OriginalPath is reserved for the access gate.
	OriginalPath(ctx context.Context, id string) (string, error)
	WithTx(tx *sqlx.Tx) ListingRepository
}

type listingRepository struct {
	db Querier
}

func NewListingRepository(db *sqlx.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) WithTx(tx *sqlx.Tx) ListingRepository {
	return &listingRepository{db: tx}
}

func (r *listingRepository) Create(ctx context.Context, listing *model.Listing) error {
	query := `INSERT INTO listings (id, seller_id, title, price, tags, preview_path, original_path, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		listing.ID,
		listing.SellerID,
		listing.Title,
		listing.Price,
		listing.Tags,
		listing.PreviewPath,
		listing.OriginalPath,
		listing.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrListingExists
	}
	return err
}

func (r *listingRepository) ByID(ctx context.Context, id string) (*model.PublicListing, error) {
	listing := &model.PublicListing{}
	query := `SELECT ` + publicColumns + ` FROM listings WHERE id = $1`

	err := r.db.GetContext(ctx, listing, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}

	return listing, nil
}

// All streams listings newest first. Iteration stops at the first error,
// which is yielded once.
func (r *listingRepository) All(ctx context.Context, filter ListingFilter) iter.Seq2[*model.PublicListing, error] {
	return func(yield func(*model.PublicListing, error) bool) {
		var (
			where []string
			args  []any
		)
		if filter.SellerID != "" {
			args = append(args, filter.SellerID)
			where = append(where, "seller_id = "+placeholder(len(args)))
		}
		if filter.Tag != "" {
			// tags is a JSON array of strings; match the quoted element
			args = append(args, `%"`+strings.ReplaceAll(filter.Tag, `"`, ``)+`"%`)
			where = append(where, "tags LIKE "+placeholder(len(args)))
		}

		query := `SELECT ` + publicColumns + ` FROM listings`
		if len(where) > 0 {
			query += ` WHERE ` + strings.Join(where, " AND ")
		}
		query += ` ORDER BY created_at DESC, id ASC`
		if filter.Limit > 0 {
			args = append(args, filter.Limit)
			query += ` LIMIT ` + placeholder(len(args))
		}

		rows, err := r.db.QueryxContext(ctx, query, args...)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			listing := &model.PublicListing{}
			if err := rows.StructScan(listing); err != nil {
				yield(nil, err)
				return
			}
			if !yield(listing, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (r *listingRepository) CountBySeller(ctx context.Context, sellerID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM listings WHERE seller_id = $1`

	err := r.db.GetContext(ctx, &count, query, sellerID)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *listingRepository) OriginalPath(ctx context.Context, id string) (string, error) {
	var path string
	query := `SELECT original_path FROM listings WHERE id = $1`

	err := r.db.GetContext(ctx, &path, query, id)
	if err == sql.ErrNoRows {
		return "", ErrListingNotFound
	}
	if err != nil {
		return "", err
	}

	return path, nil
}
