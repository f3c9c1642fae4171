package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/cache"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/repository"
)

// PreviewURLs resolves a public preview key to its permanent URL.
type PreviewURLs interface {
	PublicURL(key string) string
}

// Catalog is the read side of listings plus the guarded write path.
// Nothing it returns carries the original's storage key.
type Catalog struct {
	listings repository.ListingRepository
	cache    *cache.ListingCache
	previews PreviewURLs
}

func NewCatalog(listings repository.ListingRepository, listingCache *cache.ListingCache, previews PreviewURLs) *Catalog {
	return &Catalog{
		listings: listings,
		cache:    listingCache,
		previews: previews,
	}
}

// CreateListing records listing inside tx. It requires an unconsumed
// Authorization charged in the same tx for the same seller and price.
func (c *Catalog) CreateListing(ctx context.Context, tx *sqlx.Tx, auth *Authorization, listing *model.Listing) (string, error) {
	if auth == nil || auth.consumed || auth.tx != tx || tx == nil {
		return "", ErrUploadNotAuthorized
	}
	if auth.SellerID != listing.SellerID || auth.Price != listing.Price {
		return "", ErrUploadNotAuthorized
	}

	err := c.listings.WithTx(tx).Create(ctx, listing)
	if err != nil {
		return "", fmt.Errorf("failed to create listing: %w", err)
	}
	auth.consumed = true

	return listing.ID, nil
}

func (c *Catalog) GetListing(ctx context.Context, id string) (*model.PublicListing, error) {
	listing, err := c.cache.Get(ctx, id)
	if err != nil {
		slog.Warn("listing cache read failed", "error", err, "listing_id", id)
	}
	if listing == nil {
		listing, err = c.listings.ByID(ctx, id)
		if errors.Is(err, repository.ErrListingNotFound) {
			return nil, ErrListingNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get listing: %w", err)
		}
		if err := c.cache.Set(ctx, listing); err != nil {
			slog.Warn("listing cache write failed", "error", err, "listing_id", id)
		}
	}

	listing.PreviewURL = c.previews.PublicURL(listing.PreviewPath)
	return listing, nil
}

// ListAll streams public listings newest first.
func (c *Catalog) ListAll(ctx context.Context, filter repository.ListingFilter) iter.Seq2[*model.PublicListing, error] {
	return func(yield func(*model.PublicListing, error) bool) {
		for listing, err := range c.listings.All(ctx, filter) {
			if err != nil {
				yield(nil, fmt.Errorf("failed to list listings: %w", err))
				return
			}
			listing.PreviewURL = c.previews.PublicURL(listing.PreviewPath)
			if !yield(listing, nil) {
				return
			}
		}
	}
}
