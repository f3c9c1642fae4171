package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/picsellart/internal/config"
	"github.com/templui/picsellart/internal/metrics"
	"github.com/templui/picsellart/internal/repository"
	"github.com/templui/picsellart/internal/storage"
)

const defaultOriginalURLTTL = 10 * time.Minute

// URLMinter issues time-limited read URLs for private objects.
type URLMinter interface {
	MintSignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AccessGate is the only reader of a listing's original key.
type AccessGate struct {
	purchases repository.PurchaseRepository
	listings  repository.ListingRepository
	minter    URLMinter
	ttl       time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewAccessGate(purchases repository.PurchaseRepository, listings repository.ListingRepository, minter URLMinter, ttl time.Duration, m *metrics.Metrics) *AccessGate {
	if ttl <= 0 {
		ttl = defaultOriginalURLTTL
	}
	if ttl > config.MaxOriginalURLTTL {
		ttl = config.MaxOriginalURLTTL
	}
	return &AccessGate{
		purchases: purchases,
		listings:  listings,
		minter:    minter,
		ttl:       ttl,
		metrics:   m,
		now:       time.Now,
	}
}

// GetOriginalURL returns a short-lived URL to the original of listingID if
// buyerUID holds a settled purchase for it.
func (g *AccessGate) GetOriginalURL(ctx context.Context, buyerUID, listingID string) (*SignedURL, error) {
	if buyerUID == "" {
		return nil, ErrUnauthenticated
	}

	_, err := g.purchases.ByBuyerAndPhoto(ctx, buyerUID, listingID)
	if errors.Is(err, repository.ErrPurchaseNotFound) {
		slog.Warn("original requested without purchase", "buyer_uid", buyerUID, "listing_id", listingID)
		return nil, ErrNotPurchased
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase: %w", err)
	}

	key, err := g.listings.OriginalPath(ctx, listingID)
	if errors.Is(err, repository.ErrListingNotFound) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get original path: %w", err)
	}

	expiresAt := g.now().Add(g.ttl)
	url, err := g.minter.MintSignedURL(ctx, key, g.ttl)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.Error("purchased original missing from storage", "listing_id", listingID, "buyer_uid", buyerUID)
		return nil, wrap(ErrAssetNotFound, err)
	case errors.Is(err, storage.ErrOutsideNamespace):
		slog.Error("listing original path outside private namespace", "listing_id", listingID)
		return nil, wrap(ErrStorage, err)
	case err != nil:
		return nil, wrap(ErrStorage, err)
	}

	g.metrics.SignedURLsMinted.Inc()
	slog.Info("original url minted", "buyer_uid", buyerUID, "listing_id", listingID, "ttl", g.ttl)
	return &SignedURL{URL: url, ExpiresAt: expiresAt}, nil
}
