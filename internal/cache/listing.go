// Package cache keeps public listing projections in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/templui/picsellart/internal/model"
)

const (
	listingPrefix = "listing:"
	listingTTL    = time.Hour
)

// ListingCache caches PublicListing only, never the full record. A nil
// *ListingCache is valid and always misses.
type ListingCache struct {
	client *redis.Client
}

func NewListingCache(url string) (*ListingCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &ListingCache{client: client}, nil
}

// Get returns the cached listing, or nil on a miss.
func (c *ListingCache) Get(ctx context.Context, id string) (*model.PublicListing, error) {
	if c == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, listingPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var listing cachedListing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, err
	}
	return listing.model(), nil
}

func (c *ListingCache) Set(ctx context.Context, listing *model.PublicListing) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(fromModel(listing))
	if err != nil {
		return err
	}
	return c.client.Set(ctx, listingPrefix+listing.ID, data, listingTTL).Err()
}

func (c *ListingCache) Delete(ctx context.Context, id string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, listingPrefix+id).Err()
}

func (c *ListingCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// cachedListing keeps PreviewPath, which the API encoding of PublicListing hides.
type cachedListing struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Title       string    `json:"title"`
	Price       int64     `json:"price"`
	Tags        []string  `json:"tags"`
	PreviewPath string    `json:"preview_path"`
	CreatedAt   time.Time `json:"created_at"`
}

func fromModel(l *model.PublicListing) cachedListing {
	return cachedListing{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Title:       l.Title,
		Price:       l.Price,
		Tags:        l.Tags,
		PreviewPath: l.PreviewPath,
		CreatedAt:   l.CreatedAt,
	}
}

func (c cachedListing) model() *model.PublicListing {
	return &model.PublicListing{
		ID:          c.ID,
		SellerID:    c.SellerID,
		Title:       c.Title,
		Price:       c.Price,
		Tags:        c.Tags,
		PreviewPath: c.PreviewPath,
		CreatedAt:   c.CreatedAt,
	}
}
