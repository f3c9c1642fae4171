package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/templui/picsellart/internal/events"
	"github.com/templui/picsellart/internal/metrics"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/storage"
	"github.com/templui/picsellart/internal/validation"
	"github.com/templui/picsellart/internal/watermark"
)

// Watermarker renders the public preview of an original.
type Watermarker interface {
	Apply(ctx context.Context, original []byte) ([]byte, error)
}

// PhotoService publishes new listings: validate, pre-check quota, render the
// preview, upload both blobs, then charge the quota and record the listing
// in one transaction.
type PhotoService struct {
	db           *sqlx.DB
	quota        *QuotaLedger
	catalog      *Catalog
	watermarker  Watermarker
	storage      storage.Storage
	publisher    events.Publisher
	metrics      *metrics.Metrics
	txMaxRetries int
	now          func() time.Time
}

func NewPhotoService(
	database *sqlx.DB,
	quota *QuotaLedger,
	catalog *Catalog,
	watermarker Watermarker,
	store storage.Storage,
	publisher events.Publisher,
	m *metrics.Metrics,
	txMaxRetries int,
) *PhotoService {
	return &PhotoService{
		db:           database,
		quota:        quota,
		catalog:      catalog,
		watermarker:  watermarker,
		storage:      store,
		publisher:    publisher,
		metrics:      m,
		txMaxRetries: txMaxRetries,
		now:          time.Now,
	}
}

type PhotoUpload struct {
	Title string
	Price int64 // minor units
	Tags  []string
	Image []byte
}

func (s *PhotoService) SecureCreatePhoto(ctx context.Context, seller model.Identity, in PhotoUpload) (*model.PublicListing, error) {
	if seller.UID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validation.ValidateTitle(in.Title); err != nil {
		return nil, ValidationError(err.Error())
	}
	if err := validation.ValidatePrice(in.Price); err != nil {
		return nil, ValidationError(err.Error())
	}
	tags, err := validation.NormalizeTags(in.Tags)
	if err != nil {
		return nil, ValidationError(err.Error())
	}
	detected, err := validation.ValidateFile(in.Image, validation.ImageConstraints)
	if err != nil {
		return nil, ValidationError(err.Error())
	}

	// cheap rejection before any rendering or upload
	err = s.quota.Check(ctx, seller.UID, in.Price)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	preview, err := s.watermarker.Apply(ctx, in.Image)
	s.metrics.WatermarkDuration.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, watermark.ErrDecode):
		return nil, wrap(ErrDecode, err)
	case errors.Is(err, watermark.ErrTooLarge):
		return nil, ValidationError(err.Error())
	case err != nil:
		return nil, fmt.Errorf("failed to render preview: %w", err)
	}

	listingID := uuid.New().String()
	originalKey := storage.OriginalKey(seller.UID, listingID, detected.Extension)
	previewKey := storage.PreviewKey(seller.UID, listingID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.storage.PutPrivate(gctx, originalKey, in.Image, detected.ContentType)
	})
	g.Go(func() error {
		_, err := s.storage.PutPublic(gctx, previewKey, preview, "image/jpeg")
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("failed to upload listing assets", "error", err, "seller_id", seller.UID, "listing_id", listingID)
		s.cleanup(ctx, originalKey, previewKey)
		return nil, wrap(ErrStorage, err)
	}

	listing := &model.Listing{
		ID:           listingID,
		SellerID:     seller.UID,
		Title:        in.Title,
		Price:        in.Price,
		Tags:         tags,
		PreviewPath:  previewKey,
		OriginalPath: originalKey,
		CreatedAt:    s.now().UTC(),
	}

	err = runTx(ctx, s.db, s.txMaxRetries, func(tx *sqlx.Tx) error {
		auth, err := s.quota.AuthorizeUpload(ctx, tx, seller.UID, in.Price)
		if err != nil {
			return err
		}
		_, err = s.catalog.CreateListing(ctx, tx, auth, listing)
		return err
	})
	if err != nil {
		s.cleanup(ctx, originalKey, previewKey)
		return nil, err
	}

	s.metrics.ListingsCreated.Inc()
	slog.Info("listing published", "listing_id", listingID, "seller_id", seller.UID, "price", in.Price)

	err = s.publisher.Publish(ctx, events.SubjectListingCreated, events.ListingCreated{
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Price:     listing.Price,
		CreatedAt: listing.CreatedAt,
	})
	if err != nil {
		slog.Error("failed to publish event", "error", err, "subject", events.SubjectListingCreated, "listing_id", listingID)
	}

	public := listing.Public()
	public.PreviewURL = s.storage.PublicURL(previewKey)
	return public, nil
}

// cleanup removes blobs of a listing that was not recorded.
func (s *PhotoService) cleanup(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			slog.Warn("failed to clean up orphaned asset", "error", err, "key", key)
		}
	}
}
