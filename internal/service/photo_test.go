package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/picsellart/internal/events"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/storage"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := range 48 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 80, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// hookWatermarker runs before before delegating to the real watermarker.
type hookWatermarker struct {
	next   Watermarker
	before func()
	calls  int
}

func (w *hookWatermarker) Apply(ctx context.Context, original []byte) ([]byte, error) {
	w.calls++
	if w.before != nil {
		w.before()
	}
	return w.next.Apply(ctx, original)
}

func TestSecureCreatePhoto(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedPlan(t, seller.UID, 25, 0, 24900, 24*time.Hour)
	original := testPNG(t)

	listing, err := e.photos.SecureCreatePhoto(ctx, seller, PhotoUpload{
		Title: "Harbour at dawn",
		Price: 9900,
		Tags:  []string{"Sea", "sea", "dawn"},
		Image: original,
	})
	require.NoError(t, err)
	assert.Equal(t, seller.UID, listing.SellerID)
	assert.Equal(t, model.Tags{"sea", "dawn"}, listing.Tags)
	assert.Equal(t, "https://cdn.test/"+storage.PreviewKey(seller.UID, listing.ID), listing.PreviewURL)

	originalKey := storage.OriginalKey(seller.UID, listing.ID, ".png")
	keys := e.store.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{originalKey, storage.PreviewKey(seller.UID, listing.ID)}, keys)
	stored, _ := e.store.Object(originalKey)
	assert.Equal(t, original, stored)
	preview, _ := e.store.Object(storage.PreviewKey(seller.UID, listing.ID))
	assert.NotEqual(t, original, preview)

	path, err := e.listings.OriginalPath(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, originalKey, path)

	plan, err := e.quota.Plan(ctx, seller.UID)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.UploadsUsed)

	assert.Equal(t, []string{events.SubjectListingCreated}, e.publisher.subjects())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.ListingsCreated))
}

func TestSecureCreatePhotoRejectsBeforeSideEffects(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	wm := &hookWatermarker{next: e.photos.watermarker}
	e.photos.watermarker = wm
	e.seedPlan(t, "capped", 25, 0, 1000, 24*time.Hour)

	tests := []struct {
		name   string
		seller model.Identity
		in     PhotoUpload
		want   error
	}{
		{"anonymous", model.Identity{}, PhotoUpload{Title: "x", Price: 100, Image: testPNG(t)}, ErrUnauthenticated},
		{"empty title", seller, PhotoUpload{Title: " ", Price: 100, Image: testPNG(t)}, ErrInvalidInput},
		{"zero price", seller, PhotoUpload{Title: "x", Price: 0, Image: testPNG(t)}, ErrInvalidInput},
		{"not an image", seller, PhotoUpload{Title: "x", Price: 100, Image: []byte("plain text")}, ErrInvalidInput},
		{"no plan", seller, PhotoUpload{Title: "x", Price: 100, Image: testPNG(t)}, ErrDeniedNoPlan},
		{"price too high", model.Identity{UID: "capped"}, PhotoUpload{Title: "x", Price: 1001, Image: testPNG(t)}, ErrDeniedPriceTooHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.photos.SecureCreatePhoto(ctx, tt.seller, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Zero(t, wm.calls)
	assert.Empty(t, e.store.Keys())
}

func TestSecureCreatePhotoDecodeError(t *testing.T) {
	e := newTestEnv(t)
	e.seedPlan(t, seller.UID, 25, 0, 24900, 24*time.Hour)

	// valid PNG signature, truncated body
	corrupt := testPNG(t)[:40]
	_, err := e.photos.SecureCreatePhoto(context.Background(), seller, PhotoUpload{Title: "x", Price: 100, Image: corrupt})
	assert.ErrorIs(t, err, ErrDecode)
	assert.Empty(t, e.store.Keys())
}

func TestSecureCreatePhotoStorageFailure(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedPlan(t, seller.UID, 25, 0, 24900, 24*time.Hour)
	e.store.FailPublic(errors.New("bucket unavailable"))

	_, err := e.photos.SecureCreatePhoto(ctx, seller, PhotoUpload{Title: "x", Price: 100, Image: testPNG(t)})
	assert.ErrorIs(t, err, ErrStorage)
	assert.Empty(t, e.store.Keys())

	plan, err := e.quota.Plan(ctx, seller.UID)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.UploadsUsed)
	n, err := e.listings.CountBySeller(ctx, seller.UID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSecureCreatePhotoQuotaRaceCleansUp(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedPlan(t, seller.UID, 25, 24, 24900, 24*time.Hour)

	// another upload takes the last slot while this one renders
	e.photos.watermarker = &hookWatermarker{
		next: e.photos.watermarker,
		before: func() {
			plan, err := e.plans.BySellerID(ctx, seller.UID)
			require.NoError(t, err)
			plan.UploadsUsed = plan.UploadLimit
			require.NoError(t, e.plans.Update(ctx, plan))
		},
	}

	_, err := e.photos.SecureCreatePhoto(ctx, seller, PhotoUpload{Title: "x", Price: 100, Image: testPNG(t)})
	assert.ErrorIs(t, err, ErrDeniedQuotaExhausted)
	assert.Empty(t, e.store.Keys())

	n, err := e.listings.CountBySeller(ctx, seller.UID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
