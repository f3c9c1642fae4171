package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/templui/picsellart/internal/db/dbtest"
	"github.com/templui/picsellart/internal/gateway"
	"github.com/templui/picsellart/internal/gateway/gatewaytest"
	"github.com/templui/picsellart/internal/metrics"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/repository"
	"github.com/templui/picsellart/internal/storage"
	"github.com/templui/picsellart/internal/storage/storagetest"
	"github.com/templui/picsellart/internal/watermark"
)

const testKeySecret = gatewaytest.KeySecret

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type publishedEvent struct {
	Subject string
	Event   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Subject: subject, Event: event})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Subject)
	}
	return out
}

type testEnv struct {
	db        *sqlx.DB
	clock     *testClock
	listings  repository.ListingRepository
	plans     repository.SellerPlanRepository
	orders    repository.PaymentOrderRepository
	purchases repository.PurchaseRepository
	gateway   *gatewaytest.Gateway
	store     *storagetest.Memory
	publisher *recordingPublisher
	metrics   *metrics.Metrics

	quota      *QuotaLedger
	catalog    *Catalog
	reconciler *Reconciler
	access     *AccessGate
	photos     *PhotoService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database := dbtest.New(t)
	e := &testEnv{
		db:        database,
		clock:     &testClock{now: time.Now().UTC().Truncate(time.Second)},
		listings:  repository.NewListingRepository(database),
		plans:     repository.NewSellerPlanRepository(database),
		orders:    repository.NewPaymentOrderRepository(database),
		purchases: repository.NewPurchaseRepository(database),
		gateway:   gatewaytest.New(),
		store:     storagetest.New(),
		publisher: &recordingPublisher{},
		metrics:   metrics.New("test"),
	}

	email := NewEmailService("", "noreply@test", "https://picsellart.test", "Picsellart", true)

	e.quota = NewQuotaLedger(e.plans, e.metrics)
	e.quota.now = e.clock.Now
	e.catalog = NewCatalog(e.listings, nil, e.store)
	e.reconciler = NewReconciler(database, e.orders, e.purchases, e.plans, e.listings, e.gateway, e.store, e.publisher, email, e.metrics, ReconcilerConfig{Currency: "inr", TxMaxRetries: 5})
	e.reconciler.now = e.clock.Now
	e.access = NewAccessGate(e.purchases, e.listings, e.store, 10*time.Minute, e.metrics)
	e.access.now = e.clock.Now
	e.photos = NewPhotoService(database, e.quota, e.catalog, watermark.New(watermark.Options{Text: "picsellart"}), e.store, e.publisher, e.metrics, 5)
	e.photos.now = e.clock.Now
	return e
}

func (e *testEnv) seedListing(t *testing.T, sellerID string, price int64) *model.Listing {
	t.Helper()
	id := uuid.New().String()
	l := &model.Listing{
		ID:           id,
		SellerID:     sellerID,
		Title:        "Photo " + id,
		Price:        price,
		Tags:         model.Tags{"test"},
		PreviewPath:  storage.PreviewKey(sellerID, id),
		OriginalPath: storage.OriginalKey(sellerID, id, ".jpg"),
		CreatedAt:    e.clock.Now(),
	}
	require.NoError(t, e.listings.Create(context.Background(), l))
	require.NoError(t, e.store.Put(l.OriginalPath, []byte("original-bytes")))
	return l
}

func (e *testEnv) seedPlan(t *testing.T, sellerID string, limit, used int, maxPrice int64, expiresIn time.Duration) *model.SellerPlan {
	t.Helper()
	now := e.clock.Now()
	p := &model.SellerPlan{
		SellerID:        sellerID,
		PlanID:          model.PackPro,
		UploadLimit:     limit,
		UploadsUsed:     used,
		MaxPricePerItem: maxPrice,
		ActivatedAt:     now.Add(-time.Hour),
		ExpiresAt:       now.Add(expiresIn),
		UpdatedAt:       now,
	}
	require.NoError(t, e.plans.Create(context.Background(), p))
	return p
}

func paidCallback(gatewayOrderID, paymentID string) []byte {
	return gatewaytest.PaidCallback(gatewayOrderID, paymentID)
}

func (e *testEnv) lastRequest() gateway.OrderRequest {
	reqs := e.gateway.Requests()
	return reqs[len(reqs)-1]
}

// buy runs a full listing purchase for buyer.
func (e *testEnv) buy(t *testing.T, buyer model.Identity, listingID string) *SettlementResult {
	t.Helper()
	ctx := context.Background()
	order, err := e.reconciler.CreateOrder(ctx, model.OrderKindListing, listingID, buyer)
	require.NoError(t, err)
	result, err := e.reconciler.VerifyAndSettle(ctx, Callback{
		Payload:   paidCallback(order.GatewayOrderID, "pay_"+order.OrderID),
		Requester: &buyer,
		Kind:      model.OrderKindListing,
	})
	require.NoError(t, err)
	return result
}
