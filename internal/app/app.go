package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/cache"
	"github.com/templui/picsellart/internal/config"
	"github.com/templui/picsellart/internal/db"
	"github.com/templui/picsellart/internal/events"
	"github.com/templui/picsellart/internal/gateway"
	"github.com/templui/picsellart/internal/metrics"
	"github.com/templui/picsellart/internal/middleware"
	"github.com/templui/picsellart/internal/repository"
	"github.com/templui/picsellart/internal/service"
	"github.com/templui/picsellart/internal/storage"
	"github.com/templui/picsellart/internal/watermark"
)

type App struct {
	Cfg             *config.Config
	DB              *sqlx.DB
	Metrics         *metrics.Metrics
	Publisher       events.Publisher
	ListingCache    *cache.ListingCache
	RateLimiter     *middleware.RateLimiter
	IdentityService *service.IdentityService
	QuotaLedger     *service.QuotaLedger
	Catalog         *service.Catalog
	PhotoService    *service.PhotoService
	Reconciler      *service.Reconciler
	AccessGate      *service.AccessGate
	OrderSweeper    *service.OrderSweeper
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(context.Background(), database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	listingRepository := repository.NewListingRepository(database)
	sellerPlanRepository := repository.NewSellerPlanRepository(database)
	paymentOrderRepository := repository.NewPaymentOrderRepository(database)
	purchaseRepository := repository.NewPurchaseRepository(database)

	// Storage
	assetStorage, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	}

	// Payment gateway based on config
	paymentGateway, err := gateway.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payment gateway: %v", err)
	}

	// Optional infrastructure
	var listingCache *cache.ListingCache
	if cfg.RedisURL != "" {
		listingCache, err = cache.NewListingCache(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize listing cache: %v", err)
		}
	}

	var publisher events.Publisher = events.LogPublisher{}
	if cfg.NATSURL != "" {
		publisher, err = events.NewNATSPublisher(cfg.NATSURL, cfg.AppName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event publisher: %v", err)
		}
	}

	m := metrics.New("picsellart")

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	identityService := service.NewIdentityService(cfg.IdentityJWTSecret, cfg.IdentityIssuer)
	quotaLedger := service.NewQuotaLedger(sellerPlanRepository, m)
	catalog := service.NewCatalog(listingRepository, listingCache, assetStorage)
	watermarker := watermark.New(watermark.Options{
		Text:    cfg.WatermarkText,
		Quality: cfg.WatermarkQuality,
	})
	photoService := service.NewPhotoService(database, quotaLedger, catalog, watermarker, assetStorage, publisher, m, cfg.TxMaxRetries)
	reconciler := service.NewReconciler(
		database,
		paymentOrderRepository,
		purchaseRepository,
		sellerPlanRepository,
		listingRepository,
		paymentGateway,
		assetStorage,
		publisher,
		emailService,
		m,
		service.ReconcilerConfig{
			Currency:     cfg.PaymentCurrency,
			TxMaxRetries: cfg.TxMaxRetries,
		},
	)
	accessGate := service.NewAccessGate(purchaseRepository, listingRepository, assetStorage, cfg.OriginalURLTTL, m)
	orderSweeper := service.NewOrderSweeper(reconciler, cfg.OrderTTL)

	slog.Info("app initialized",
		"payment_provider", paymentGateway.Name(),
		"storage_driver", cfg.StorageDriver,
		"listing_cache", listingCache != nil,
		"nats", cfg.NATSURL != "",
	)

	return &App{
		Cfg:             cfg,
		DB:              database,
		Metrics:         m,
		Publisher:       publisher,
		ListingCache:    listingCache,
		RateLimiter:     middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		IdentityService: identityService,
		QuotaLedger:     quotaLedger,
		Catalog:         catalog,
		PhotoService:    photoService,
		Reconciler:      reconciler,
		AccessGate:      accessGate,
		OrderSweeper:    orderSweeper,
	}, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if err := a.ListingCache.Close(); err != nil {
		slog.Error("failed to close listing cache", "error", err)
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
