package routes

import (
	"net/http"

	"github.com/templui/picsellart/internal/app"
	"github.com/templui/picsellart/internal/handler"
	"github.com/templui/picsellart/internal/middleware"
	"github.com/templui/picsellart/internal/validation"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	listing := handler.NewListingHandler(app.Catalog, app.PhotoService, app.AccessGate, validation.ImageConstraints.MaxSize)
	order := handler.NewOrderHandler(app.Reconciler)
	account := handler.NewAccountHandler(app.QuotaLedger, app.Reconciler, app.Cfg.PaymentCurrency)
	health := handler.NewHealthHandler(app.DB)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.Handle("GET /metrics", app.Metrics.Handler())

	mux.HandleFunc("GET /api/packs", account.Packs)
	mux.HandleFunc("GET /api/listings", listing.List)
	mux.HandleFunc("GET /api/listings/{id}", listing.Get)

	// ============================================================================
	// AUTHENTICATED ROUTES
	// ============================================================================

	// Sellers
	mux.HandleFunc("POST /api/listings", middleware.RequireAuth(listing.Create))
	mux.HandleFunc("POST /api/orders/pack", middleware.RequireAuth(order.CreatePackOrder))
	mux.HandleFunc("POST /api/orders/pack/verify", middleware.RequireAuth(order.VerifyPackPayment))
	mux.HandleFunc("GET /api/plan", middleware.RequireAuth(account.Plan))

	// Buyers
	mux.HandleFunc("POST /api/orders/photo", middleware.RequireAuth(order.CreatePhotoOrder))
	mux.HandleFunc("POST /api/orders/photo/verify", middleware.RequireAuth(order.VerifyPhotoPayment))
	mux.HandleFunc("GET /api/listings/{id}/original", middleware.RequireAuth(listing.Original))
	mux.HandleFunc("GET /api/purchases", middleware.RequireAuth(account.Purchases))

	// ============================================================================
	// WEBHOOKS
	// ============================================================================

	// Payment gateway webhook (Razorpay, Stripe or Polar, per PAYMENT_PROVIDER)
	mux.HandleFunc("POST /webhooks/payment", order.Webhook)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.RateLimit(app.RateLimiter),
		middleware.AuthMiddleware(app.IdentityService),
		middleware.Metrics(app.Metrics), // must stay last: reads the pattern the mux matched
	)

	return handler
}
