package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxOriginalURLTTL caps the lifetime of a signed link to an original asset.
const MaxOriginalURLTTL = time.Hour

type Config struct {
	// Application
	AppName      string
	AppEnv       string
	AppURL       string
	Port         string
	SupportEmail string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Identity provider (tokens are issued externally, we only verify them)
	IdentityJWTSecret string
	IdentityIssuer    string

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Payment
	PaymentProvider string // "razorpay", "stripe" or "polar"
	PaymentCurrency string
	// Payment - Razorpay
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayAPIURL        string
	// Payment - Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	// Payment - Polar
	PolarAPIKey        string
	PolarWebhookSecret string
	PolarSandboxMode   bool
	PolarProductIDs    map[string]string // "photo" and pack IDs -> Polar product IDs

	// Orders
	OrderTTL           time.Duration // created orders older than this are failed by the sweeper
	OrderSweepSchedule string
	TxMaxRetries       int

	// Delivery
	OriginalURLTTL time.Duration

	// Watermark
	WatermarkText    string
	WatermarkQuality int

	// Observability (optional)
	SentryDSN string

	// Optional infrastructure
	RedisURL string
	NATSURL  string

	// Rate limiting (per user or IP)
	RateLimitRPS   float64
	RateLimitBurst int

	// Storage (S3-compatible: MinIO, AWS S3, Cloudflare R2, DigitalOcean Spaces, etc.)
	StorageDriver string // "s3" or "minio"
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Endpoint    string // Optional: for S3-compatible services (MinIO, DO Spaces, R2, etc.)
	S3UseSSL      bool
	S3PublicURL   string // Optional: CDN or bucket base URL for previews
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	appName := envString("APP_NAME", "Picsellart")
	appEnv := envRequired("APP_ENV") // Required: 'development' or 'production'

	cfg := &Config{
		// Application
		AppName:      appName,
		AppEnv:       appEnv,
		AppURL:       envRequired("APP_URL"),
		Port:         envString("PORT", "8090"),
		SupportEmail: envString("SUPPORT_EMAIL", "hello@example.com"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/picsellart.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Identity
		IdentityJWTSecret: envRequired("IDENTITY_JWT_SECRET"),
		IdentityIssuer:    envString("IDENTITY_ISSUER", ""),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Payment
		PaymentProvider:       envString("PAYMENT_PROVIDER", "razorpay"),
		PaymentCurrency:       strings.ToLower(envString("PAYMENT_CURRENCY", "inr")),
		RazorpayKeyID:         envString("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     envString("RAZORPAY_KEY_SECRET", ""),
		RazorpayWebhookSecret: envString("RAZORPAY_WEBHOOK_SECRET", ""),
		RazorpayAPIURL:        envString("RAZORPAY_API_URL", "https://api.razorpay.com"),
		StripeSecretKey:       envString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:   envString("STRIPE_WEBHOOK_SECRET", ""),
		PolarAPIKey:           envString("POLAR_API_KEY", ""),
		PolarWebhookSecret:    envString("POLAR_WEBHOOK_SECRET", ""),
		PolarSandboxMode:      envBool("POLAR_SANDBOX_MODE", appEnv == "development"),
		PolarProductIDs:       envMap("POLAR_PRODUCT_IDS"),

		// Orders
		OrderTTL:           envDuration("ORDER_TTL", 24*time.Hour),
		OrderSweepSchedule: envString("ORDER_SWEEP_SCHEDULE", "@every 15m"),
		TxMaxRetries:       envInt("TX_MAX_RETRIES", 5),

		// Delivery
		OriginalURLTTL: envDuration("ORIGINAL_URL_TTL", 10*time.Minute),

		// Watermark
		WatermarkText:    envString("WATERMARK_TEXT", appName),
		WatermarkQuality: envInt("WATERMARK_QUALITY", 70),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Optional infrastructure
		RedisURL: envString("REDIS_URL", ""),
		NATSURL:  envString("NATS_URL", ""),

		// Rate limiting
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		// Storage
		StorageDriver: envString("STORAGE_DRIVER", "s3"),
		S3Region:      envRequired("S3_REGION"),
		S3Bucket:      envRequired("S3_BUCKET"),
		S3AccessKey:   envRequired("S3_ACCESS_KEY"),
		S3SecretKey:   envRequired("S3_SECRET_KEY"),
		S3Endpoint:    envString("S3_ENDPOINT", ""), // Optional: for non-AWS providers
		S3UseSSL:      envBool("S3_USE_SSL", true),
		S3PublicURL:   envString("S3_PUBLIC_URL", ""),
	}

	if cfg.OriginalURLTTL <= 0 || cfg.OriginalURLTTL > MaxOriginalURLTTL {
		slog.Warn("config ORIGINAL_URL_TTL out of range, clamping", "value", cfg.OriginalURLTTL, "max", MaxOriginalURLTTL)
		cfg.OriginalURLTTL = MaxOriginalURLTTL
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows some services (like email) to use fallback modes for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if cfg.PaymentProvider == "razorpay" && cfg.RazorpayWebhookSecret == "" {
		slog.Error("production deployment requires RAZORPAY_WEBHOOK_SECRET")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config invalid float, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envMap parses "a=1,b=2" into a map. Malformed pairs are skipped.
func envMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:         c.AppName,
		AppEnv:          c.AppEnv,
		AppURL:          c.AppURL,
		Port:            c.Port,
		SupportEmail:    c.SupportEmail,
		PaymentProvider: c.PaymentProvider,
		PaymentCurrency: c.PaymentCurrency,
		RazorpayKeyID:   c.RazorpayKeyID, // public checkout key
		OriginalURLTTL:  c.OriginalURLTTL,
		StorageDriver:   c.StorageDriver,
		S3Endpoint:      c.S3Endpoint,
	}
}
