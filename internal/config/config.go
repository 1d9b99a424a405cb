package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string
	PublicBaseURL      string

	CurrencyCode string

	// Pricing knobs. Monetary values are minor units, rates are basis points.
	TaxRateBPS            int
	ShippingCost          int64
	FreeShippingThreshold int64
	VolumeDiscountEnabled bool
	VolumeDiscountTiers   string // JSON array, normalised by pricing.ParseTiers

	// Shipping-cost distribution across seller orders.
	ShippingSplitEnabled bool
	SingleSellerBPS      int
	PerSellerBPS         int

	CouponPerUserLimit int

	PaymentProvider        string
	PaymentIntentTTL       time.Duration
	PaymentCallbackBaseURL string
	PaymentTimeout         time.Duration
	DatafastServerKey      string
	DeUnaSecretKey         string

	IdempotencyTTL   time.Duration
	WebhookReplayTTL time.Duration
	WebhookLockTTL   time.Duration
	LockRetryBackoff time.Duration

	// Circuit breaker thresholds for payment provider calls.
	CircuitMinRequests int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	EarningsCacheTTL time.Duration

	CheckoutRatePerMinute int

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	NotifyQueue        string
	NotifyMaxRetry     int
	WorkerConcurrency  int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),

		CurrencyCode: valueOrDefault(k.String("CURRENCY_CODE"), "USD"),

		TaxRateBPS:            parseInt(k.String("PRICING_TAX_RATE_BPS"), 1500),
		ShippingCost:          parseInt64(k.String("PRICING_SHIPPING_COST"), 500),
		FreeShippingThreshold: parseInt64(k.String("PRICING_FREE_SHIPPING_THRESHOLD"), 5000),
		VolumeDiscountEnabled: parseBool(k.String("VOLUME_DISCOUNTS_ENABLED"), true),
		VolumeDiscountTiers:   k.String("VOLUME_DISCOUNT_TIERS"),

		ShippingSplitEnabled: parseBool(k.String("SHIPPING_SPLIT_ENABLED"), true),
		SingleSellerBPS:      parseInt(k.String("SHIPPING_SPLIT_SINGLE_SELLER_BPS"), 8000),
		PerSellerBPS:         parseInt(k.String("SHIPPING_SPLIT_PER_SELLER_BPS"), 4000),

		CouponPerUserLimit: parseInt(k.String("COUPON_PER_USER_LIMIT"), 1),

		PaymentProvider:        valueOrDefault(k.String("PAYMENT_PROVIDER"), "datafast"),
		PaymentIntentTTL:       parseDuration(k.String("PAYMENT_INTENT_TTL"), "15m"),
		PaymentCallbackBaseURL: strings.TrimSpace(k.String("PAYMENT_CALLBACK_BASE_URL")),
		PaymentTimeout:         parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),
		DatafastServerKey:      k.String("DATAFAST_SERVER_KEY"),
		DeUnaSecretKey:         k.String("DEUNA_SECRET_KEY"),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "48h"),
		WebhookLockTTL:   parseDuration(k.String("WEBHOOK_LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		CircuitMinRequests: parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailureRate: parseFloat(k.String("CIRCUIT_FAILURE_RATE"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		EarningsCacheTTL: parseDuration(k.String("EARNINGS_CACHE_TTL"), "5m"),

		CheckoutRatePerMinute: parseInt(k.String("CHECKOUT_RATE_PER_MINUTE"), 30),

		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED"), false),
		NotifyEmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "no-reply@bcommerce.local"),
		NotifyQueue:        valueOrDefault(k.String("NOTIFY_QUEUE"), "notifications"),
		NotifyMaxRetry:     parseInt(k.String("NOTIFY_MAX_RETRY"), 5),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
