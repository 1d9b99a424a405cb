package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/kevinvillajim/bcommerce-core/db"
	"github.com/kevinvillajim/bcommerce-core/internal/app"
	"github.com/kevinvillajim/bcommerce-core/internal/auth"
	"github.com/kevinvillajim/bcommerce-core/internal/checkout"
	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/config"
	"github.com/kevinvillajim/bcommerce-core/internal/coupon"
	"github.com/kevinvillajim/bcommerce-core/internal/events"
	"github.com/kevinvillajim/bcommerce-core/internal/fulfillment"
	"github.com/kevinvillajim/bcommerce-core/internal/health"
	"github.com/kevinvillajim/bcommerce-core/internal/lock"
	"github.com/kevinvillajim/bcommerce-core/internal/notify"
	"github.com/kevinvillajim/bcommerce-core/internal/obs"
	"github.com/kevinvillajim/bcommerce-core/internal/order"
	"github.com/kevinvillajim/bcommerce-core/internal/payment"
	"github.com/kevinvillajim/bcommerce-core/internal/pricing"
	"github.com/kevinvillajim/bcommerce-core/internal/repo"
	"github.com/kevinvillajim/bcommerce-core/internal/resilience"
	"github.com/kevinvillajim/bcommerce-core/internal/security"
	"github.com/kevinvillajim/bcommerce-core/internal/settlement"
)

const defaultVolumeTiers = `[{"minQty":3,"percentBps":500,"label":"3+"},` +
	`{"minQty":5,"percentBps":800,"label":"5+"},` +
	`{"minQty":10,"percentBps":1000,"label":"10+"}]`

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "bcommerce")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "bcommerce-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if envBool("DB_MIGRATE_ON_START", true) {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := app.NewPool(ctx, cfg.DatabaseURL, "bcommerce-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, logger, metricsEnabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	asynqOpt, err := app.AsynqRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	taskClient := asynq.NewClient(asynqOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	orders := repo.Orders{DB: pool}
	payments := repo.Payments{DB: pool}
	coupons := repo.Coupons{DB: pool}
	tiers := repo.Tiers{DB: pool}
	eventStore := repo.Events{DB: pool}

	enqueuer := notify.Enqueuer{
		Client:   taskClient,
		Log:      logger,
		Queue:    cfg.NotifyQueue,
		MaxRetry: cfg.NotifyMaxRetry,
	}
	bus := &events.Bus{
		Store:     eventStore,
		Notifiers: []events.Notifier{enqueuer},
	}

	couponSvc := &coupon.Service{
		Q:                   coupons,
		Log:                 logger,
		DefaultPerUserLimit: cfg.CouponPerUserLimit,
	}

	tierJSON := cfg.VolumeDiscountTiers
	if strings.TrimSpace(tierJSON) == "" {
		tierJSON = defaultVolumeTiers
	}
	pricingSvc := &pricing.Service{
		Tiers: pricing.Resolver{
			Enabled: cfg.VolumeDiscountEnabled,
			Default: pricing.ParseTiers(tierJSON),
			Source:  pricing.RepoTierSource{Tiers: tiers},
		},
		Coupons: couponSvc,
		Cfg: pricing.Config{
			TaxBps:                cfg.TaxRateBPS,
			ShippingCost:          cfg.ShippingCost,
			FreeShippingThreshold: cfg.FreeShippingThreshold,
			Currency:              cfg.CurrencyCode,
		},
	}

	validate := validator.New()
	pricingHandler := &pricing.Handler{Svc: pricingSvc, Validate: validate}

	providers := map[string]payment.Provider{
		"datafast": payment.Datafast{
			ServerKey: cfg.DatafastServerKey,
			Sandbox:   cfg.AppEnv != "production",
		},
		"deuna": payment.DeUna{
			SecretKey: cfg.DeUnaSecretKey,
		},
	}
	activeProvider := providers[strings.ToLower(cfg.PaymentProvider)]
	if activeProvider == nil {
		activeProvider = providers["datafast"]
	}

	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).
		WithTarget("payment-gateway").
		WithLogger(logger)

	paymentSvc := &payment.Service{
		Orders:          orders,
		Payments:        payments,
		Provider:        activeProvider,
		Breaker:         breaker,
		IntentTTL:       cfg.PaymentIntentTTL,
		Timeout:         cfg.PaymentTimeout,
		CallbackBaseURL: cfg.PaymentCallbackBaseURL,
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc}

	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}
	paymentWebhook := payment.Webhook{
		Pool:      pool,
		Payments:  payments,
		Orders:    orders,
		Coupons:   coupons,
		Settler:   couponSvc,
		Providers: providers,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Locker:    locker,
		LockTTL:   cfg.WebhookLockTTL,
		Events:    bus,
		Log:       logger,
	}

	checkoutSvc := &checkout.Service{
		Pool:     pool,
		Orders:   orders,
		Payments: payments,
		Coupons:  coupons,
		Pricing:  pricingSvc,
		Settler:  couponSvc,
		Split: settlement.Config{
			Enabled:         cfg.ShippingSplitEnabled,
			SingleSellerBps: cfg.SingleSellerBPS,
			PerSellerBps:    cfg.PerSellerBPS,
		},
		Providers:       providers,
		DefaultProvider: cfg.PaymentProvider,
		Breaker:         breaker,
		IntentTTL:       cfg.PaymentIntentTTL,
		PaymentTimeout:  cfg.PaymentTimeout,
		CallbackBaseURL: cfg.PaymentCallbackBaseURL,
		Events:          bus,
		Log:             logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: validate}

	orderHandler := &order.Handler{Orders: orders}

	earningsSvc := &settlement.EarningsService{
		Q:   orders,
		R:   redisClient,
		Log: logger,
		TTL: cfg.EarningsCacheTTL,
	}
	settlementHandler := &settlement.Handler{Earnings: earningsSvc}

	fulfillmentSvc := &fulfillment.Service{Q: orders, Events: bus, Log: logger}
	fulfillmentHandler := &fulfillment.Handler{Svc: fulfillmentSvc}
	shippingWebhook := fulfillment.Webhook{
		Svc:       fulfillmentSvc,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	authMiddleware := auth.Middleware{
		Verifier: auth.Verifier{
			Secret: []byte(cfg.JWTSecret),
			Validator: auth.TokenValidator{
				Algorithm: jwa.HS256,
				ClockSkew: 30 * time.Second,
			},
		},
	}

	checkoutLimiter, err := app.RateLimiter(redisClient, cfg.CheckoutRatePerMinute, "rl:checkout")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     true,
		EnableHSTS: cfg.AppEnv == "production",
	}.Middleware)
	r.Use(security.BodyLimit{Max: envInt64("SECURE_MAX_BODY_BYTES", 1<<20)}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(authMiddleware.Authenticate).Post("/pricing/quote", pricingHandler.Quote)

		v.With(authMiddleware.RequireAuth, checkoutLimiter, idem.Middleware).
			Post("/checkout", checkoutHandler.Checkout)

		v.Group(func(buyer chi.Router) {
			buyer.Use(authMiddleware.RequireAuth)
			buyer.Get("/orders", orderHandler.List)
			buyer.Get("/orders/{orderID}", orderHandler.Get)
			buyer.Post("/orders/{orderID}/cancel", orderHandler.Cancel)
		})

		v.Route("/payments", func(p chi.Router) {
			p.Use(authMiddleware.RequireAuth)
			p.With(idem.Middleware).Post("/{orderID}/intent", paymentHandler.CreateIntent)
			p.Get("/{orderID}/status", paymentHandler.Status)
		})

		v.Group(func(seller chi.Router) {
			seller.Use(authMiddleware.RequireAuth)
			seller.Post("/seller-orders/{sellerOrderID}/ship", fulfillmentHandler.Ship)
			seller.Get("/sellers/{sellerID}/earnings", settlementHandler.SellerEarnings)
		})

		v.Post("/webhooks/payments/{provider}", paymentWebhook.Handle)
		v.Post("/webhooks/shipping/{courier}", shippingWebhook.Handle)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		health.SetReady(false)
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
