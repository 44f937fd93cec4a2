package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/checkout-gateway/internal/domain/cart"
	"github.com/xenking/checkout-gateway/internal/domain/order"
	"github.com/xenking/checkout-gateway/internal/domain/payment"
	"github.com/xenking/checkout-gateway/internal/geocode"
	"github.com/xenking/checkout-gateway/internal/handler"
	"github.com/xenking/checkout-gateway/internal/reference"
	"github.com/xenking/checkout-gateway/internal/storage/postgres"
	rediscache "github.com/xenking/checkout-gateway/internal/storage/redis"
	"github.com/xenking/checkout-gateway/pkg/health"
	"github.com/xenking/checkout-gateway/pkg/httpmiddleware"
)

const serviceName = "checkout-gateway"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg)
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool),
		health.WithInterval(cfg.Health.DatabaseInterval),
	)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Order storage, optionally behind the Redis cache.
	var orders order.Repository = postgres.NewOrderRepository(pool)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, health.WithThresholds(3, 1))
		orders = rediscache.NewOrderCache(orders, rdb, cfg.Redis.TTL)
		lg.Info("Order cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	healthSvc.Start(ctx, cfg.Health.Interval)
	healthSvc.SetReady(true)

	if cfg.Geocode.APIKey == "" {
		lg.Warn("Geocoding API key not configured, orders will be stored without coordinates")
	}
	geocoder := geocode.New(lg.Named("geocode"), geocode.Config{
		APIKey:          cfg.Geocode.APIKey,
		BaseURL:         cfg.Geocode.BaseURL,
		Timeout:         cfg.Geocode.Timeout,
		BreakerFailures: cfg.Geocode.BreakerFailures,
		BreakerCooldown: cfg.Geocode.BreakerCooldown,
	}, geocode.WithHTTPClient(&http.Client{
		Timeout: cfg.Geocode.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}))

	// Domain services.
	cartStore := cart.NewStore(cart.DefaultSeed()...)
	payments := payment.NewSimulator(payment.Config{
		Latency:     cfg.Payment.Latency,
		FailureRate: cfg.Payment.FailureRate,
	})
	orderService := order.NewService(
		order.Config{
			TrustLineTotals:   cfg.Order.TrustLineTotals,
			ReferenceAttempts: cfg.Order.ReferenceAttempts,
			GeocodeTimeout:    cfg.Geocode.Timeout,
		},
		orders,
		cartStore,
		geocoder,
		reference.NewGenerator(reference.PrefixOrder),
	)

	paymentLimiter := payment.NewLimiter(payment.LimiterConfig{
		MaxFailures: cfg.Payment.MaxFailures,
		Window:      cfg.Payment.FailureWindow,
	})
	go paymentLimiter.Run(ctx, cfg.Payment.FailureWindow)

	h, err := handler.NewHandler(
		handler.HandlerConfig{
			MeterProvider:  m.MeterProvider(),
			PaymentLimiter: paymentLimiter,
		},
		cartStore,
		orderService,
		payments,
	)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteError(w, r, http.StatusNotFound, fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteError(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
	})
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Get("/health", healthSvc.ReportEndpoint)
	h.Mount(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Payment processing is simulated with a delay.
		WriteTimeout:   10*time.Second + cfg.Payment.Latency,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.CorrelationID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
