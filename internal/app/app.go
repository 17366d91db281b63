package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/vendor-kart/internal/catalogjson"
	"github.com/xenking/vendor-kart/internal/domain/auth"
	"github.com/xenking/vendor-kart/internal/domain/catalog"
	"github.com/xenking/vendor-kart/internal/domain/coupon"
	"github.com/xenking/vendor-kart/internal/domain/geo"
	"github.com/xenking/vendor-kart/internal/domain/order"
	"github.com/xenking/vendor-kart/internal/domain/session"
	"github.com/xenking/vendor-kart/internal/handler"
	"github.com/xenking/vendor-kart/internal/jsonserver"
	"github.com/xenking/vendor-kart/internal/repository"
	"github.com/xenking/vendor-kart/pkg/health"
	"github.com/xenking/vendor-kart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("catalog_source", cfg.Catalog.Source),
	)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Catalog source.
	products, err := newCatalog(cfg, m, pool, healthSvc)
	if err != nil {
		return err
	}

	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	store := session.NewStore(cfg.Session.TTL)
	store.StartCleanup(ctx)

	sessions, err := session.NewService(products, store,
		geo.StaticLocator{Point: cfg.Location.point()},
		m.MeterProvider(), m.TracerProvider(),
	)
	if err != nil {
		return errors.Wrap(err, "create session service")
	}
	orderService := order.NewService(sessions, coupon.NewRepoValidator(couponRepo), orderRepo)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		products,
		sessions,
		orderService,
		auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("kart-api", m),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   isProbe,
			}),
			httpmiddleware.LogRequests(),
		),
	}
	healthSvc.SetReady(true)

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
		lg.Info("Dropping sessions", zap.Int("count", store.Len()))
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newCatalog builds the configured catalog source and registers its
// readiness check.
func newCatalog(cfg *Config, m *app.Telemetry, pool *pgxpool.Pool, h *health.Health) (catalog.Repository, error) {
	switch cfg.Catalog.Source {
	case CatalogHTTP:
		stock, err := cfg.Catalog.defaultStock()
		if err != nil {
			return nil, err
		}
		client, err := jsonserver.NewClient(cfg.Catalog.URL,
			catalogjson.Options{DefaultStock: stock},
			jsonserver.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout}),
			jsonserver.WithTracerProvider(m.TracerProvider()),
		)
		if err != nil {
			return nil, errors.Wrap(err, "create catalog client")
		}
		h.AddReadinessCheck("catalog", cfg.Catalog.Timeout, health.PingCheck(client))
		return client, nil
	default:
		return repository.NewCatalogRepository(pool), nil
	}
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}
