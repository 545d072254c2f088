package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"neon/internal/domain/audit"
	"neon/internal/domain/auth"
	"neon/internal/domain/core"
	"neon/internal/domain/leave"
	"neon/internal/domain/notifications"
	"neon/internal/platform/cache"
	"neon/internal/platform/config"
	"neon/internal/platform/db"
	"neon/internal/platform/email"
	"neon/internal/platform/i18n"
	"neon/internal/platform/jobs"
	"neon/internal/platform/logger"
	"neon/internal/platform/metrics"
	"neon/internal/platform/sqlite"
	audithandler "neon/internal/transport/http/handlers/audit"
	corehandler "neon/internal/transport/http/handlers/core"
	leavehandler "neon/internal/transport/http/handlers/leave"
	notificationshandler "neon/internal/transport/http/handlers/notifications"
	settingshandler "neon/internal/transport/http/handlers/settings"
	"neon/internal/transport/http/middleware"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// stores groups the backend-specific implementations the services run on.
type stores struct {
	leave         leave.StoreAPI
	directory     core.Directory
	overrides     auth.OverrideStore
	notifications notifications.StoreAPI
	audit         audit.Sink
	runs          jobs.RunLog
	tenants       jobs.TenantLister
	ping          pinger
}

type App struct {
	Config   config.Config
	Router   http.Handler
	Jobs     *jobs.Service
	Leave    *leave.Service
	TenantID string

	// SQLite is set when the sqlite driver is in use.
	SQLite *sqlite.Store

	closers []func()
}

// New connects the configured store, seeds the default tenant and builds the
// router. Background jobs are not started.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := i18n.Init(cfg.DefaultLocale); err != nil {
		return nil, err
	}

	app := &App{Config: cfg}
	st, err := app.openStores(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	collector := metrics.New()

	var redisClient redis.UniversalClient
	if cfg.CachePendingCount && cfg.Redis.Addr != "" {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			zap.L().Warn("redis unavailable, caching disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			redisClient = client
			app.closers = append(app.closers, func() { _ = client.Close() })
		}
	}

	leaveSvc := leave.NewService(st.leave, st.directory)
	leaveSvc.Metrics = collector
	if redisClient != nil {
		leaveSvc.Cache = cache.NewPendingCounts(redisClient, cfg.PendingCountTTL, collector)
	}
	app.Leave = leaveSvc

	permSvc := auth.NewService(st.overrides)
	notifySvc := notifications.New(st.notifications, email.New(cfg.Email), cfg.Email.From)
	auditSvc := audit.New(st.audit)
	idem := cache.NewIdempotency(redisClient, 0)

	app.Jobs = jobs.New(st.runs, st.tenants, func(ctx context.Context, tenantID string) (any, error) {
		return leaveSvc.RunAccruals(ctx, tenantID)
	}, cfg.LeaveAccrualInterval)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Locale)
	router.Use(middleware.Logger)
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(collector))
	}
	router.Use(middleware.SecureHeaders(cfg.Environment == config.EnvProduction))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Accept-Language", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := st.ping.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", collector.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireUser)

		corehandler.NewHandler(st.directory, permSvc).RegisterRoutes(r)
		leavehandler.NewHandler(leaveSvc, permSvc, notifySvc, auditSvc, app.Jobs, idem).RegisterRoutes(r)
		settingshandler.NewHandler(permSvc, auditSvc).RegisterRoutes(r)
		notificationshandler.NewHandler(notifySvc).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc, permSvc).RegisterRoutes(r)
	})

	app.Router = router
	return app, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	switch a.Config.StoreDriver {
	case config.DriverSQLite:
		return a.openSQLite(ctx)
	default:
		return a.openPostgres(ctx)
	}
}

func (a *App) openPostgres(ctx context.Context) (stores, error) {
	pool, err := db.Connect(ctx, a.Config)
	if err != nil {
		return stores{}, fmt.Errorf("db connect: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if a.Config.RunMigrations {
		if err := db.Migrate(ctx, pool, a.Config.MigrationsDir); err != nil {
			return stores{}, fmt.Errorf("migrations: %w", err)
		}
	}
	if a.Config.RunSeed {
		tenantID, err := db.Seed(ctx, pool, a.Config)
		if err != nil {
			return stores{}, fmt.Errorf("seed: %w", err)
		}
		a.TenantID = tenantID
	}

	runs := jobs.NewPGRunLog(pool)
	return stores{
		leave:         leave.NewStore(pool),
		directory:     core.NewStore(pool),
		overrides:     auth.NewStore(pool),
		notifications: notifications.NewStore(pool),
		audit:         audit.NewStore(pool),
		runs:          runs,
		tenants:       runs,
		ping:          poolPinger{pool},
	}, nil
}

type poolPinger struct{ pool *pgxpool.Pool }

func (p poolPinger) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (a *App) openSQLite(ctx context.Context) (stores, error) {
	store, err := sqlite.Open(ctx, a.Config.SQLitePath)
	if err != nil {
		return stores{}, fmt.Errorf("sqlite open: %w", err)
	}
	a.SQLite = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	if a.Config.RunSeed {
		tenantID, err := store.EnsureTenant(ctx, a.Config.SeedTenantName)
		if err != nil {
			return stores{}, fmt.Errorf("seed tenant: %w", err)
		}
		if err := store.EnsureTypes(ctx, tenantID, leave.DefaultCatalog()); err != nil {
			return stores{}, fmt.Errorf("seed catalog: %w", err)
		}
		a.TenantID = tenantID
	}

	return stores{
		leave:         store,
		directory:     store,
		overrides:     store,
		notifications: store,
		audit:         store,
		runs:          store,
		tenants:       store,
		ping:          store,
	}, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Run loads configuration, serves HTTP and shuts down on SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	undo := zap.ReplaceGlobals(log)
	defer undo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	jobCtx, cancelJobs := context.WithCancel(ctx)
	app.Jobs.Start(jobCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Addr), zap.String("driver", cfg.StoreDriver), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		cancelJobs()
		app.Jobs.Wait()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	cancelJobs()
	app.Jobs.Wait()
	return err
}
