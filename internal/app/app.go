package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"oauthsample-go/internal/auth"
	"oauthsample-go/internal/config"
	"oauthsample-go/internal/metrics"
	"oauthsample-go/internal/resource"
	"oauthsample-go/internal/scheduler"
	"oauthsample-go/internal/storage"
	"oauthsample-go/internal/transport"
)

const (
	sweepJobName    = "pending-sweep"
	shutdownTimeout = 5 * time.Second
)

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *zap.Logger
	Auth          *auth.OAuthManager
	Resources     *resource.Client
	Pending       auth.PendingStore
	Scheduler     *scheduler.Scheduler
	Storage       *storage.SQLiteStorage
	HttpServer    *http.Server
	MetricsServer *http.Server

	router chi.Router
}

// New creates and initializes a new Application instance.
func New(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := context.Background()

	// Setup: Stores
	var (
		pending auth.PendingStore
		tokens  auth.TokenHolder
		db      *storage.SQLiteStorage
	)
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		dbCfg := storage.DefaultConfig()
		dbCfg.Path = cfg.DBPath
		var err error
		db, err = storage.Open(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		holder, err := storage.NewTokenHolder(db, []byte(cfg.EncryptionKey))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create token holder: %w", err)
		}
		pending = storage.NewPendingStore(db, cfg.PendingTTL.Duration)
		tokens = holder
	default:
		pending = auth.NewInMemoryPendingStore(cfg.PendingTTL.Duration)
		tokens = auth.NewInMemoryTokenHolder()
	}

	// Setup: Auth Manager
	httpClient := transport.NewClient(cfg.HTTPTimeout.Duration)
	oauthManager := auth.NewOAuthManager(auth.Settings{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		BackendURL:   cfg.BackendURL,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       cfg.ScopeList(),
	}, pending, tokens, httpClient, logger)
	if err := oauthManager.CheckEntropy(); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("random source unavailable: %w", err)
	}

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		Auth:      oauthManager,
		Resources: resource.NewClient(cfg.BackendURL, httpClient, logger),
		Pending:   pending,
		Scheduler: scheduler.NewScheduler(ctx, logger),
		Storage:   db,
	}

	// Setup: Pending sweep
	if _, err := app.Scheduler.Register(sweepJobName, cfg.SweepInterval.Duration, app.sweepPending); err != nil {
		return nil, fmt.Errorf("failed to register sweep job: %w", err)
	}

	// Setup: HTTP Server for metrics
	if cfg.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		app.MetricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	// Setup: Main HTTP Server
	app.router = app.routes()
	app.HttpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return app, nil
}

// Handler returns the application's HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.router
}

// sweepPending evicts expired pending authorizations and refreshes the gauge.
func (a *Application) sweepPending(ctx context.Context) error {
	removed, err := a.Pending.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweeping pending authorizations: %w", err)
	}
	if removed > 0 {
		metrics.PendingExpired.Add(float64(removed))
		a.Logger.Info("expired pending authorizations removed", zap.Int("count", removed))
	}
	a.updatePendingGauge(ctx)
	return nil
}

func (a *Application) updatePendingGauge(ctx context.Context) {
	n, err := a.Pending.Len(ctx)
	if err != nil {
		a.Logger.Warn("failed to count pending authorizations", zap.Error(err))
		return
	}
	metrics.PendingAuthorizations.Set(float64(n))
}

// Start begins the application's services. Listeners are bound before
// Start returns so that port conflicts surface as errors.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Info("starting application services")

	httpListener, err := net.Listen("tcp", a.HttpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.HttpServer.Addr, err)
	}

	if a.MetricsServer != nil {
		metricsListener, err := net.Listen("tcp", a.MetricsServer.Addr)
		if err != nil {
			httpListener.Close()
			return fmt.Errorf("failed to listen on %s: %w", a.MetricsServer.Addr, err)
		}
		go a.serve("metrics", a.MetricsServer, metricsListener)
	}

	a.Scheduler.Start()
	a.Logger.Info("scheduler started")

	go a.serve("http", a.HttpServer, httpListener)

	a.Logger.Info("oauth sample client ready",
		zap.String("addr", a.HttpServer.Addr),
		zap.String("backend_url", a.Config.BackendURL),
		zap.String("redirect_uri", a.Config.RedirectURL()))
	return nil
}

func (a *Application) serve(name string, srv *http.Server, ln net.Listener) {
	a.Logger.Info("server listening", zap.String("server", name), zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error("server stopped unexpectedly", zap.String("server", name), zap.Error(err))
	}
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Info("stopping application services")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	a.Scheduler.Stop()
	a.Logger.Info("scheduler stopped")

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}

	a.Logger.Info("application stopped")
	return errors.Join(errs...)
}
