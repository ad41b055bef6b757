// Package server assembles the proxy's dependencies and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogp-proxy/internal/api"
	gcscache "github.com/JakeFAU/ogp-proxy/internal/cache/gcs"
	localcache "github.com/JakeFAU/ogp-proxy/internal/cache/local"
	memorycache "github.com/JakeFAU/ogp-proxy/internal/cache/memory"
	pgcache "github.com/JakeFAU/ogp-proxy/internal/cache/postgres"
	"github.com/JakeFAU/ogp-proxy/internal/config"
	collyfetcher "github.com/JakeFAU/ogp-proxy/internal/fetcher/colly"
	"github.com/JakeFAU/ogp-proxy/internal/imaging"
	"github.com/JakeFAU/ogp-proxy/internal/logging"
	"github.com/JakeFAU/ogp-proxy/internal/metadata"
	"github.com/JakeFAU/ogp-proxy/internal/placeholder"
	"github.com/JakeFAU/ogp-proxy/internal/policy/ratelimit"
	"github.com/JakeFAU/ogp-proxy/internal/proxy"
	memorypublisher "github.com/JakeFAU/ogp-proxy/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/ogp-proxy/internal/publisher/pubsub"
	"github.com/JakeFAU/ogp-proxy/internal/telemetry"
)

const defaultShutdownGrace = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	pgCache         *pgcache.Store
	tracerShutdown  func(context.Context) error
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	grace := time.Duration(a.cfg.Server.ShutdownGraceSeconds) * time.Second
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.apiServer.Drain(shutdownCtx); err != nil {
		a.logger.Warn("background work not drained", zap.Error(err))
	}
	a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure clients and flushes observability.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgCache != nil {
		a.pgCache.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on console sinks; nothing useful to do about it.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("fallback_mode", cfg.Server.FallbackMode),
		zap.String("version", version),
	)

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	responseCache, err := setupCache(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	fetcher := setupFetcher(app)
	app.apiServer = api.NewServer(api.Dependencies{
		Extractor:    metadata.New(fetcher, logger.Named("metadata")),
		Images:       imaging.NewPipeline(fetcher, imaging.WebPEncoder{Quality: cfg.Image.Quality}, logger.Named("imaging")),
		Placeholders: placeholder.New(),
		Cache:        responseCache,
		Publisher:    publisher,
	}, *cfg, logger.Named("api"))

	return app, nil
}

func setupCache(ctx context.Context, app *App) (proxy.ResponseCache, error) {
	cfg := app.cfg.Cache
	switch cfg.Backend {
	case config.CacheNone:
		app.logger.Info("response cache disabled")
		return nil, nil
	case config.CacheLocal:
		store, err := localcache.New(localcache.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local cache init failed: %w", err)
		}
		app.logger.Info("using local cache backend", zap.String("path", cfg.Local.BaseDir))
		return store, nil
	case config.CacheGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		store, err := gcscache.New(client, gcscache.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs cache init failed: %w", err)
		}
		app.logger.Info("using GCS cache backend", zap.String("bucket", cfg.GCS.Bucket))
		return store, nil
	case config.CachePostgres:
		store, err := pgcache.New(ctx, pgcache.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: int32(cfg.Postgres.MaxConns), //nolint:gosec // validated small positive value
		})
		if err != nil {
			return nil, fmt.Errorf("postgres cache init failed: %w", err)
		}
		app.pgCache = store
		app.logger.Info("using postgres cache backend", zap.String("table", cfg.Postgres.Table))
		return store, nil
	default:
		app.logger.Info("using in-memory cache backend", zap.Int("max_entries", cfg.MaxEntries))
		return memorycache.New(cfg.MaxEntries), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (proxy.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(memorypublisher.DefaultCapacity), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.pubsubPublisher = gcppublisher.New(client.Publisher(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupFetcher(app *App) *collyfetcher.Fetcher {
	var limiter proxy.Limiter
	if app.cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   app.cfg.RateLimit.RPS,
			DefaultBurst: app.cfg.RateLimit.Burst,
		})
		app.logger.Info("upstream rate limiter enabled",
			zap.Float64("rps", app.cfg.RateLimit.RPS),
			zap.Int("burst", app.cfg.RateLimit.Burst),
		)
	}
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:    app.cfg.HTTP.UserAgent,
		Timeout:      app.cfg.FetchTimeout(),
		MaxBodyBytes: app.cfg.HTTP.MaxBodyBytes,
		MaxRedirects: app.cfg.HTTP.MaxRedirects,
	}, limiter, app.logger.Named("fetcher"))
}
