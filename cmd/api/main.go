package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-cart/api/controllers"
	"github.com/angelmondragon/packfinderz-cart/api/middleware"
	"github.com/angelmondragon/packfinderz-cart/api/routes"
	"github.com/angelmondragon/packfinderz-cart/internal/advanced"
	"github.com/angelmondragon/packfinderz-cart/internal/analytics"
	"github.com/angelmondragon/packfinderz-cart/internal/catalog"
	"github.com/angelmondragon/packfinderz-cart/internal/coordinator"
	"github.com/angelmondragon/packfinderz-cart/internal/persistence"
	"github.com/angelmondragon/packfinderz-cart/internal/security"
	"github.com/angelmondragon/packfinderz-cart/internal/validation"
	pkgbigquery "github.com/angelmondragon/packfinderz-cart/pkg/bigquery"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/db"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
	"github.com/angelmondragon/packfinderz-cart/pkg/migrate"
	pkgpubsub "github.com/angelmondragon/packfinderz-cart/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-cart/pkg/redis"
)

const publishTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})

	pingers := map[string]controllers.Pinger{}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()
	pingers["db"] = dbClient
	requireResource(ctx, logg, "migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "failed to close redis", err)
			}
		}()
		pingers["redis"] = redisClient
	}

	primary := persistence.NewGormStorage(dbClient.DB())
	var fallback persistence.Storage = persistence.NewMemoryStorage(0)
	if redisClient != nil && cfg.FeatureFlags.UseRedisFallback {
		fallback = persistence.NewRedisStorage(redisClient, cfg.Persistence.FallbackTTL)
	}

	fetcher, recommender, err := buildCatalog(cfg, dbClient)
	requireResource(ctx, logg, "catalog", err)

	validator, err := validation.NewService(fetcher, validation.Options{
		CacheTTL:           cfg.Validation.CacheTTL,
		FetchTimeout:       cfg.Validation.FetchTimeout,
		MaxRetries:         cfg.Validation.MaxRetries,
		BackgroundInterval: cfg.Validation.BackgroundInterval,
		BackgroundBatch:    cfg.Validation.BackgroundBatch,
		Concurrency:        cfg.Validation.Concurrency,
	}, logg)
	requireResource(ctx, logg, "validation service", err)

	sink, closers, err := buildSink(ctx, cfg, logg, pingers)
	requireResource(ctx, logg, "analytics sink", err)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logg.Error(ctx, "failed to close analytics client", err)
			}
		}
	}()

	var velocity security.VelocityLimiter = security.NewLocalVelocity(cfg.Security.VelocityLimit, cfg.Security.VelocityWindow)
	if redisClient != nil && cfg.FeatureFlags.UseRedisVelocity {
		velocity = security.NewRedisVelocity(redisClient, cfg.Security.VelocityLimit, cfg.Security.VelocityWindow)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cartMetrics := metrics.NewCartMetrics(promRegistry)

	deps := coordinator.Dependencies{
		Primary:     primary,
		Fallback:    fallback,
		Validator:   validator,
		Recommender: recommender,
		Sink:        sink,
		Velocity:    velocity,
		Metrics:     cartMetrics,
	}
	factory := func(_ context.Context, sessionID string) (*coordinator.Coordinator, error) {
		return coordinator.New(deps, cartOptions(cfg, sessionID), logg)
	}
	registry, err := coordinator.NewRegistry(factory, coordinator.RegistryOptions{
		MaintainInterval: cfg.Sessions.MaintainInterval,
		IdleTimeout:      cfg.Sessions.IdleTimeout,
	}, logg)
	requireResource(ctx, logg, "cart registry", err)

	var rateStore middleware.RateLimitStore
	if redisClient != nil {
		rateStore = redisClient
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"env": cfg.App.Env})

	addr := fmt.Sprintf(":%s", cfg.App.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, registry, rateStore, pingers, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return ignoreCanceled(validator.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(registry.Run(gctx))
	})
	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "addr", addr), "api server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "http server shutdown failed", err)
		}
		if err := registry.Close(shutdownCtx); err != nil {
			logg.Error(ctx, "failed to flush carts on shutdown", err)
		}
		logg.Info(ctx, "api server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func cartOptions(cfg *config.Config, sessionID string) coordinator.Options {
	return coordinator.Options{
		SessionID: sessionID,
		Persistence: persistence.Options{
			StorageKey: cfg.Persistence.StorageKey,
			Debounce:   cfg.Persistence.SaveDebounce,
		},
		Analytics: analytics.Options{
			BufferSize:         cfg.Analytics.BufferSize,
			HistorySize:        cfg.Analytics.HistorySize,
			AbandonmentTimeout: cfg.Analytics.AbandonmentTimeout,
			SyncInterval:       cfg.Analytics.SyncInterval,
		},
		Security: security.Options{
			Disabled:          !cfg.Security.Enabled,
			MaxQuantity:       cfg.Security.MaxQuantity,
			MaxCartValue:      cfg.Security.MaxCartValue,
			MaxProductPrice:   cfg.Security.MaxProductPrice,
			MaxSecurityErrors: cfg.Security.MaxSecurityErrors,
		},
		Advanced: advanced.Options{
			MaxRecommendations:    cfg.Advanced.MaxRecommendations,
			RecommendationTimeout: cfg.Advanced.RecommendationTimeout,
		},
		LockTTL:      cfg.Lock.TTL,
		RetryBackoff: cfg.Validation.RetryBackoff,
	}
}

type productCatalog interface {
	catalog.ProductFetcher
	catalog.Recommender
}

// buildCatalog reads products from the database when no catalog API is
// configured.
func buildCatalog(cfg *config.Config, dbClient *db.Client) (catalog.ProductFetcher, catalog.Recommender, error) {
	var source productCatalog
	if cfg.Catalog.UseDB || cfg.Catalog.BaseURL == "" {
		source = catalog.NewRepository(dbClient.DB())
	} else {
		client, err := catalog.NewClient(cfg.Catalog.BaseURL, catalog.WithTimeout(cfg.Catalog.Timeout))
		if err != nil {
			return nil, nil, err
		}
		source = client
	}
	return source, source, nil
}

func buildSink(ctx context.Context, cfg *config.Config, logg *logger.Logger, pingers map[string]controllers.Pinger) (analytics.Sink, []func() error, error) {
	kind := cfg.Analytics.SinkKind()
	var (
		sinks   []analytics.Sink
		closers []func() error
	)

	if kind == config.AnalyticsSinkPubSub || kind == config.AnalyticsSinkBoth {
		client, err := pkgpubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, closers, fmt.Errorf("pubsub client: %w", err)
		}
		closers = append(closers, client.Close)
		pingers["pubsub"] = client
		sink, err := analytics.NewPubSubSink(client.AnalyticsPublisher(), publishTimeout)
		if err != nil {
			return nil, closers, err
		}
		sinks = append(sinks, sink)
	}

	if kind == config.AnalyticsSinkBigQuery || kind == config.AnalyticsSinkBoth {
		client, err := pkgbigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			return nil, closers, fmt.Errorf("bigquery client: %w", err)
		}
		closers = append(closers, client.Close)
		pingers["bigquery"] = client
		sink, err := analytics.NewBigQuerySink(client, client.CartEventsTable(), analytics.RetryPolicy{})
		if err != nil {
			return nil, closers, err
		}
		sinks = append(sinks, sink)
	}

	switch len(sinks) {
	case 0:
		return analytics.NopSink{}, closers, nil
	case 1:
		return sinks[0], closers, nil
	default:
		return analytics.NewMultiSink(sinks...), closers, nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
