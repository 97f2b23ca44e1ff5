package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"ratehub/internal/application"
	"ratehub/internal/config"
	infraconfig "ratehub/internal/infrastructure/config"
	"ratehub/internal/infrastructure/filestore"
	httpserver "ratehub/internal/infrastructure/http"
	"ratehub/internal/infrastructure/httpx"
	"ratehub/internal/infrastructure/metrics"
	"ratehub/internal/infrastructure/pg"
	"ratehub/internal/infrastructure/provider"
	redisstore "ratehub/internal/infrastructure/redis"
	"ratehub/internal/infrastructure/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Storage is the persistence half of the service: one snapshot store and one
// history journal backed by the same medium.
type Storage struct {
	Snapshots application.SnapshotStore
	Journal   application.HistoryJournal
	UoW       application.UnitOfWork
	Ready     func(ctx context.Context) error
}

// App holds every long-lived component built from a Config.
type App struct {
	Config      config.Config
	Log         *zap.Logger
	Storage     Storage
	Sources     []application.SourceClient
	Metrics     *metrics.RateMetrics
	Resolver    *application.RateResolver
	Coordinator *application.Coordinator
	Idem        application.IdempotencyStore
}

// Build wires the service. The returned cleanup is always safe to call.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	storage, closeStorage, err := BuildStorage(ctx, cfg, log)
	if err != nil {
		return nil, cleanup, err
	}
	cleanups = append(cleanups, closeStorage)

	idem, closeIdem := BuildIdempotency(cfg, log)
	cleanups = append(cleanups, closeIdem)

	m := metrics.New()
	sources := BuildSources(cfg, log)
	// resolver and coordinator write the same snapshot
	writeMu := &sync.Mutex{}
	opts := []application.Option{
		application.WithWriteLock(writeMu),
		application.WithLogger(log),
		application.WithObserver(m),
		application.WithUnitOfWork(storage.UoW),
		application.WithSourceTimeout(cfg.SourceTimeout),
	}

	app := &App{
		Config:      cfg,
		Log:         log,
		Storage:     storage,
		Sources:     sources,
		Metrics:     m,
		Resolver:    application.NewRateResolver(storage.Snapshots, storage.Journal, sources, cfg.RatesTTL, opts...),
		Coordinator: application.NewCoordinator(sources, storage.Snapshots, storage.Journal, opts...),
		Idem:        idem,
	}
	return app, cleanup, nil
}

// BuildStorage selects the file or Postgres backend from STORAGE.
func BuildStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (Storage, func(), error) {
	switch cfg.Storage {
	case "pg":
		if cfg.DatabaseURL == "" {
			return Storage{}, func() {}, errors.New("DATABASE_URL is required for STORAGE=pg")
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return Storage{}, func() {}, fmt.Errorf("connect pg: %w", err)
		}
		if err := pg.RunMigrations(ctx, db); err != nil {
			db.Close()
			return Storage{}, func() {}, fmt.Errorf("migrate pg: %w", err)
		}
		log.Info("storage.ready", zap.String("backend", "pg"))
		return Storage{
				Snapshots: pg.NewSnapshotRepo(db),
				Journal:   pg.NewJournalRepo(db),
				UoW:       &pg.UnitOfWork{Pool: db.Pool},
				Ready:     db.Ping,
			}, func() {
				log.Info("closing pg")
				db.Close()
			}, nil
	case "file", "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return Storage{}, func() {}, fmt.Errorf("create data dir: %w", err)
		}
		snaps := filestore.NewSnapshotStore(cfg.RatesPath(), log)
		log.Info("storage.ready",
			zap.String("backend", "file"),
			zap.String("rates", cfg.RatesPath()),
			zap.String("history", cfg.HistoryPath()),
		)
		return Storage{
			Snapshots: snaps,
			Journal:   filestore.NewJournal(cfg.HistoryPath(), log),
			UoW:       application.NoopUoW{},
			Ready: func(ctx context.Context) error {
				_, _, err := snaps.Read(ctx)
				return err
			},
		}, func() {}, nil
	default:
		return Storage{}, func() {}, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}
}

// BuildSources returns the upstream clients in registration order. The order
// decides which source wins when two quote the same pair.
func BuildSources(cfg config.Config, log *zap.Logger) []application.SourceClient {
	if cfg.Provider == "fake" {
		return []application.SourceClient{provider.NewFake()}
	}
	client := &httpx.Client{
		HTTP: &http.Client{Timeout: infraconfig.DefaultHTTPClientTimeout},
		Log:  log,
	}
	if cfg.ExchangeRateAPIKey == "" {
		log.Warn("sources.exchangerate_key_missing")
	}
	return []application.SourceClient{
		provider.NewCoinGecko(cfg.CoinGeckoURL, cfg.CoinGeckoAPIKey, client),
		provider.NewExchangeRate(cfg.ExchangeRateAPIURL, cfg.ExchangeRateAPIKey, client),
	}
}

// BuildIdempotency returns the Redis-backed store when enabled, otherwise Noop.
func BuildIdempotency(cfg config.Config, log *zap.Logger) (application.IdempotencyStore, func()) {
	if cfg.IdempotencyBackend != "redis" {
		return application.NoopIdempotency{}, func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info("idempotency.redis", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.IdempotencyTTL))
	return redisstore.New(rdb, cfg.IdempotencyTTL), func() { _ = rdb.Close() }
}

// HTTPServer builds the API surface over app.
func (a *App) HTTPServer() *httpserver.Server {
	srv := httpserver.NewServer(a.Resolver, a.Coordinator, a.Storage.Snapshots)
	srv.SetReadyCheck(a.Storage.Ready)
	srv.SetIdempotency(a.Idem)
	srv.SetMetrics(a.Metrics.Handler())
	return srv
}

// Worker builds the periodic refresher. Each value on trigger forces a run.
func (a *App) Worker(trigger <-chan struct{}) *worker.RefreshWorker {
	return &worker.RefreshWorker{
		Refresher: a.Coordinator,
		Every:     a.Config.RefreshInterval,
		Trigger:   trigger,
		Log:       a.Log,
	}
}
