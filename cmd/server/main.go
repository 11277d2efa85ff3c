package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/iliyamo/place-reservation/internal/config"
	"github.com/iliyamo/place-reservation/internal/database"
	"github.com/iliyamo/place-reservation/internal/handler"
	"github.com/iliyamo/place-reservation/internal/lock"
	"github.com/iliyamo/place-reservation/internal/logger"
	"github.com/iliyamo/place-reservation/internal/observability"
	"github.com/iliyamo/place-reservation/internal/queue"
	"github.com/iliyamo/place-reservation/internal/repository"
	"github.com/iliyamo/place-reservation/internal/router"
	"github.com/iliyamo/place-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	// calendar days, weeks and months are computed in the deployment zone
	time.Local = cfg.Location()

	engineCfg, err := config.LoadEngineConfig()
	if err != nil {
		logger.Fatal("engine config", "error", err)
	}
	notifyCfg, err := config.LoadNotifyConfig()
	if err != nil {
		logger.Fatal("notify config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	health := handler.NewHealthHandler()

	store, closeStore, err := openStore(ctx, cfg, engineCfg, health)
	if err != nil {
		logger.Fatal("open store", "driver", cfg.StoreDriver, "error", err)
	}
	defer closeStore()

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		health.Report("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var locker lock.Locker = lock.Noop{}
	switch {
	case !engineCfg.LockEnabled:
	case rdb != nil:
		locker = lock.NewRedis(rdb, "lock:place:", engineCfg.LockTTL, engineCfg.LockWait)
	default:
		locker = lock.NewLocal(engineCfg.LockWait)
	}

	var statsCache *service.StatsCache
	if rdb != nil {
		statsCache = service.NewStatsCache(rdb, engineCfg.StatsCacheTTL)
	}

	var (
		notifier  *service.Notifier
		consumers sync.WaitGroup
	)
	if notifyCfg.Enabled {
		pub := queue.NewPublisher(notifyCfg.AMQPURL, notifyCfg.Queue)
		defer func() { _ = pub.Close() }()
		notifier = service.NewNotifier(store.Users(), pub, metrics)

		if notifyCfg.ConsumerEnabled {
			sender := queue.NewExpoSender(notifyCfg.PushURL, notifyCfg.PushTimeout)
			consumer := queue.NewConsumer(notifyCfg.AMQPURL, notifyCfg.Queue, sender, metrics)
			consumers.Add(1)
			go func() {
				defer consumers.Done()
				_ = consumer.Run(ctx)
			}()
		}
	}

	reservations := service.NewReservationService(store, service.Options{
		Locker:   locker,
		Notifier: notifier,
		Cache:    statsCache,
		Metrics:  metrics,
	})
	stats := service.NewStatsService(store.Reservations(), statsCache, metrics)

	e := router.New(router.Deps{
		Reservations: handler.NewReservationHandler(reservations),
		Places:       handler.NewPlaceHandler(reservations),
		Stats:        handler.NewStatsHandler(stats),
		Health:       health,
		Metrics:      metrics,
		Redis:        rdb,
		JWTSecret:    cfg.JWTSecret,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        config.LoadCacheConfig(),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Get().Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver, "tz", time.Local.String())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Get().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Get().Error("http shutdown", "error", err)
	}
	notifier.Wait()
	consumers.Wait()
}

// openStore builds the configured store and registers its health check.
func openStore(ctx context.Context, cfg config.Config, engineCfg config.EngineConfig, health *handler.HealthHandler) (repository.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		mem := repository.NewMemoryStore()
		if cfg.SeedFile != "" {
			f, err := os.Open(cfg.SeedFile)
			if err != nil {
				return nil, nil, err
			}
			defer f.Close()
			if err := mem.LoadSeed(f); err != nil {
				return nil, nil, err
			}
		}
		logger.Get().Warn("using the in-memory store, data is lost on exit")
		return mem, func() {}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	health.Require("mysql", db.PingContext)
	return repository.NewMySQLStore(db, engineCfg.TxRetries), func() { _ = db.Close() }, nil
}
