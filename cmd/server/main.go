package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JoelVR17/Trustless-Work-Test/internal/config"
	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/internal/handler"
	"github.com/JoelVR17/Trustless-Work-Test/internal/httpserver"
	"github.com/JoelVR17/Trustless-Work-Test/internal/repository"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/db"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/logger"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/otel"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/outbox"
	redisclient "github.com/JoelVR17/Trustless-Work-Test/pkg/redis"
)

var version = "dev"

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Config initialization failed", zap.Error(err))
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Escrow server stopped with error", zap.Error(err))
	}
	log.Info("Escrow server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdownOtel, err := otel.Setup(ctx, cfg.Otel, version, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownOtel(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	readiness := map[string]httpserver.ReadinessCheck{}

	// 2. Init DB
	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		pool, err = db.NewConnection(ctx, cfg.DB, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		readiness["db"] = pool.Ping
	}

	// 3. Init Redis
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		readiness["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// 4. Backends & engine
	b, err := buildBackends(cfg, pool, rdb, log)
	if err != nil {
		return err
	}
	defer b.close()
	if b.publisher != nil {
		readiness["mq"] = func(context.Context) error {
			if !b.publisher.IsConnected() {
				return errors.New("mq connection closed")
			}
			return nil
		}
	}

	engine := escrow.NewEngine(b.store, b.token(cfg, log), log,
		escrow.WithNotifier(b.notifier),
		escrow.WithLocker(b.locker),
	)

	log.Info("Escrow engine ready",
		zap.String("store", cfg.Escrow.StoreBackend),
		zap.String("ledger", cfg.Escrow.LedgerBackend),
		zap.String("lock", cfg.Escrow.LockBackend),
		zap.String("notify", cfg.Escrow.NotifyBackend),
		zap.String("holder", cfg.Escrow.HolderAddress),
	)

	// 5. HTTP
	deps := httpserver.Deps{
		Projects:  handler.NewProjectHandler(engine, log),
		Ledger:    handler.NewLedgerHandler(b.ledger, log),
		JWTSecret: cfg.JWT.Secret,
		Logger:    log,
		Readiness: readiness,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 6. Outbox dispatcher
	if b.outbox != nil {
		deps.Admin = handler.NewAdminHandler(outbox.NewReplayService(b.outbox, b.publisher, log), log)
		dispatcher := outbox.NewDispatcher(b.outbox, b.publisher, log).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
	}

	router := httpserver.NewRouter(deps)
	g.Go(func() error {
		return router.Serve(gctx, ":"+cfg.Server.Port, cfg.Server.ShutdownTimeout, log)
	})

	return g.Wait()
}
