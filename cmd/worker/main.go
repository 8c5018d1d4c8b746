package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	contract "github.com/JoelVR17/Trustless-Work-Test/contracts/mq"
	"github.com/JoelVR17/Trustless-Work-Test/internal/config"
	"github.com/JoelVR17/Trustless-Work-Test/internal/mqhandler"
	"github.com/JoelVR17/Trustless-Work-Test/internal/repository"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/db"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/logger"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/mq"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/otel"
	redisclient "github.com/JoelVR17/Trustless-Work-Test/pkg/redis"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/util"
)

var version = "dev"

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Config initialization failed", zap.Error(err))
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting escrow event worker...")
	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Worker stopped with error", zap.Error(err))
	}
	log.Info("Worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdownOtel, err := otel.Setup(ctx, cfg.Otel, version, log)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownOtel(context.WithoutCancel(ctx)) }()

	var (
		deduper mqhandler.Deduper
		events  mqhandler.EventLog
		retries mq.RetryCounter
	)

	// Init Redis：去重与重试计数
	if cfg.Redis.Addr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, running without dedup", zap.Error(err))
		} else {
			defer rdb.Close()
			deduper = util.NewDeduper(rdb, time.Hour, log)
			retries = util.NewRetryCounter(rdb, time.Hour)
		}
	}

	// Init DB：事件审计日志
	if cfg.NeedsPostgres() {
		pool, err := db.NewConnection(ctx, cfg.DB, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		events = repository.NewEventLogRepository(pool)
		log.Info("Database connection established")
	}

	handler := mqhandler.NewEscrowEventHandler(deduper, events, log)

	log.Info("Initializing escrow event consumer", zap.String("queue", cfg.MQ.Queue))
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Exchange, cfg.MQ.Queue, contract.RoutingKeyAll, log)
	if err != nil {
		return err
	}
	defer consumer.Close()
	consumer.SetHandler(handler.Handle)

	dlq, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		return err
	}
	defer dlq.Close()
	consumer.SetDeadLetter(dlq, retries, cfg.MQ.MaxRetries)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.StartConsuming(gctx)
	})

	log.Info("Consumer started, worker is ready to process messages")
	return g.Wait()
}
