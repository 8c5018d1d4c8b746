package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/internal/config"
	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/internal/notify"
	"github.com/JoelVR17/Trustless-Work-Test/internal/repository"
	"github.com/JoelVR17/Trustless-Work-Test/internal/token"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/circuitbreaker"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/lock"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/mq"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/outbox"
)

// backends holds the infrastructure chosen by the escrow config section.
type backends struct {
	store     escrow.Store
	ledger    token.Ledger
	locker    escrow.Locker
	notifier  escrow.Notifier
	publisher *mq.Publisher
	outbox    *outbox.Repository
}

func buildBackends(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, log *zap.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.Escrow.StoreBackend {
	case config.BackendPostgres:
		b.store = repository.NewProjectRepository(pool)
	case config.BackendRedis:
		b.store = repository.NewRedisProjectStore(rdb)
	default:
		b.store = repository.NewMemoryProjectStore()
	}

	switch cfg.Escrow.LedgerBackend {
	case config.BackendPostgres:
		b.ledger = token.NewPostgresLedger(pool)
	default:
		b.ledger = token.NewMemoryLedger()
	}

	switch cfg.Escrow.LockBackend {
	case config.BackendRedis:
		b.locker = lock.NewRedisLocker(rdb, cfg.Escrow.LockTTL, cfg.Escrow.LockWait, log)
	default:
		b.locker = escrow.NewKeyedMutex()
	}

	notifiers := notify.Multi{notify.NewLog(log)}
	if cfg.Escrow.NotifyBackend == config.NotifyMQ || cfg.Escrow.NotifyBackend == config.NotifyOutbox {
		publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		b.publisher = publisher
	}
	switch cfg.Escrow.NotifyBackend {
	case config.NotifyMQ:
		notifiers = append(notifiers, notify.NewPublisher(b.publisher, log))
	case config.NotifyOutbox:
		b.outbox = outbox.NewRepository(pool)
		notifiers = append(notifiers, notify.NewOutbox(b.outbox, log))
	}
	b.notifier = notifiers

	return b, nil
}

func (b *backends) token(cfg *config.Config, log *zap.Logger) escrow.Token {
	breaker := circuitbreaker.DefaultConfig()
	breaker.Name = "ledger"
	breaker.FailureThreshold = cfg.Escrow.BreakerFailures
	breaker.Timeout = cfg.Escrow.BreakerTimeout
	return token.NewGuarded(token.NewEscrow(b.ledger, escrow.Address(cfg.Escrow.HolderAddress)), breaker, log)
}

func (b *backends) close() {
	if b.publisher != nil {
		b.publisher.Close()
	}
}
