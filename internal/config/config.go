package config

import (
	"fmt"
	"os"
	"time"

	"github.com/JoelVR17/Trustless-Work-Test/pkg/config"
)

// Backend names accepted by the escrow section.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	NotifyLog    = "log"
	NotifyMQ     = "mq"
	NotifyOutbox = "outbox"
)

type EscrowConfig struct {
	// StoreBackend 项目存储：memory | postgres | redis
	StoreBackend string `yaml:"store_backend"`
	// LedgerBackend 账本：memory | postgres
	LedgerBackend string `yaml:"ledger_backend"`
	// LockBackend 项目锁：memory | redis
	LockBackend   string        `yaml:"lock_backend"`
	NotifyBackend string        `yaml:"notify_backend"`
	HolderAddress string        `yaml:"holder_address"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	LockWait      time.Duration `yaml:"lock_wait"`
	// Breaker 包裹账本调用的熔断器
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type Config struct {
	LogLevel string              `yaml:"log_level"`
	DB       config.DBConfig     `yaml:"db"`
	Redis    config.RedisConfig  `yaml:"redis"`
	MQ       config.MQConfig     `yaml:"mq"`
	JWT      config.JWTConfig    `yaml:"jwt"`
	Server   config.ServerConfig `yaml:"server"`
	Otel     config.OtelConfig   `yaml:"otel"`
	Escrow   EscrowConfig        `yaml:"escrow"`
	Outbox   OutboxConfig        `yaml:"outbox"`
}

// Load 使用统一配置中心（CONFIG_ENV / CONFIG_DIR）
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, configDir string) (*Config, error) {
	var cfg Config
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOtelFromEnv(&cfg.Otel)
	overrideEscrowFromEnv(&cfg.Escrow)
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideEscrowFromEnv(cfg *EscrowConfig) {
	if v := os.Getenv("ESCROW_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("ESCROW_LEDGER_BACKEND"); v != "" {
		cfg.LedgerBackend = v
	}
	if v := os.Getenv("ESCROW_LOCK_BACKEND"); v != "" {
		cfg.LockBackend = v
	}
	if v := os.Getenv("ESCROW_NOTIFY_BACKEND"); v != "" {
		cfg.NotifyBackend = v
	}
	if v := os.Getenv("ESCROW_HOLDER_ADDRESS"); v != "" {
		cfg.HolderAddress = v
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.MQ.Queue == "" {
		c.MQ.Queue = "escrow.events.observer"
	}
	if c.MQ.MaxRetries <= 0 {
		c.MQ.MaxRetries = 3
	}

	e := &c.Escrow
	if e.StoreBackend == "" {
		e.StoreBackend = BackendMemory
	}
	if e.LedgerBackend == "" {
		e.LedgerBackend = BackendMemory
	}
	if e.LockBackend == "" {
		e.LockBackend = BackendMemory
	}
	if e.NotifyBackend == "" {
		e.NotifyBackend = NotifyLog
	}
	if e.HolderAddress == "" {
		e.HolderAddress = "escrow"
	}
	if e.LockTTL <= 0 {
		e.LockTTL = 10 * time.Second
	}
	if e.LockWait <= 0 {
		e.LockWait = 5 * time.Second
	}
	if e.BreakerFailures <= 0 {
		e.BreakerFailures = 5
	}
	if e.BreakerTimeout <= 0 {
		e.BreakerTimeout = 30 * time.Second
	}

	if c.Outbox.Interval <= 0 {
		c.Outbox.Interval = time.Second
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}
}

// Validate rejects unknown backends and combinations missing their
// dependencies.
func (c *Config) Validate() error {
	e := c.Escrow
	if !oneOf(e.StoreBackend, BackendMemory, BackendPostgres, BackendRedis) {
		return fmt.Errorf("escrow.store_backend: unknown backend %q", e.StoreBackend)
	}
	if !oneOf(e.LedgerBackend, BackendMemory, BackendPostgres) {
		return fmt.Errorf("escrow.ledger_backend: unknown backend %q", e.LedgerBackend)
	}
	if !oneOf(e.LockBackend, BackendMemory, BackendRedis) {
		return fmt.Errorf("escrow.lock_backend: unknown backend %q", e.LockBackend)
	}
	if !oneOf(e.NotifyBackend, NotifyLog, NotifyMQ, NotifyOutbox) {
		return fmt.Errorf("escrow.notify_backend: unknown backend %q", e.NotifyBackend)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.NeedsPostgres() && c.DB.Host == "" {
		return fmt.Errorf("db.host is required for the postgres backends")
	}
	if c.NeedsRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis backends")
	}
	if (e.NotifyBackend == NotifyMQ || e.NotifyBackend == NotifyOutbox) && c.MQ.URL == "" {
		return fmt.Errorf("mq.url is required for notify_backend %q", e.NotifyBackend)
	}
	if e.StoreBackend == BackendMemory && e.LockBackend == BackendRedis {
		return fmt.Errorf("redis locks with an in-memory store protect nothing across processes")
	}
	return nil
}

func (c *Config) NeedsPostgres() bool {
	return c.Escrow.StoreBackend == BackendPostgres ||
		c.Escrow.LedgerBackend == BackendPostgres ||
		c.Escrow.NotifyBackend == NotifyOutbox
}

func (c *Config) NeedsRedis() bool {
	return c.Escrow.StoreBackend == BackendRedis || c.Escrow.LockBackend == BackendRedis
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
