package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Database DatabaseConfig `env:",prefix=DB_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	Kafka    KafkaConfig    `env:",prefix=KAFKA_"`
	GiftCard GiftCardConfig `env:",prefix=GIFT_CARD_"`
	Log      LogConfig      `env:",prefix=LOG_"`
}

// ServerConfig holds the operational HTTP surface settings.
type ServerConfig struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port string `env:"PORT,default=8080"`
}

// DatabaseConfig selects the ledger store. The dialect is inferred from the DSN.
type DatabaseConfig struct {
	DSN      string `env:"DSN,default=user:password@tcp(localhost:3306)/giftledger?charset=utf8mb4&parseTime=True&loc=Local"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
	Reset    bool   `env:"RESET,default=false"`
}

// RedisConfig holds cache and distributed lock settings.
type RedisConfig struct {
	Addr     string `env:"ADDR,default=localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0"`
}

// KafkaConfig holds ledger event streaming settings.
type KafkaConfig struct {
	Enabled bool     `env:"ENABLED,default=false"`
	Brokers []string `env:"BROKERS,default=localhost:9092"`
	Topic   string   `env:"TOPIC,default=gift_card_ledger"`
}

// GiftCardConfig holds ledger policy.
type GiftCardConfig struct {
	// RedeemEnabled gates conversion of gift card balances into store credit.
	RedeemEnabled bool   `env:"REDEEM_ENABLED,default=true"`
	CodeLength    int    `env:"CODE_LENGTH,default=16"`
	Currency      string `env:"CURRENCY,default=USD"`
	// LockBackend is "memory" for a single process or "redis" when several processes share a store.
	LockBackend string        `env:"LOCK_BACKEND,default=memory"`
	LockTTL     time.Duration `env:"LOCK_TTL,default=10s"`
	CacheTTL    time.Duration `env:"CACHE_TTL,default=5m"`

	// DeliveryInterval is how often due e-mail deliveries are swept. Zero disables the sweep.
	DeliveryInterval time.Duration `env:"DELIVERY_INTERVAL,default=1m"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level      string `env:"LEVEL,default=info"`
	Format     string `env:"FORMAT,default=json"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB,default=100"`
	MaxBackups int    `env:"MAX_BACKUPS,default=5"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS,default=30"`
}

// Load builds Config from the environment with sensible defaults.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	return &cfg, nil
}

// LoadFrom builds Config from an explicit lookuper, used by tests and the seed tool.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	return &cfg, nil
}

// Addr returns the HTTP listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
