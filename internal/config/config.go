package config

import (
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "storefront"

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMongo  = "mongo"
)

type Config struct {
	APIURL          string        `envconfig:"API_URL" default:"http://localhost:5000/api"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`

	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	ValidateInterval time.Duration `envconfig:"VALIDATE_INTERVAL" default:"60s"`

	Storage Storage `envconfig:"STORAGE"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"storefront-stock-notices"`

	ShippingAddress domain.Address `envconfig:"SHIP"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Storage selects where the cart slot lives.
type Storage struct {
	Driver     string        `envconfig:"DRIVER" default:"sqlite"`
	SQLitePath string        `envconfig:"SQLITE_PATH" default:"storefront.db"`
	RedisAddr  string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisTTL   time.Duration `envconfig:"REDIS_TTL" default:"0"`
	MongoURI   string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB    string        `envconfig:"MONGO_DB" default:"storefront"`
}

// Load reads STOREFRONT_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverRedis, DriverMongo:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if !c.ShippingAddress.Complete() {
		return domain.ErrIncompleteAddress
	}
	return nil
}
