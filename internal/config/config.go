package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/db"
)

// envPrefix namespaces every variable, e.g. CANTEEN_HTTP_ADDR.
const envPrefix = "canteen"

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR"` // empty disables the gRPC health listener

	// DB
	Env    string `envconfig:"ENV" default:"dev"` // "dev" | "prod"
	DBPath string `envconfig:"DB_PATH" default:"./data/canteen.db"`

	// DBBusyTimeout is SQLite's wait on a file lock held by another process.
	DBBusyTimeout time.Duration `envconfig:"DB_BUSY_TIMEOUT" default:"5s"`

	// TimeZone is the fixed zone every day key is derived in.
	TimeZone string `envconfig:"TIMEZONE" default:"Asia/Jakarta"`

	// WriteLockTimeout bounds how long an admission waits for the write scope
	// before it is reported as db_busy.
	WriteLockTimeout time.Duration `envconfig:"WRITE_LOCK_TIMEOUT" default:"2s"`

	// Directory cache
	DirectoryMaxAge          time.Duration `envconfig:"DIRECTORY_MAX_AGE" default:"5m"`
	DirectoryRefreshInterval time.Duration `envconfig:"DIRECTORY_REFRESH_INTERVAL" default:"1m"`

	// Notifications
	NotifyBuffer   int    `envconfig:"NOTIFY_BUFFER" default:"256"`
	RabbitURL      string `envconfig:"RABBIT_URL"` // empty disables the broker sink
	RabbitExchange string `envconfig:"RABBIT_EXCHANGE" default:"canteen.events"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT"` // console | json; defaults by Env
}

func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}

	if c.LogFormat == "" {
		if c.Env == "prod" {
			c.LogFormat = "json"
		} else {
			c.LogFormat = "console"
		}
	}

	if c.WriteLockTimeout <= 0 {
		c.WriteLockTimeout = 2 * time.Second
	}
	if c.DBBusyTimeout <= 0 {
		c.DBBusyTimeout = 5 * time.Second
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = 256
	}
}

// DB returns the storage settings for db.Open.
func (c Config) DB(log *zap.Logger) db.Config {
	return db.Config{Path: c.DBPath, BusyTimeout: c.DBBusyTimeout, Logger: log}
}

// Location resolves TimeZone. The binary embeds tzdata so this works on
// minimal images too.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}
