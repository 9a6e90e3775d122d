package dbpool

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultMinPoolSize         = 5
	defaultMaxPoolSize         = 20
	defaultConnectionTimeout   = 30 * time.Second
	defaultIdleTimeout         = 10 * time.Minute
	defaultMaxLifetime         = 30 * time.Minute
	defaultMaintenanceInterval = 30 * time.Second
)

// Config controls how a pool and its executor are constructed.
type Config struct {
	// URL is the target descriptor (DSN) handed to the connector.
	URL string

	// Username and Password are optional credentials for dialects whose DSN
	// does not embed them.
	Username string
	Password string

	// Dialect selects the backend driver used by SQL connectors.
	Dialect Dialect

	// MinPoolSize is the floor maintenance keeps the pool replenished to.
	MinPoolSize int

	// MaxPoolSize bounds the number of physical connections ever open at once.
	MaxPoolSize int

	// ConnectionTimeout bounds one Acquire call across all of its sub-steps.
	ConnectionTimeout time.Duration

	// IdleTimeout is how long an idle connection may sit unused before the
	// maintenance pass destroys it.
	IdleTimeout time.Duration

	// MaxLifetime is the maximum age of a connection before validation
	// rejects it regardless of liveness.
	MaxLifetime time.Duration

	// MaintenanceInterval is the background eviction/replenishment cadence.
	MaintenanceInterval time.Duration

	// ValidationQuery overrides the dialect liveness probe when set.
	ValidationQuery string

	// Logger receives pool lifecycle and maintenance events. Defaults to a nop logger.
	Logger *zap.Logger

	// Observer receives one event per executor operation.
	Observer Observer
}

func (c Config) withDefaults() Config {
	if c.Dialect == "" {
		c.Dialect = DialectSQLite
	}
	if c.MinPoolSize <= 0 {
		c.MinPoolSize = defaultMinPoolSize
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MinPoolSize > c.MaxPoolSize {
		c.MinPoolSize = c.MaxPoolSize
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = defaultConnectionTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = defaultMaxLifetime
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = defaultMaintenanceInterval
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// fileConfig is the on-disk YAML shape. Timeouts are expressed in
// milliseconds to match the configuration surface of the platforms this
// library is embedded in.
type fileConfig struct {
	URL                 string `yaml:"url" json:"url"`
	Username            string `yaml:"username" json:"username"`
	Password            string `yaml:"password" json:"password"`
	Dialect             string `yaml:"dialect" json:"dialect"`
	MinPoolSize         int    `yaml:"min_pool_size" json:"min_pool_size"`
	MaxPoolSize         int    `yaml:"max_pool_size" json:"max_pool_size"`
	ConnectionTimeoutMs int64  `yaml:"connection_timeout_ms" json:"connection_timeout_ms"`
	IdleTimeoutMs       int64  `yaml:"idle_timeout_ms" json:"idle_timeout_ms"`
	MaxLifetimeMs       int64  `yaml:"max_lifetime_ms" json:"max_lifetime_ms"`
	MaintenanceMs       int64  `yaml:"maintenance_interval_ms" json:"maintenance_interval_ms"`
	ValidationQuery     string `yaml:"validation_query" json:"validation_query"`
}

// LoadConfig reads a YAML pool configuration from path.
func LoadConfig(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read pool config: %w", err)
	}
	return ParseConfig(body)
}

// ParseConfig decodes a YAML pool configuration.
func ParseConfig(body []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(body, &fc); err != nil {
		return Config{}, fmt.Errorf("parse pool config: %w", err)
	}
	cfg := Config{
		URL:                 fc.URL,
		Username:            fc.Username,
		Password:            fc.Password,
		Dialect:             Dialect(fc.Dialect),
		MinPoolSize:         fc.MinPoolSize,
		MaxPoolSize:         fc.MaxPoolSize,
		ConnectionTimeout:   time.Duration(fc.ConnectionTimeoutMs) * time.Millisecond,
		IdleTimeout:         time.Duration(fc.IdleTimeoutMs) * time.Millisecond,
		MaxLifetime:         time.Duration(fc.MaxLifetimeMs) * time.Millisecond,
		MaintenanceInterval: time.Duration(fc.MaintenanceMs) * time.Millisecond,
		ValidationQuery:     fc.ValidationQuery,
	}
	return cfg, nil
}
