package dbpool

import (
	"time"

	"go.uber.org/zap"
)

// Option mutates Config when constructing a pool or executor.
type Option func(Config) Config

// WithMinPoolSize sets the connection floor maintenance replenishes to.
func WithMinPoolSize(n int) Option {
	return func(cfg Config) Config {
		cfg.MinPoolSize = n
		return cfg
	}
}

// WithMaxPoolSize bounds how many physical connections may exist at once.
func WithMaxPoolSize(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxPoolSize = n
		return cfg
	}
}

// WithConnectionTimeout bounds one Acquire call end to end.
func WithConnectionTimeout(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.ConnectionTimeout = d
		return cfg
	}
}

// WithIdleTimeout sets how long idle connections survive between maintenance passes.
func WithIdleTimeout(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.IdleTimeout = d
		return cfg
	}
}

// WithMaxLifetime caps connection age before validation rejects it.
func WithMaxLifetime(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.MaxLifetime = d
		return cfg
	}
}

// WithMaintenanceInterval overrides the background maintenance cadence.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.MaintenanceInterval = d
		return cfg
	}
}

// WithValidationQuery replaces the dialect liveness probe with a statement.
func WithValidationQuery(query string) Option {
	return func(cfg Config) Config {
		cfg.ValidationQuery = query
		return cfg
	}
}

// WithLogger attaches a structured logger for lifecycle and maintenance events.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg Config) Config {
		cfg.Logger = logger
		return cfg
	}
}

// WithObserver attaches an observer receiving one event per operation.
func WithObserver(o Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = o
		return cfg
	}
}
