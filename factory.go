package dbpool

import "context"

// NewPool returns a concrete pool for the configuration. Today every
// configuration maps to the bounded pool; the indirection keeps pool
// selection a compile-time concern for callers that program against Pool.
func NewPool(cfg Config, connector Connector, opts ...Option) Pool {
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewBoundedPool(cfg, connector)
}

// New builds a pool around connector, starts it, and binds an executor to
// it. The executor is ready for traffic when New returns.
//
// Example: executor over a custom connector
//
//	ctx := context.Background()
//	exec, err := dbpool.New(ctx, dbpool.Config{MinPoolSize: 2, MaxPoolSize: 8}, connector)
//	if err != nil {
//		return err
//	}
//	defer exec.Pool().Shutdown(ctx)
func New(ctx context.Context, cfg Config, connector Connector, opts ...Option) (*Executor, error) {
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	cfg = cfg.withDefaults()
	pool := NewBoundedPool(cfg, connector)
	if err := pool.Start(ctx); err != nil {
		return nil, err
	}
	return newExecutor(pool, cfg), nil
}

// Open is a convenience that builds a database/sql connector from the
// configured dialect and URL, then hands it to New.
//
// Example: sqlite-backed executor
//
//	ctx := context.Background()
//	exec, err := dbpool.Open(ctx, dbpool.Config{
//		Dialect: dbpool.DialectSQLite,
//		URL:     "file::memory:?cache=shared",
//	})
func Open(ctx context.Context, cfg Config, opts ...Option) (*Executor, error) {
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	cfg = cfg.withDefaults()
	if cfg.ValidationQuery == "" {
		cfg.ValidationQuery = cfg.Dialect.ValidationQuery()
	}
	connector, err := NewSQLConnector(cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, connector)
}
