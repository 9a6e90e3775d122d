// Package sqlitedb wires the modernc.org/sqlite driver into dbpool.
package sqlitedb

import (
	"context"

	_ "modernc.org/sqlite"

	"github.com/goforj/dbpool"
)

// Open builds and starts a sqlite-backed executor.
//
// Example:
//
//	exec, err := sqlitedb.Open(ctx, dbpool.Config{
//		URL: "file::memory:?cache=shared",
//	})
func Open(ctx context.Context, cfg dbpool.Config, opts ...dbpool.Option) (*dbpool.Executor, error) {
	cfg.Dialect = dbpool.DialectSQLite
	return dbpool.Open(ctx, cfg, opts...)
}

// NewConnector builds a sqlite connector without starting a pool.
func NewConnector(cfg dbpool.Config) (*dbpool.SQLConnector, error) {
	cfg.Dialect = dbpool.DialectSQLite
	return dbpool.NewSQLConnector(cfg)
}
