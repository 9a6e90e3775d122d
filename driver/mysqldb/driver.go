// Package mysqldb wires the go-sql-driver/mysql driver into dbpool.
package mysqldb

import (
	"context"

	_ "github.com/go-sql-driver/mysql"

	"github.com/goforj/dbpool"
)

// Open builds and starts a mysql-backed executor.
func Open(ctx context.Context, cfg dbpool.Config, opts ...dbpool.Option) (*dbpool.Executor, error) {
	cfg.Dialect = dbpool.DialectMySQL
	return dbpool.Open(ctx, cfg, opts...)
}

// NewConnector builds a mysql connector without starting a pool.
func NewConnector(cfg dbpool.Config) (*dbpool.SQLConnector, error) {
	cfg.Dialect = dbpool.DialectMySQL
	return dbpool.NewSQLConnector(cfg)
}
