package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
)

// SQLConnector opens physical connections through a database/sql driver.
// The embedded *sql.DB acts purely as a dialing handle: its internal idle
// pooling is disabled so that this package's pool is the single owner of
// every live session.
type SQLConnector struct {
	db      *sql.DB
	dialect Dialect
}

var _ Connector = (*SQLConnector)(nil)

// NewSQLConnector builds a connector for the configured dialect and URL.
// Configured credentials are applied to the DSN when it does not already
// embed them. The driver for the dialect must be registered; the dialect
// subpackages under driver/ do this via blank imports.
func NewSQLConnector(cfg Config) (*SQLConnector, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, newDBError(OpCreate, fmt.Errorf("dialect %q requires a target url", cfg.Dialect))
	}
	dsn, err := connectionDSN(cfg)
	if err != nil {
		return nil, newDBError(OpCreate, err)
	}
	db, err := sql.Open(cfg.Dialect.DriverName(), dsn)
	if err != nil {
		return nil, newDBError(OpCreate, err)
	}
	// Hand every session to the outer pool: nothing lingers idle here and
	// database/sql never caps concurrent dials below MaxPoolSize.
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(0)
	return &SQLConnector{db: db, dialect: cfg.Dialect}, nil
}

// connectionDSN applies the configured credentials to the target descriptor
// for dialects whose DSN carries them. Credentials already embedded in the
// URL win; sqlite has no credential syntax and passes through unchanged.
func connectionDSN(cfg Config) (string, error) {
	if cfg.Username == "" {
		return cfg.URL, nil
	}
	switch cfg.Dialect {
	case DialectPostgres:
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return "", fmt.Errorf("parse target url: %w", err)
		}
		if u.User == nil {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		}
		return u.String(), nil
	case DialectMySQL:
		if strings.Contains(cfg.URL, "@") {
			return cfg.URL, nil
		}
		return cfg.Username + ":" + cfg.Password + "@" + cfg.URL, nil
	default:
		return cfg.URL, nil
	}
}

// Connect opens one dedicated session.
func (c *SQLConnector) Connect(ctx context.Context) (PhysicalConn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

// Close releases the dialing handle. The pool calls this during shutdown.
func (c *SQLConnector) Close() error { return c.db.Close() }

type sqlConn struct {
	conn *sql.Conn
}

func (s *sqlConn) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, err
	}
	return execResult(res), nil
}

func (s *sqlConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (s *sqlConn) BeginTx(ctx context.Context, level IsolationLevel) (Tx, error) {
	tx, err := s.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sqlIsolation(level)})
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (s *sqlConn) Ping(ctx context.Context) error { return s.conn.PingContext(ctx) }

func (s *sqlConn) Close() error { return s.conn.Close() }

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, err
	}
	return execResult(res), nil
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

func sqlIsolation(level IsolationLevel) sql.IsolationLevel {
	switch level {
	case LevelReadUncommitted:
		return sql.LevelReadUncommitted
	case LevelRepeatableRead:
		return sql.LevelRepeatableRead
	case LevelSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}

// execResult extracts counters from a driver result. Drivers without insert
// id support (postgres) report zero rather than an error.
func execResult(res sql.Result) ExecResult {
	out := ExecResult{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out
}

// scanRows fully materializes rows so the session can be released before
// results are consumed. Byte slices are cloned because drivers reuse their
// scan buffers between rows.
func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = append([]byte(nil), b...)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
