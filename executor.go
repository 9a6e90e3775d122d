package dbpool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Executor orchestrates acquire → execute → release around the pool and
// records one stats sample per operation regardless of outcome.
type Executor struct {
	pool     Pool
	stats    *Stats
	logger   *zap.Logger
	observer Observer
}

// NewExecutor binds an executor to a started pool.
func NewExecutor(pool Pool, opts ...Option) *Executor {
	var cfg Config
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return newExecutor(pool, cfg)
}

func newExecutor(pool Pool, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		pool:     pool,
		stats:    &Stats{},
		logger:   cfg.Logger.With(zap.String("component", "executor")),
		observer: cfg.Observer,
	}
}

// Pool returns the underlying connection pool.
func (e *Executor) Pool() Pool { return e.pool }

// Stats returns a point-in-time snapshot of operation and pool counters.
func (e *Executor) Stats() StatsSnapshot { return e.stats.snapshot(e.pool) }

// Execute runs a write statement and reports the number of affected rows.
func (e *Executor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	mc, err := e.checkout(ctx)
	if err != nil {
		e.observe(ctx, OpExecute, start, err)
		return 0, err
	}
	defer mc.Close()

	res, err := mc.Exec(ctx, query, args...)
	e.observe(ctx, OpExecute, start, err)
	if err != nil {
		return 0, newDBError(OpExecute, err)
	}
	return res.RowsAffected, nil
}

// ExecuteInsert runs an insert statement and reports the generated key.
func (e *Executor) ExecuteInsert(ctx context.Context, query string, args ...any) (int64, error) {
	start := time.Now()
	mc, err := e.checkout(ctx)
	if err != nil {
		e.observe(ctx, OpExecute, start, err)
		return 0, err
	}
	defer mc.Close()

	res, err := mc.Exec(ctx, query, args...)
	e.observe(ctx, OpExecute, start, err)
	if err != nil {
		return 0, newDBError(OpExecute, err)
	}
	return res.LastInsertID, nil
}

// Query runs a read statement and returns fully materialized rows, so the
// connection is always back in the pool before the call returns.
func (e *Executor) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	start := time.Now()
	mc, err := e.checkout(ctx)
	if err != nil {
		e.observe(ctx, OpQuery, start, err)
		return nil, err
	}
	defer mc.Close()

	rows, err := mc.Query(ctx, query, args...)
	e.observe(ctx, OpQuery, start, err)
	if err != nil {
		return nil, newDBError(OpQuery, err)
	}
	return rows, nil
}

// QueryRow runs a read statement and returns the first row when present.
func (e *Executor) QueryRow(ctx context.Context, query string, args ...any) (Row, bool, error) {
	rows, err := e.Query(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// ExecuteBatch applies paramSets to query in the supplied order on one
// connection and reports the total affected rows. Any failure surfaces as a
// single error; callers must treat the batch as all-or-nothing and wrap it
// in Transaction when atomicity across sets is required.
func (e *Executor) ExecuteBatch(ctx context.Context, query string, paramSets [][]any) (int64, error) {
	start := time.Now()
	mc, err := e.checkout(ctx)
	if err != nil {
		e.observe(ctx, OpBatch, start, err)
		return 0, err
	}
	defer mc.Close()

	var affected int64
	for i, params := range paramSets {
		res, execErr := mc.Exec(ctx, query, params...)
		if execErr != nil {
			err = fmt.Errorf("parameter set %d: %w", i, execErr)
			break
		}
		affected += res.RowsAffected
	}
	e.observe(ctx, OpBatch, start, err)
	if err != nil {
		return 0, newDBError(OpBatch, err)
	}
	return affected, nil
}

// Transaction runs fn inside a transaction at the default isolation level.
func (e *Executor) Transaction(ctx context.Context, fn func(Querier) error) error {
	return e.TransactionWithIsolation(ctx, DefaultIsolation, fn)
}

// TransactionWithIsolation acquires a connection, begins a transaction at
// level, runs fn, and commits when fn returns nil. Any error from fn rolls
// the transaction back and is returned wrapped with the original cause.
// Exactly one of commit or rollback happens per call; the connection is
// released on every exit path, including panics.
func (e *Executor) TransactionWithIsolation(ctx context.Context, level IsolationLevel, fn func(Querier) error) error {
	start := time.Now()
	mc, err := e.checkout(ctx)
	if err != nil {
		e.observe(ctx, OpTransaction, start, err)
		return err
	}
	// Close rolls back any still-open transaction, so a panicking fn cannot
	// leak a connection mid-transaction back to the caller.
	defer mc.Close()

	if err := mc.Begin(ctx, level); err != nil {
		e.observe(ctx, OpTransaction, start, err)
		return err
	}

	if err := fn(mc); err != nil {
		if rbErr := mc.Rollback(); rbErr != nil {
			e.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		e.observe(ctx, OpTransaction, start, err)
		return newDBError(OpTransaction, err)
	}

	if err := mc.Commit(); err != nil {
		e.observe(ctx, OpTransaction, start, err)
		return err
	}
	e.observe(ctx, OpTransaction, start, nil)
	return nil
}

// InTransaction runs fn inside a transaction and propagates its return
// value as the transaction's result on commit.
func InTransaction[T any](ctx context.Context, e *Executor, level IsolationLevel, fn func(Querier) (T, error)) (T, error) {
	var out T
	err := e.TransactionWithIsolation(ctx, level, func(q Querier) error {
		v, err := fn(q)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// checkout acquires a connection and wraps it so release is guaranteed on
// every exit path.
func (e *Executor) checkout(ctx context.Context) (*ManagedConn, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return NewManagedConn(conn, e.pool), nil
}

func (e *Executor) observe(ctx context.Context, op string, start time.Time, err error) {
	dur := time.Since(start)
	e.stats.record(dur, err)
	if e.observer != nil {
		e.observer.OnDBOp(ctx, op, err == nil, err, dur)
	}
	if err != nil {
		e.logger.Debug("operation failed",
			zap.String("op", op), zap.Duration("duration", dur), zap.Error(err))
	}
}
