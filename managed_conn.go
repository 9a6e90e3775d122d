package dbpool

import (
	"context"
	"sync"
	"sync/atomic"
)

// ManagedConn scopes one checkout: it wraps the acquired physical connection
// so that Close means "return to pool", rolling back any open transaction
// first. It is created per checkout and must not be shared across goroutines.
type ManagedConn struct {
	conn PhysicalConn
	pool Pool

	closed atomic.Bool

	mu sync.Mutex
	tx Tx
}

// NewManagedConn wraps an acquired connection. The caller must Close it on
// every exit path; Close is idempotent and releases exactly once.
func NewManagedConn(conn PhysicalConn, pool Pool) *ManagedConn {
	return &ManagedConn{conn: conn, pool: pool}
}

// Exec runs a write statement, routed through the open transaction when one
// is active.
func (m *ManagedConn) Exec(ctx context.Context, query string, args ...any) (ExecResult, error) {
	if m.closed.Load() {
		return ExecResult{}, newDBError(OpExecute, ErrConnClosed)
	}
	if tx := m.currentTx(); tx != nil {
		return tx.Exec(ctx, query, args...)
	}
	return m.conn.Exec(ctx, query, args...)
}

// Query runs a read statement, routed through the open transaction when one
// is active.
func (m *ManagedConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if m.closed.Load() {
		return nil, newDBError(OpQuery, ErrConnClosed)
	}
	if tx := m.currentTx(); tx != nil {
		return tx.Query(ctx, query, args...)
	}
	return m.conn.Query(ctx, query, args...)
}

// Begin opens a transaction at the requested isolation level.
func (m *ManagedConn) Begin(ctx context.Context, level IsolationLevel) error {
	if m.closed.Load() {
		return newDBError(OpTransaction, ErrConnClosed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tx != nil {
		return newDBError(OpTransaction, ErrTxActive)
	}
	if level == "" {
		level = DefaultIsolation
	}
	tx, err := m.conn.BeginTx(ctx, level)
	if err != nil {
		return newDBError(OpTransaction, err)
	}
	m.tx = tx
	return nil
}

// Commit finishes the open transaction.
func (m *ManagedConn) Commit() error {
	m.mu.Lock()
	tx := m.tx
	m.tx = nil
	m.mu.Unlock()
	if tx == nil {
		return newDBError(OpTransaction, ErrNoTx)
	}
	if err := tx.Commit(); err != nil {
		return newDBError(OpTransaction, err)
	}
	return nil
}

// Rollback aborts the open transaction.
func (m *ManagedConn) Rollback() error {
	m.mu.Lock()
	tx := m.tx
	m.tx = nil
	m.mu.Unlock()
	if tx == nil {
		return newDBError(OpTransaction, ErrNoTx)
	}
	if err := tx.Rollback(); err != nil {
		return newDBError(OpTransaction, err)
	}
	return nil
}

// InTransaction reports whether a transaction is open on this checkout.
func (m *ManagedConn) InTransaction() bool {
	return m.currentTx() != nil
}

// Valid probes the underlying connection's liveness.
func (m *ManagedConn) Valid(ctx context.Context) error {
	if m.closed.Load() {
		return newDBError(OpQuery, ErrConnClosed)
	}
	return m.conn.Ping(ctx)
}

// Close returns the physical connection to the pool. The first call rolls
// back any open transaction so a connection never re-enters the idle queue
// mid-transaction; subsequent calls are no-ops.
func (m *ManagedConn) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.mu.Lock()
	tx := m.tx
	m.tx = nil
	m.mu.Unlock()
	if tx != nil {
		_ = tx.Rollback()
	}
	m.pool.Release(m.conn)
	return nil
}

func (m *ManagedConn) currentTx() Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx
}
