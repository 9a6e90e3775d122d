package dbpool

import (
	"context"
	"sync"
	"time"
)

// fakeConnector is an in-memory Connector used by unit tests. Every knob is
// guarded so tests can flip failures while the pool is running.
type fakeConnector struct {
	mu        sync.Mutex
	dials     int
	dialErr   error
	dialDelay time.Duration
	conns     []*fakeConn
	onConnect func(*fakeConn)
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{}
}

func (c *fakeConnector) Connect(ctx context.Context) (PhysicalConn, error) {
	c.mu.Lock()
	c.dials++
	err := c.dialErr
	delay := c.dialDelay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	conn := &fakeConn{}
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	hook := c.onConnect
	c.mu.Unlock()
	if hook != nil {
		hook(conn)
	}
	return conn, nil
}

func (c *fakeConnector) dialCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

func (c *fakeConnector) setDialErr(err error) {
	c.mu.Lock()
	c.dialErr = err
	c.mu.Unlock()
}

func (c *fakeConnector) openConns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	open := 0
	for _, conn := range c.conns {
		if !conn.isClosed() {
			open++
		}
	}
	return open
}

type fakeConn struct {
	mu         sync.Mutex
	pingErr    error
	execErr    error
	queryErr   error
	beginErr   error
	rows       []Row
	execs      []string
	closed     bool
	closeCount int
	txs        []*fakeTx
}

func (c *fakeConn) Exec(ctx context.Context, query string, _ ...any) (ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.execErr != nil {
		return ExecResult{}, c.execErr
	}
	c.execs = append(c.execs, query)
	return ExecResult{RowsAffected: 1, LastInsertID: int64(len(c.execs))}, nil
}

func (c *fakeConn) Query(_ context.Context, query string, _ ...any) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	c.execs = append(c.execs, query)
	return c.rows, nil
}

func (c *fakeConn) BeginTx(_ context.Context, level IsolationLevel) (Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	tx := &fakeTx{conn: c, level: level}
	c.txs = append(c.txs, tx)
	return tx, nil
}

func (c *fakeConn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCount++
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) setPingErr(err error) {
	c.mu.Lock()
	c.pingErr = err
	c.mu.Unlock()
}

func (c *fakeConn) setExecErr(err error) {
	c.mu.Lock()
	c.execErr = err
	c.mu.Unlock()
}

func (c *fakeConn) executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.execs))
	copy(out, c.execs)
	return out
}

func (c *fakeConn) transactions() []*fakeTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*fakeTx, len(c.txs))
	copy(out, c.txs)
	return out
}

type fakeTx struct {
	conn  *fakeConn
	level IsolationLevel

	mu        sync.Mutex
	execErr   error
	execs     []string
	commits   int
	rollbacks int
}

func (t *fakeTx) Exec(_ context.Context, query string, _ ...any) (ExecResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.execErr != nil {
		return ExecResult{}, t.execErr
	}
	t.execs = append(t.execs, query)
	return ExecResult{RowsAffected: 1}, nil
}

func (t *fakeTx) Query(_ context.Context, query string, _ ...any) ([]Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execs = append(t.execs, query)
	return nil, nil
}

func (t *fakeTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return nil
}

func (t *fakeTx) counts() (commits, rollbacks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commits, t.rollbacks
}
