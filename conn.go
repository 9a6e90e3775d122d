package dbpool

import "context"

// IsolationLevel names a transaction isolation level. Connectors map it to
// whatever their backend understands.
type IsolationLevel string

const (
	LevelReadUncommitted IsolationLevel = "read_uncommitted"
	LevelReadCommitted   IsolationLevel = "read_committed"
	LevelRepeatableRead  IsolationLevel = "repeatable_read"
	LevelSerializable    IsolationLevel = "serializable"

	// DefaultIsolation is used when callers do not specify a level.
	DefaultIsolation = LevelReadCommitted
)

// Row is one materialized result row keyed by column name.
type Row map[string]any

// ExecResult reports the outcome of a write statement. LastInsertID is zero
// for backends that do not surface generated keys through the driver.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Connector opens physical connections to a backing store. Implementations
// must be safe for concurrent use; the pool dials from multiple goroutines.
type Connector interface {
	Connect(ctx context.Context) (PhysicalConn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (PhysicalConn, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (PhysicalConn, error) {
	return f(ctx)
}

// PhysicalConn is one live session against the backing store. The pool owns
// its lifecycle; application code sees it only through ManagedConn.
type PhysicalConn interface {
	Exec(ctx context.Context, query string, args ...any) (ExecResult, error)
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	BeginTx(ctx context.Context, level IsolationLevel) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx is an open transaction on one physical connection. Exactly one of
// Commit or Rollback must be called.
type Tx interface {
	Exec(ctx context.Context, query string, args ...any) (ExecResult, error)
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	Commit() error
	Rollback() error
}

// Querier is the statement surface transaction bodies receive: statements
// issued through it run inside the enclosing transaction.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (ExecResult, error)
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
}
