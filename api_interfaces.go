package dbpool

import "context"

// StatementAPI exposes single-statement execution.
type StatementAPI interface {
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	ExecuteInsert(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	QueryRow(ctx context.Context, query string, args ...any) (Row, bool, error)
	ExecuteBatch(ctx context.Context, query string, paramSets [][]any) (int64, error)
}

// TransactionAPI exposes transactional execution.
type TransactionAPI interface {
	Transaction(ctx context.Context, fn func(Querier) error) error
	TransactionWithIsolation(ctx context.Context, level IsolationLevel, fn func(Querier) error) error
}

// MonitorAPI exposes read-only statistics for monitoring.
type MonitorAPI interface {
	Stats() StatsSnapshot
	Pool() Pool
}

// ExecutorAPI is the composed application-facing interface for Executor.
type ExecutorAPI interface {
	StatementAPI
	TransactionAPI
	MonitorAPI
}

var _ ExecutorAPI = (*Executor)(nil)
