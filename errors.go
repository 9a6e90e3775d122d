package dbpool

import (
	"errors"
	"fmt"
)

// Operation tags carried by DBError so callers can branch on which stage of
// the pool or executor failed.
const (
	OpCreate      = "create"
	OpAcquire     = "acquire"
	OpExecute     = "execute"
	OpQuery       = "query"
	OpBatch       = "batch"
	OpTransaction = "transaction"
)

var (
	// ErrPoolExhausted is returned when Acquire cannot obtain a connection
	// within the configured connection timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned for any operation against a pool that is not
	// running.
	ErrPoolClosed = errors.New("connection pool is closed")

	// ErrConnClosed is returned when a managed connection is used after it
	// was returned to the pool.
	ErrConnClosed = errors.New("connection is closed")

	// ErrTxActive is returned when Begin is called while a transaction is
	// already open on the same connection.
	ErrTxActive = errors.New("transaction already in progress")

	// ErrNoTx is returned when Commit or Rollback is called with no open
	// transaction.
	ErrNoTx = errors.New("no transaction in progress")
)

// DBError tags an underlying failure with the operation that produced it.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("dbpool: %s: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

func newDBError(op string, err error) *DBError {
	return &DBError{Op: op, Err: err}
}
