// Package dbpool provides a bounded pool of reusable database connections
// and a transactional executor on top of it.
//
// The pool owns every physical connection it creates: acquire blocks up to
// the connection timeout, validation happens on checkout, and a background
// maintenance pass evicts stale idle connections and keeps the pool filled
// to its floor. The executor wraps each checkout so the connection returns
// to the pool on every exit path, with any open transaction rolled back
// first.
//
// Example: run a transaction against sqlite
//
//	ctx := context.Background()
//	exec, err := dbpool.Open(ctx, dbpool.Config{
//		Dialect:     dbpool.DialectSQLite,
//		URL:         "file::memory:?cache=shared",
//		MinPoolSize: 2,
//		MaxPoolSize: 8,
//	})
//	if err != nil {
//		return err
//	}
//	defer exec.Pool().Shutdown(ctx)
//
//	err = exec.Transaction(ctx, func(q dbpool.Querier) error {
//		if _, err := q.Exec(ctx, "INSERT INTO users (name) VALUES (?)", "ada"); err != nil {
//			return err
//		}
//		_, err := q.Exec(ctx, "INSERT INTO audit (msg) VALUES (?)", "user added")
//		return err
//	})
package dbpool
