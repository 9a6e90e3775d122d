package pooltest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goforj/dbpool"
)

// Options configures shared pool contract checks.
type Options struct {
	// MinPoolSize and MaxPoolSize shape the pool under test. Defaults: 1 and 3.
	MinPoolSize int
	MaxPoolSize int
	// AcquireTimeout bounds each acquire during the suite. Defaults to 2s.
	AcquireTimeout time.Duration
	// ExhaustionTimeout bounds the acquire expected to fail when the pool is
	// full. Defaults to 200ms; raise it for slow backends.
	ExhaustionTimeout time.Duration
	// SkipExhaustionCheck disables the full-pool timeout assertion for
	// backends where holding MaxPoolSize sessions is expensive.
	SkipExhaustionCheck bool
}

func (o Options) withDefaults() Options {
	if o.MinPoolSize <= 0 {
		o.MinPoolSize = 1
	}
	if o.MaxPoolSize <= 0 {
		o.MaxPoolSize = 3
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 2 * time.Second
	}
	if o.ExhaustionTimeout <= 0 {
		o.ExhaustionTimeout = 200 * time.Millisecond
	}
	return o
}

// RunPoolContract exercises the behavior every pool must honor against a
// live connector: pre-fill, reuse, bounded growth, exhaustion, release
// accounting, and shutdown semantics.
func RunPoolContract(t *testing.T, connector dbpool.Connector, opts Options) {
	t.Helper()
	opts = opts.withDefaults()
	ctx := context.Background()

	newPool := func(t *testing.T, extra ...dbpool.Option) dbpool.Pool {
		t.Helper()
		base := []dbpool.Option{
			dbpool.WithMinPoolSize(opts.MinPoolSize),
			dbpool.WithMaxPoolSize(opts.MaxPoolSize),
			dbpool.WithConnectionTimeout(opts.AcquireTimeout),
			dbpool.WithMaintenanceInterval(time.Hour),
		}
		pool := dbpool.NewPool(dbpool.Config{}, connector, append(base, extra...)...)
		if err := pool.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		t.Cleanup(func() { _ = pool.Shutdown(ctx) })
		return pool
	}

	t.Run("start_prefills_minimum", func(t *testing.T) {
		pool := newPool(t)
		if got := pool.IdleCount(); got != opts.MinPoolSize {
			t.Fatalf("idle = %d, want %d", got, opts.MinPoolSize)
		}
		if got := pool.ActiveCount(); got != 0 {
			t.Fatalf("active = %d, want 0", got)
		}
		if !pool.IsRunning() {
			t.Fatalf("expected running pool")
		}
	})

	t.Run("acquire_release_roundtrip", func(t *testing.T) {
		pool := newPool(t)
		conn, err := pool.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		if err := conn.Ping(ctx); err != nil {
			t.Fatalf("acquired connection not live: %v", err)
		}
		if got := pool.ActiveCount(); got != 1 {
			t.Fatalf("active = %d, want 1", got)
		}

		pool.Release(conn)
		if got := pool.ActiveCount(); got != 0 {
			t.Fatalf("active after release = %d, want 0", got)
		}
		if got := pool.TotalCount(); got != opts.MinPoolSize {
			t.Fatalf("total after release = %d, want %d", got, opts.MinPoolSize)
		}
	})

	t.Run("growth_stops_at_max", func(t *testing.T) {
		pool := newPool(t)
		held := make([]dbpool.PhysicalConn, 0, opts.MaxPoolSize)
		for i := 0; i < opts.MaxPoolSize; i++ {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				t.Fatalf("acquire %d failed: %v", i, err)
			}
			held = append(held, conn)
		}
		if got := pool.TotalCount(); got != opts.MaxPoolSize {
			t.Fatalf("total = %d, want %d", got, opts.MaxPoolSize)
		}

		if !opts.SkipExhaustionCheck {
			shortCtx, cancel := context.WithTimeout(ctx, opts.ExhaustionTimeout)
			_, err := pool.Acquire(shortCtx)
			cancel()
			if err == nil {
				t.Fatalf("expected acquire beyond max to fail")
			}
		}

		for _, conn := range held {
			pool.Release(conn)
		}
		if got := pool.ActiveCount(); got != 0 {
			t.Fatalf("active after releases = %d, want 0", got)
		}
	})

	t.Run("release_unknown_is_noop", func(t *testing.T) {
		pool := newPool(t)
		stranger, err := connector.Connect(ctx)
		if err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		defer stranger.Close()

		before := pool.TotalCount()
		pool.Release(stranger)
		if got := pool.TotalCount(); got != before {
			t.Fatalf("total changed on unknown release: %d -> %d", before, got)
		}
		if got := pool.ActiveCount(); got != 0 {
			t.Fatalf("active changed on unknown release: %d", got)
		}
	})

	t.Run("shutdown_rejects_acquire", func(t *testing.T) {
		pool := newPool(t)
		if err := pool.Shutdown(ctx); err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}
		if pool.IsRunning() {
			t.Fatalf("expected stopped pool")
		}
		if _, err := pool.Acquire(ctx); !errors.Is(err, dbpool.ErrPoolClosed) {
			t.Fatalf("expected closed-pool error, got %v", err)
		}
		// Second shutdown is a no-op.
		if err := pool.Shutdown(ctx); err != nil {
			t.Fatalf("repeated shutdown failed: %v", err)
		}
	})
}
