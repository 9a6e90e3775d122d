package dbpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startTestPool(t *testing.T, connector Connector, opts ...Option) *BoundedPool {
	t.Helper()
	cfg := Config{
		MinPoolSize:         1,
		MaxPoolSize:         4,
		ConnectionTimeout:   2 * time.Second,
		MaintenanceInterval: time.Hour, // keep maintenance out of the way unless a test opts in
	}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	pool := NewBoundedPool(cfg, connector)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
	})
	return pool
}

func TestStartPrefillsMinimum(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(3), WithMaxPoolSize(5))

	if got := pool.IdleCount(); got != 3 {
		t.Fatalf("expected 3 idle connections after start, got %d", got)
	}
	if got := pool.TotalCount(); got != 3 {
		t.Fatalf("expected 3 known connections, got %d", got)
	}
	if got := connector.dialCount(); got != 3 {
		t.Fatalf("expected exactly 3 dials, got %d", got)
	}
}

func TestStartAndShutdownAreIdempotent(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(2))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if got := connector.dialCount(); got != 2 {
		t.Fatalf("second start must not re-provision, dials=%d", got)
	}

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}
	if pool.IsRunning() {
		t.Fatalf("expected pool stopped")
	}
	if got := connector.openConns(); got != 0 {
		t.Fatalf("expected all connections destroyed, %d still open", got)
	}
}

func TestStartSurfacesCreationFailure(t *testing.T) {
	connector := newFakeConnector()
	connector.setDialErr(errors.New("refused"))

	pool := NewBoundedPool(Config{MinPoolSize: 2, MaxPoolSize: 4}, connector)
	err := pool.Start(context.Background())
	if err == nil {
		t.Fatalf("expected start to surface dial failure")
	}
	var dbErr *DBError
	if !errors.As(err, &dbErr) || dbErr.Op != OpCreate {
		t.Fatalf("expected create-tagged error, got %v", err)
	}
	_ = pool.Shutdown(context.Background())
}

func TestAcquireReusesIdleConnection(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(1), WithMaxPoolSize(2))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		pool.Release(conn)
	}
	if got := connector.dialCount(); got != 1 {
		t.Fatalf("expected the single idle connection reused, dials=%d", got)
	}
	if got := pool.ActiveCount(); got != 0 {
		t.Fatalf("expected no active connections after releases, got %d", got)
	}
}

func TestAcquireCreatesLazilyBelowMax(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(1), WithMaxPoolSize(3))

	ctx := context.Background()
	conns := make([]PhysicalConn, 0, 3)
	for i := 0; i < 3; i++ {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		conns = append(conns, conn)
	}
	if got := pool.ActiveCount(); got != 3 {
		t.Fatalf("expected 3 active, got %d", got)
	}
	if got := pool.TotalCount(); got != 3 {
		t.Fatalf("expected total 3, got %d", got)
	}
	for _, conn := range conns {
		pool.Release(conn)
	}
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(1),
		WithMaxPoolSize(2),
		WithConnectionTimeout(200*time.Millisecond),
	)

	ctx := context.Background()
	first, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	second, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	start := time.Now()
	_, err = pool.Acquire(ctx)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected pool exhausted, got %v", err)
	}
	if elapsed < 150*time.Millisecond {
		t.Fatalf("expected third acquire to block ~200ms, returned after %v", elapsed)
	}
	if got := connector.dialCount(); got != 2 {
		t.Fatalf("expected at most 2 connections ever created, dials=%d", got)
	}

	pool.Release(first)
	pool.Release(second)
}

func TestBoundedCreationUnderContention(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(1),
		WithMaxPoolSize(3),
		WithConnectionTimeout(time.Second),
	)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
			pool.Release(conn)
		}()
	}
	wg.Wait()

	if got := connector.dialCount(); got > 3 {
		t.Fatalf("pool created %d connections, max is 3", got)
	}
	if got := pool.ActiveCount(); got != 0 {
		t.Fatalf("expected active count 0 after all releases, got %d", got)
	}
	if idle, total := pool.IdleCount(), pool.TotalCount(); idle > total || total > 3 {
		t.Fatalf("invariant violated: idle=%d total=%d", idle, total)
	}
}

func TestAcquireHealsValidationFailureSilently(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(1), WithMaxPoolSize(2))

	connector.mu.Lock()
	sick := connector.conns[0]
	connector.mu.Unlock()
	sick.setPingErr(errors.New("gone away"))

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire should heal validation failures, got %v", err)
	}
	if conn == sick {
		t.Fatalf("expected the failing connection to be discarded")
	}
	if !sick.isClosed() {
		t.Fatalf("expected failing connection destroyed")
	}
	pool.Release(conn)
}

func TestAcquireUsesValidationQuery(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(1),
		WithMaxPoolSize(2),
		WithValidationQuery("SELECT 1"),
	)

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer pool.Release(conn)

	fake := conn.(*fakeConn)
	execs := fake.executed()
	if len(execs) == 0 || execs[0] != "SELECT 1" {
		t.Fatalf("expected validation query to run, got %v", execs)
	}
}

func TestAcquireRejectsExpiredConnections(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(1),
		WithMaxPoolSize(2),
		WithMaxLifetime(10*time.Millisecond),
	)

	connector.mu.Lock()
	original := connector.conns[0]
	connector.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer pool.Release(conn)

	if conn == original {
		t.Fatalf("expected expired connection replaced")
	}
	if !original.isClosed() {
		t.Fatalf("expected expired connection destroyed")
	}
}

func TestAcquireOnStoppedPoolFails(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	_, err := pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected pool closed error, got %v", err)
	}
}

func TestAcquireCanceledWhileWaiting(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(1),
		WithMaxPoolSize(1),
		WithConnectionTimeout(time.Second),
	)

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, acquireErr := pool.Acquire(ctx)
		done <- acquireErr
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("canceled acquire did not return")
	}

	pool.Release(conn)
	if got := pool.ActiveCount(); got != 0 {
		t.Fatalf("cancellation leaked a connection, active=%d", got)
	}
	if got := pool.IdleCount(); got != 1 {
		t.Fatalf("expected released connection back in idle queue, idle=%d", got)
	}
}

func TestReleaseUnknownConnectionIgnored(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(1), WithMaxPoolSize(2))

	stranger := &fakeConn{}
	pool.Release(stranger)

	if got := pool.ActiveCount(); got != 0 {
		t.Fatalf("unknown release must not touch counters, active=%d", got)
	}
	if got := pool.TotalCount(); got != 1 {
		t.Fatalf("unknown release must not touch membership, total=%d", got)
	}
}

func TestReleaseAfterShutdownDiscards(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(1), WithMaxPoolSize(2))

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	pool.Release(conn)
	if got := pool.IdleCount(); got != 0 {
		t.Fatalf("release into stopped pool must not enqueue, idle=%d", got)
	}
}

func TestMaintenanceEvictsIdleAboveFloor(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(1),
		WithMaxPoolSize(4),
		WithIdleTimeout(10*time.Millisecond),
		WithMaintenanceInterval(25*time.Millisecond),
	)

	ctx := context.Background()
	conns := make([]PhysicalConn, 0, 3)
	for i := 0; i < 3; i++ {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		pool.Release(conn)
	}
	if got := pool.TotalCount(); got != 3 {
		t.Fatalf("expected 3 connections before eviction, got %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pool.TotalCount() > 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := pool.TotalCount(); got != 1 {
		t.Fatalf("expected eviction down to the floor of 1, got %d", got)
	}
}

func TestMaintenanceReplenishesFloor(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(2),
		WithMaxPoolSize(4),
		WithMaxLifetime(5*time.Millisecond),
		WithMaintenanceInterval(25*time.Millisecond),
	)

	ctx := context.Background()
	// Age the pre-filled connections past their lifetime, then churn them
	// out through release so the pool dips below its floor.
	time.Sleep(10 * time.Millisecond)
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	pool.Release(conn)

	deadline := time.Now().Add(2 * time.Second)
	for pool.TotalCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := pool.TotalCount(); got < 2 {
		t.Fatalf("expected replenishment up to the floor of 2, got %d", got)
	}
}

func TestCountersStayBalancedUnderLoad(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(2),
		WithMaxPoolSize(4),
		WithConnectionTimeout(time.Second),
	)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				conn, err := pool.Acquire(ctx)
				if err != nil {
					continue
				}
				if active, idle := pool.ActiveCount(), pool.IdleCount(); active+idle > pool.MaxPoolSize() {
					t.Errorf("invariant violated: active=%d idle=%d max=%d", active, idle, pool.MaxPoolSize())
				}
				pool.Release(conn)
			}
		}()
	}
	wg.Wait()

	if got := pool.ActiveCount(); got != 0 {
		t.Fatalf("expected active count to return to 0, got %d", got)
	}
	if total := pool.TotalCount(); total > pool.MaxPoolSize() {
		t.Fatalf("membership exceeded the bound: %d", total)
	}
}

func TestOpenedCountTracksCreations(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(2), WithMaxPoolSize(4))

	if got := pool.OpenedCount(); got != 2 {
		t.Fatalf("expected 2 opens after prefill, got %d", got)
	}
	if got := int64(connector.dialCount()); got != pool.OpenedCount() {
		t.Fatalf("opened counter diverged from dials: %d vs %d", pool.OpenedCount(), got)
	}
}

func TestStartFailureLeavesPoolStopped(t *testing.T) {
	connector := newFakeConnector()
	// First dial succeeds, every later dial is refused.
	connector.onConnect = func(*fakeConn) { connector.setDialErr(errors.New("refused")) }

	pool := NewBoundedPool(Config{MinPoolSize: 2, MaxPoolSize: 4}, connector)
	if err := pool.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail")
	}
	if pool.IsRunning() {
		t.Fatalf("half-started pool reports running")
	}
	if got := pool.TotalCount(); got != 0 {
		t.Fatalf("expected empty membership after failed start, got %d", got)
	}
	if got := connector.openConns(); got != 0 {
		t.Fatalf("pre-filled connection leaked, %d still open", got)
	}

	// Once the backend recovers the same pool starts cleanly.
	connector.onConnect = nil
	connector.setDialErr(nil)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	if got := pool.IdleCount(); got != 2 {
		t.Fatalf("expected prefill of 2 after restart, got %d", got)
	}
}

func TestAcquireExpiredBudgetKeepsIdleConnection(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector, WithMinPoolSize(1), WithMaxPoolSize(2))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()
	_, err := pool.Acquire(ctx)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected pool exhausted, got %v", err)
	}
	if got := pool.IdleCount(); got != 1 {
		t.Fatalf("healthy idle connection destroyed on timeout path, idle=%d", got)
	}
	if got := connector.openConns(); got != 1 {
		t.Fatalf("expected the connection kept open, %d open", got)
	}

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	pool.Release(conn)
	if got := connector.dialCount(); got != 1 {
		t.Fatalf("expected the surviving connection reused, dials=%d", got)
	}
}

func TestThreeCallersTwoSlotsExactSplit(t *testing.T) {
	connector := newFakeConnector()
	pool := startTestPool(t, connector,
		WithMinPoolSize(1),
		WithMaxPoolSize(2),
		WithConnectionTimeout(200*time.Millisecond),
	)

	start := make(chan struct{})
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			<-start
			conn, err := pool.Acquire(context.Background())
			if err == nil {
				// Hold past the third caller's budget so it cannot steal the slot.
				time.Sleep(400 * time.Millisecond)
				pool.Release(conn)
			}
			results <- err
		}()
	}
	close(start)

	var succeeded, exhausted int
	for i := 0; i < 3; i++ {
		switch err := <-results; {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrPoolExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected acquire error: %v", err)
		}
	}
	if succeeded != 2 || exhausted != 1 {
		t.Fatalf("expected exactly 2 winners and 1 exhausted, got %d/%d", succeeded, exhausted)
	}
	if got := connector.dialCount(); got > 2 {
		t.Fatalf("pool created %d connections, max is 2", got)
	}
	if got := pool.ActiveCount(); got != 0 {
		t.Fatalf("expected active count 0 after releases, got %d", got)
	}
}
