package dbpool

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool owns a bounded set of physical connections and mediates their reuse.
// Implementations must be safe for concurrent use by caller goroutines and
// the background maintenance goroutine alike.
type Pool interface {
	// Acquire returns a validated physical connection, blocking up to the
	// configured connection timeout across all of its sub-steps.
	Acquire(ctx context.Context) (PhysicalConn, error)

	// Release returns a previously acquired connection. It never blocks.
	// Releasing an unknown connection or releasing into a stopped pool
	// discards the physical handle.
	Release(conn PhysicalConn)

	// Start pre-provisions the minimum pool size and launches maintenance.
	// Calling Start on a running pool is a no-op.
	Start(ctx context.Context) error

	// Shutdown stops maintenance and destroys every known connection,
	// best-effort. Calling Shutdown on a stopped pool is a no-op.
	Shutdown(ctx context.Context) error

	ActiveCount() int
	IdleCount() int
	TotalCount() int
	OpenedCount() int64
	MaxPoolSize() int
	IsRunning() bool
}

// BoundedPool is the concrete Pool: bounded membership, blocking acquire
// under one shared time budget, validation on checkout, and a periodic
// maintenance pass for idle eviction and floor replenishment.
type BoundedPool struct {
	cfg       Config
	connector Connector
	logger    *zap.Logger

	idle chan *pooledConn

	mu      sync.Mutex
	conns   map[PhysicalConn]*pooledConn
	pending int
	running bool
	stop    chan struct{}

	active atomic.Int32
	opened atomic.Int64

	wg sync.WaitGroup
}

var _ Pool = (*BoundedPool)(nil)

// NewBoundedPool builds a pool around connector. The pool is constructed
// idle; call Start before acquiring.
func NewBoundedPool(cfg Config, connector Connector) *BoundedPool {
	cfg = cfg.withDefaults()
	return &BoundedPool{
		cfg:       cfg,
		connector: connector,
		logger:    cfg.Logger.With(zap.String("component", "pool")),
		idle:      make(chan *pooledConn, cfg.MaxPoolSize),
		conns:     make(map[PhysicalConn]*pooledConn, cfg.MaxPoolSize),
	}
}

// Start pre-provisions MinPoolSize connections and launches the maintenance
// goroutine. A creation failure during pre-fill is surfaced immediately.
func (p *BoundedPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stop = make(chan struct{})
	p.mu.Unlock()

	for i := 0; i < p.cfg.MinPoolSize; i++ {
		pc, err := p.create(ctx)
		if err != nil {
			p.abortStart()
			return err
		}
		p.enqueue(pc)
	}

	p.wg.Add(1)
	go p.maintenanceLoop()

	p.logger.Info("pool started",
		zap.Int("min_pool_size", p.cfg.MinPoolSize),
		zap.Int("max_pool_size", p.cfg.MaxPoolSize),
	)
	return nil
}

// abortStart unwinds a failed pre-fill: the pool reads as stopped and any
// connections created before the failure are destroyed. No maintenance
// goroutine has launched yet, so there is nothing to wait for.
func (p *BoundedPool) abortStart() {
	p.mu.Lock()
	p.running = false
	close(p.stop)
	conns := make([]*pooledConn, 0, len(p.conns))
	for _, pc := range p.conns {
		conns = append(conns, pc)
	}
	p.conns = make(map[PhysicalConn]*pooledConn, p.cfg.MaxPoolSize)
	p.mu.Unlock()

	for {
		select {
		case <-p.idle:
			continue
		default:
		}
		break
	}
	for _, pc := range conns {
		_ = pc.conn.Close()
	}
}

// Shutdown stops maintenance and destroys every known connection. Errors
// while closing individual connections are logged and ignored so teardown
// always completes.
func (p *BoundedPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	conns := make([]*pooledConn, 0, len(p.conns))
	for _, pc := range p.conns {
		conns = append(conns, pc)
	}
	p.conns = make(map[PhysicalConn]*pooledConn, p.cfg.MaxPoolSize)
	p.mu.Unlock()

	// Drain the idle queue so nothing re-enters it mid-teardown.
	for {
		select {
		case <-p.idle:
			continue
		default:
		}
		break
	}

	for _, pc := range conns {
		if err := pc.conn.Close(); err != nil {
			p.logger.Warn("closing connection during shutdown failed",
				zap.String("conn_id", pc.id), zap.Error(err))
		}
	}
	p.active.Store(0)

	if closer, ok := p.connector.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			p.logger.Warn("closing connector failed", zap.Error(err))
		}
	}

	p.logger.Info("pool stopped", zap.Int("destroyed", len(conns)))
	return nil
}

// Acquire hands out a physical connection, preferring reuse over creation
// over waiting. One deadline covers dequeue, validation, creation, and the
// blocking wait, so the call never exceeds the connection timeout in
// aggregate.
func (p *BoundedPool) Acquire(ctx context.Context) (PhysicalConn, error) {
	if !p.IsRunning() {
		return nil, newDBError(OpAcquire, ErrPoolClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	defer cancel()

	for {
		// Reuse an idle connection when one is ready.
		select {
		case pc := <-p.idle:
			if p.validate(ctx, pc) {
				return p.checkOut(pc), nil
			}
			if ctx.Err() != nil {
				p.requeue(pc)
				return nil, acquireErr(ctx)
			}
			p.destroy(pc, "validation failed")
			continue
		default:
		}

		// Create below the bound.
		pc, created, err := p.tryCreate(ctx)
		if err != nil {
			return nil, err
		}
		if created {
			return p.checkOut(pc), nil
		}

		// At capacity: wait for a release within the remaining budget.
		select {
		case pc := <-p.idle:
			if p.validate(ctx, pc) {
				return p.checkOut(pc), nil
			}
			if ctx.Err() != nil {
				p.requeue(pc)
				return nil, acquireErr(ctx)
			}
			p.destroy(pc, "validation failed")
		case <-p.stopped():
			return nil, newDBError(OpAcquire, ErrPoolClosed)
		case <-ctx.Done():
			return nil, acquireErr(ctx)
		}
	}
}

// requeue returns a connection whose liveness probe was cut short by the
// caller's expired budget: the failure says nothing about the connection's
// health, so only the lifetime check applies.
func (p *BoundedPool) requeue(pc *pooledConn) {
	if pc.expired(p.cfg.MaxLifetime) {
		p.destroy(pc, "past lifetime")
		return
	}
	p.enqueue(pc)
}

// acquireErr maps an expired acquire context to the caller-facing error:
// cancellation surfaces as such, a spent budget as pool exhaustion.
func acquireErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return newDBError(OpAcquire, ctx.Err())
	}
	return newDBError(OpAcquire, ErrPoolExhausted)
}

// Release returns conn to the idle queue when the pool is running and the
// connection is still serviceable; otherwise the handle is destroyed.
// Replenishment is maintenance's job, not Release's.
func (p *BoundedPool) Release(conn PhysicalConn) {
	p.mu.Lock()
	pc, known := p.conns[conn]
	running := p.running
	p.mu.Unlock()

	if !known {
		// Already discarded (or never ours).
		return
	}

	p.active.Add(-1)
	pc.touch()

	if !running || pc.expired(p.cfg.MaxLifetime) {
		p.destroy(pc, "released into stopped pool or past lifetime")
		return
	}
	p.enqueue(pc)
}

func (p *BoundedPool) ActiveCount() int   { return int(p.active.Load()) }
func (p *BoundedPool) IdleCount() int     { return len(p.idle) }
func (p *BoundedPool) OpenedCount() int64 { return p.opened.Load() }
func (p *BoundedPool) MaxPoolSize() int   { return p.cfg.MaxPoolSize }

func (p *BoundedPool) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

func (p *BoundedPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// create opens one physical connection and registers it, holding a pending
// slot while dialing so concurrent creators cannot exceed MaxPoolSize.
func (p *BoundedPool) create(ctx context.Context) (*pooledConn, error) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil, newDBError(OpCreate, ErrPoolClosed)
	}
	if len(p.conns)+p.pending >= p.cfg.MaxPoolSize {
		p.mu.Unlock()
		return nil, newDBError(OpCreate, ErrPoolExhausted)
	}
	p.pending++
	p.mu.Unlock()

	conn, err := p.connector.Connect(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.mu.Unlock()
		return nil, newDBError(OpCreate, err)
	}
	if !p.running {
		p.mu.Unlock()
		_ = conn.Close()
		return nil, newDBError(OpCreate, ErrPoolClosed)
	}
	pc := newPooledConn(conn)
	p.conns[conn] = pc
	p.mu.Unlock()

	p.opened.Add(1)
	p.logger.Debug("connection created", zap.String("conn_id", pc.id))
	return pc, nil
}

// tryCreate creates a connection only when the pool is below capacity.
// It reports created=false without error when the pool is full.
func (p *BoundedPool) tryCreate(ctx context.Context) (*pooledConn, bool, error) {
	p.mu.Lock()
	full := len(p.conns)+p.pending >= p.cfg.MaxPoolSize
	p.mu.Unlock()
	if full {
		return nil, false, nil
	}
	pc, err := p.create(ctx)
	if err != nil {
		// Losing the slot race to another creator is not a caller error;
		// fall through to waiting on the idle queue.
		if errors.Is(err, ErrPoolExhausted) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return pc, true, nil
}

// validate rejects connections past their lifetime and probes liveness with
// the configured validation query or the driver ping. A failed validation is
// never surfaced to callers; the connection is simply destroyed upstream.
func (p *BoundedPool) validate(ctx context.Context, pc *pooledConn) bool {
	if pc.expired(p.cfg.MaxLifetime) {
		return false
	}
	var err error
	if q := p.cfg.ValidationQuery; q != "" {
		_, err = pc.conn.Exec(ctx, q)
	} else {
		err = pc.conn.Ping(ctx)
	}
	if err != nil {
		p.logger.Debug("connection failed validation",
			zap.String("conn_id", pc.id), zap.Error(err))
		return false
	}
	return true
}

func (p *BoundedPool) checkOut(pc *pooledConn) PhysicalConn {
	p.active.Add(1)
	pc.touch()
	return pc.conn
}

// enqueue puts pc back on the idle queue, destroying it when the queue is
// unexpectedly full.
func (p *BoundedPool) enqueue(pc *pooledConn) {
	select {
	case p.idle <- pc:
	default:
		p.destroy(pc, "idle queue full")
	}
}

// destroy removes pc from the membership set and closes the physical handle.
func (p *BoundedPool) destroy(pc *pooledConn, reason string) {
	p.mu.Lock()
	delete(p.conns, pc.conn)
	p.mu.Unlock()

	if err := pc.conn.Close(); err != nil {
		p.logger.Debug("closing connection failed",
			zap.String("conn_id", pc.id), zap.Error(err))
	}
	p.logger.Debug("connection destroyed",
		zap.String("conn_id", pc.id), zap.String("reason", reason))
}

func (p *BoundedPool) stopped() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop
}

func (p *BoundedPool) maintenanceLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.MaintenanceInterval)
	defer ticker.Stop()

	stop := p.stopped()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.maintain()
		}
	}
}

// maintain runs one maintenance pass: evict idle connections past the idle
// timeout while keeping the floor, then replenish up to MinPoolSize. It uses
// the same queue and membership primitives as foreground acquire/release.
func (p *BoundedPool) maintain() {
	now := time.Now()

	var held []*pooledConn
	for {
		select {
		case pc := <-p.idle:
			held = append(held, pc)
			continue
		default:
		}
		break
	}

	evicted := 0
	for _, pc := range held {
		if pc.idleFor(now) > p.cfg.IdleTimeout && p.TotalCount() > p.cfg.MinPoolSize {
			p.destroy(pc, "idle timeout")
			evicted++
			continue
		}
		p.enqueue(pc)
	}

	created := 0
	for p.IsRunning() && p.TotalCount() < p.cfg.MinPoolSize {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectionTimeout)
		pc, err := p.create(ctx)
		cancel()
		if err != nil {
			p.logger.Warn("replenishment failed", zap.Error(err))
			break
		}
		p.enqueue(pc)
		created++
	}

	if evicted > 0 || created > 0 {
		p.logger.Debug("maintenance pass",
			zap.Int("evicted", evicted),
			zap.Int("replenished", created),
			zap.Int("total", p.TotalCount()),
		)
	}
}
