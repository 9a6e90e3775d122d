package dbpool

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// pooledConn is the pool's record for one physical connection: the handle
// itself plus the timestamps eviction and lifetime checks run against.
type pooledConn struct {
	conn      PhysicalConn
	id        string
	createdAt time.Time

	mu           sync.Mutex
	lastActiveAt time.Time
}

func newPooledConn(conn PhysicalConn) *pooledConn {
	now := time.Now()
	return &pooledConn{
		conn:         conn,
		id:           uuid.NewString(),
		createdAt:    now,
		lastActiveAt: now,
	}
}

// touch refreshes the last-active timestamp.
func (pc *pooledConn) touch() {
	pc.mu.Lock()
	pc.lastActiveAt = time.Now()
	pc.mu.Unlock()
}

func (pc *pooledConn) lastActive() time.Time {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.lastActiveAt
}

// expired reports whether the connection has exceeded its maximum lifetime.
func (pc *pooledConn) expired(maxLifetime time.Duration) bool {
	return maxLifetime > 0 && time.Since(pc.createdAt) >= maxLifetime
}

// idleFor reports how long the connection has been unused.
func (pc *pooledConn) idleFor(now time.Time) time.Duration {
	return now.Sub(pc.lastActive())
}
