package dbpool

import (
	"sync/atomic"
	"time"
)

// Stats accumulates monotonic operation counters for one executor. All
// fields are updated atomically and may be read concurrently with traffic.
type Stats struct {
	totalQueries      atomic.Int64
	successfulQueries atomic.Int64
	failedQueries     atomic.Int64
	totalLatency      atomic.Int64 // nanoseconds
}

func (s *Stats) record(dur time.Duration, err error) {
	s.totalQueries.Add(1)
	s.totalLatency.Add(int64(dur))
	if err != nil {
		s.failedQueries.Add(1)
		return
	}
	s.successfulQueries.Add(1)
}

// StatsSnapshot is a point-in-time view of executor and pool counters,
// suitable for JSON monitoring endpoints.
type StatsSnapshot struct {
	TotalQueries           int64         `json:"total_queries"`
	SuccessfulQueries      int64         `json:"successful_queries"`
	FailedQueries          int64         `json:"failed_queries"`
	TotalLatency           time.Duration `json:"total_latency"`
	AverageLatency         time.Duration `json:"average_latency"`
	ActiveConnections      int           `json:"active_connections"`
	IdleConnections        int           `json:"idle_connections"`
	TotalConnectionsOpened int64         `json:"total_connections_opened"`
}

func (s *Stats) snapshot(pool Pool) StatsSnapshot {
	total := s.totalQueries.Load()
	latency := time.Duration(s.totalLatency.Load())
	avg := time.Duration(0)
	if total > 0 {
		avg = latency / time.Duration(total)
	}
	snap := StatsSnapshot{
		TotalQueries:      total,
		SuccessfulQueries: s.successfulQueries.Load(),
		FailedQueries:     s.failedQueries.Load(),
		TotalLatency:      latency,
		AverageLatency:    avg,
	}
	if pool != nil {
		snap.ActiveConnections = pool.ActiveCount()
		snap.IdleConnections = pool.IdleCount()
		snap.TotalConnectionsOpened = pool.OpenedCount()
	}
	return snap
}
