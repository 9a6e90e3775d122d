package dbpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager owns one executor per logical database. It replaces process-wide
// registries: construct one per application (or per test) and pass it to
// whatever needs database access.
type Manager struct {
	mu        sync.RWMutex
	databases map[string]*Executor
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{databases: make(map[string]*Executor)}
}

// NewManagerFromConfigs opens one executor per named configuration. On any
// failure, executors opened so far are shut down before the error returns.
func NewManagerFromConfigs(ctx context.Context, configs map[string]Config, opts ...Option) (*Manager, error) {
	m := NewManager()
	for name, cfg := range configs {
		exec, err := Open(ctx, cfg, opts...)
		if err != nil {
			_ = m.Close(ctx)
			return nil, fmt.Errorf("open database %q: %w", name, err)
		}
		m.Register(name, exec)
	}
	return m, nil
}

// Register adds (or replaces) the executor for a logical database name.
func (m *Manager) Register(name string, exec *Executor) {
	m.mu.Lock()
	m.databases[name] = exec
	m.mu.Unlock()
}

// Database returns the executor registered under name.
func (m *Manager) Database(name string) (*Executor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.databases[name]
	return exec, ok
}

// Names lists the registered logical database names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.databases))
	for name := range m.databases {
		names = append(names, name)
	}
	return names
}

// Close shuts down every registered pool, best-effort, and reports the
// joined errors.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	databases := m.databases
	m.databases = make(map[string]*Executor)
	m.mu.Unlock()

	var errs []error
	for name, exec := range databases {
		if err := exec.Pool().Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
