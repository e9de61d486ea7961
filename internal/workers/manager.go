package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager starts workers in order and stops them in reverse order.
type Manager struct {
	mu      sync.Mutex
	workers []Worker
	started []Worker
	logger  *slog.Logger
}

func NewManager(logger *slog.Logger, workers ...Worker) *Manager {
	return &Manager{
		workers: workers,
		logger:  logger,
	}
}

// Start starts every worker. When one fails, the ones already started are stopped.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, worker := range m.workers {
		if err := worker.Start(); err != nil {
			m.stopLocked(context.Background())
			return fmt.Errorf("start worker %s: %w", worker.Name(), err)
		}
		m.started = append(m.started, worker)
	}

	m.logger.Info("Workers started", "names", m.namesLocked())
	return nil
}

// Stop stops the started workers. A worker still stopping when ctx ends is left behind
// and logged, so one stuck job cannot hold the whole shutdown.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked(ctx)
}

// Running lists the names of the started workers.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.namesLocked()
}

func (m *Manager) stopLocked(ctx context.Context) {
	for i := len(m.started) - 1; i >= 0; i-- {
		worker := m.started[i]
		began := time.Now()

		done := make(chan struct{})
		go func() {
			defer close(done)
			worker.Stop()
		}()

		select {
		case <-done:
			m.logger.Debug("Worker stopped", "name", worker.Name(), "took", time.Since(began))
		case <-ctx.Done():
			m.logger.Warn("Worker did not stop before deadline", "name", worker.Name())
		}
	}
	m.started = nil
}

func (m *Manager) namesLocked() []string {
	names := make([]string, 0, len(m.started))
	for _, w := range m.started {
		names = append(names, w.Name())
	}
	return names
}
