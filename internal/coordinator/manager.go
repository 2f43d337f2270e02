package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"partyquiz/internal/metrics"
)

// Manager hosts one Display per live session inside the server process, so
// progression continues even when no browser is driving it.
type Manager struct {
	game   Game
	logger *slog.Logger
	opts   []Option

	mu      sync.Mutex
	ctx     context.Context
	pending []string
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(game Game, logger *slog.Logger, opts ...Option) *Manager {
	return &Manager{
		game:    game,
		logger:  logger,
		opts:    opts,
		running: make(map[string]context.CancelFunc),
	}
}

// Track starts a display for sessionID unless one is already running.
// Sessions tracked before Run start once Run is called.
func (m *Manager) Track(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.running[sessionID]; ok {
		return
	}
	if m.ctx == nil {
		m.pending = append(m.pending, sessionID)
		return
	}
	if m.ctx.Err() != nil {
		return
	}
	m.startLocked(sessionID)
}

func (m *Manager) startLocked(sessionID string) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.running[sessionID] = cancel
	metrics.ActiveCoordinators.Inc()
	m.wg.Add(1)

	d := NewDisplay(m.game, sessionID, m.logger, m.opts...)
	go func() {
		defer m.wg.Done()
		defer metrics.ActiveCoordinators.Dec()
		defer cancel()

		if err := d.Run(ctx); err != nil {
			m.logger.Warn("display coordinator failed", "session", sessionID, "error", err)
		}

		m.mu.Lock()
		delete(m.running, sessionID)
		m.mu.Unlock()
	}()
}

// Running reports how many displays are live.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Run starts tracked sessions and blocks until ctx is done, then waits for
// every display to stop.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	for _, id := range m.pending {
		if _, ok := m.running[id]; !ok {
			m.startLocked(id)
		}
	}
	m.pending = nil
	m.mu.Unlock()

	m.logger.Info("coordinator manager started")
	<-ctx.Done()
	m.wg.Wait()
	m.logger.Info("coordinator manager stopped")
	return nil
}
