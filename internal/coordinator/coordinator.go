// Package coordinator runs the client-side loops that keep a session moving.
//
// Every coordinator, whatever its role, watches the session document, derives
// the next timer-driven trigger from it and fires that trigger when it falls
// due. Several coordinators may watch the same session; the guarded write in
// the service lets exactly one of them land each transition.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"partyquiz/internal/engine"
	"partyquiz/internal/model"
	"partyquiz/internal/repository"
	"partyquiz/internal/service"
)

const defaultRetry = 250 * time.Millisecond

// Game is the slice of the game service a coordinator drives.
type Game interface {
	Engine() *engine.Engine
	Sessions() repository.SessionRepo
	Fire(ctx context.Context, sessionID string, t engine.Trigger) (*model.GameSession, bool, error)
	SubmitAnswer(ctx context.Context, sessionID, playerID string, optionIndex int) (*model.Player, error)
	Start(ctx context.Context, sessionID, hostID string) (*model.GameSession, error)
	Pause(ctx context.Context, sessionID, hostID string) (*model.GameSession, error)
	Resume(ctx context.Context, sessionID, hostID string) (*model.GameSession, error)
	TogglePause(ctx context.Context, sessionID, hostID string) (*model.GameSession, error)
	ForceNext(ctx context.Context, sessionID, hostID string) (*model.GameSession, error)
	SetTimer(ctx context.Context, sessionID, hostID string, seconds int) (*model.GameSession, error)
	EndGame(ctx context.Context, sessionID, hostID string) (*model.GameSession, error)
}

// Option tunes a coordinator.
type Option func(*loop)

// WithRenderer registers a callback that receives the role-filtered view of
// every newer snapshot the coordinator observes.
func WithRenderer(fn func(*service.View)) Option {
	return func(l *loop) { l.render = fn }
}

// WithRetry sets the delay before a trigger that did not land is tried again
// against the same snapshot.
func WithRetry(d time.Duration) Option {
	return func(l *loop) { l.retry = d }
}

// WithIdleTimeout stops the coordinator when the session has not changed for
// d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(l *loop) { l.idle = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *loop) { l.now = now }
}

type loop struct {
	game     Game
	id       string
	role     service.Role
	playerID string
	logger   *slog.Logger

	render func(*service.View)
	retry  time.Duration
	idle   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	current *model.GameSession
}

func newLoop(game Game, sessionID string, role service.Role, logger *slog.Logger, opts []Option) *loop {
	l := &loop{
		game:   game,
		id:     sessionID,
		role:   role,
		logger: logger.With("session", sessionID, "role", role),
		retry:  defaultRetry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SessionID returns the session this coordinator follows.
func (l *loop) SessionID() string { return l.id }

// Snapshot returns the newest snapshot observed so far, or nil.
func (l *loop) Snapshot() *model.GameSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	return l.current.Clone()
}

// View renders the newest snapshot for this coordinator's role.
func (l *loop) View() *service.View {
	gs := l.Snapshot()
	if gs == nil {
		return nil
	}
	return service.BuildView(l.game.Engine(), gs, l.role, l.playerID, l.now())
}

// observe records gs if it is newer than what was seen before.
func (l *loop) observe(gs *model.GameSession) bool {
	l.mu.Lock()
	if l.current != nil && gs.Version <= l.current.Version {
		l.mu.Unlock()
		return false
	}
	l.current = gs
	l.mu.Unlock()

	if l.render != nil {
		l.render(service.BuildView(l.game.Engine(), gs, l.role, l.playerID, l.now()))
	}
	return true
}

// Run follows the session until it finishes, ctx is cancelled, or the idle
// timeout passes. It returns nil in all three cases.
func (l *loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snaps, err := l.game.Sessions().Watch(ctx, l.id)
	if err != nil {
		return err
	}
	l.logger.Debug("coordinator started")
	defer l.logger.Debug("coordinator stopped")

	var (
		timer   *time.Timer
		due     <-chan time.Time
		pending engine.Trigger
		stalled int64 = -1
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
		due = nil
	}
	defer stop()

	arm := func(gs *model.GameSession) {
		stop()
		if gs == nil {
			return
		}
		trig, at, ok := l.game.Engine().NextDeadline(gs, l.now())
		if !ok {
			return
		}
		wait := at.Sub(l.now())
		if gs.Version == stalled && wait < l.retry {
			wait = l.retry
		}
		if wait < 0 {
			wait = 0
		}
		pending = trig
		timer = time.NewTimer(wait)
		due = timer.C
	}

	var idle <-chan time.Time
	var idleTimer *time.Timer
	if l.idle > 0 {
		idleTimer = time.NewTimer(l.idle)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}
	touch := func() {
		if idleTimer == nil {
			return
		}
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(l.idle)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-idle:
			l.logger.Info("coordinator idle, stopping")
			return nil

		case gs, ok := <-snaps:
			if !ok {
				return nil
			}
			if l.observe(gs) {
				touch()
			}
			if gs.Phase() == model.PhaseFinished {
				return nil
			}
			arm(l.Snapshot())

		case <-due:
			due = nil
			gs, changed, err := l.game.Fire(ctx, l.id, pending)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return nil
				}
				l.logger.Warn("failed to fire trigger", "trigger", pending.String(), "error", err)
				cur := l.Snapshot()
				if cur != nil {
					stalled = cur.Version
				}
				arm(cur)
			case !changed:
				l.observe(gs)
				stalled = gs.Version
				arm(gs)
			default:
				l.logger.Debug("trigger landed", "trigger", pending.String(), "version", gs.Version)
				l.observe(gs)
				touch()
				if gs.Phase() == model.PhaseFinished {
					return nil
				}
				arm(gs)
			}
		}
	}
}
