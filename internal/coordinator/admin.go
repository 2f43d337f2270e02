package coordinator

import (
	"context"
	"log/slog"

	"partyquiz/internal/model"
	"partyquiz/internal/service"
)

// Admin is the host's coordinator. Its commands are thin wrappers over the
// service; every command result is observed like a subscription update.
type Admin struct {
	*loop
	hostID string
}

func NewAdmin(game Game, sessionID, hostID string, logger *slog.Logger, opts ...Option) *Admin {
	return &Admin{
		loop:   newLoop(game, sessionID, service.RoleAdmin, logger, opts),
		hostID: hostID,
	}
}

func (a *Admin) Start(ctx context.Context) (*model.GameSession, error) {
	return a.done(a.game.Start(ctx, a.id, a.hostID))
}

func (a *Admin) Pause(ctx context.Context) (*model.GameSession, error) {
	return a.done(a.game.Pause(ctx, a.id, a.hostID))
}

func (a *Admin) Resume(ctx context.Context) (*model.GameSession, error) {
	return a.done(a.game.Resume(ctx, a.id, a.hostID))
}

func (a *Admin) TogglePause(ctx context.Context) (*model.GameSession, error) {
	return a.done(a.game.TogglePause(ctx, a.id, a.hostID))
}

func (a *Admin) ForceNext(ctx context.Context) (*model.GameSession, error) {
	return a.done(a.game.ForceNext(ctx, a.id, a.hostID))
}

func (a *Admin) SetTimer(ctx context.Context, seconds int) (*model.GameSession, error) {
	return a.done(a.game.SetTimer(ctx, a.id, a.hostID, seconds))
}

func (a *Admin) EndGame(ctx context.Context) (*model.GameSession, error) {
	return a.done(a.game.EndGame(ctx, a.id, a.hostID))
}

func (a *Admin) done(gs *model.GameSession, err error) (*model.GameSession, error) {
	if err != nil {
		a.logger.Warn("admin command rejected", "error", err)
		return nil, err
	}
	a.observe(gs)
	return gs, nil
}
