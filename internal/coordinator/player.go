package coordinator

import (
	"context"
	"log/slog"

	"partyquiz/internal/engine"
	"partyquiz/internal/model"
	"partyquiz/internal/service"
)

// Player is the coordinator of one joined player.
type Player struct {
	*loop
}

func NewPlayer(game Game, sessionID, playerID string, logger *slog.Logger, opts ...Option) *Player {
	l := newLoop(game, sessionID, service.RolePlayer, logger.With("player", playerID), opts)
	l.playerID = playerID
	return &Player{loop: l}
}

func (p *Player) PlayerID() string { return p.playerID }

// Answer submits optionIndex for the active question, then checks whether
// this answer was the last one outstanding and, if so, closes the question
// early.
func (p *Player) Answer(ctx context.Context, optionIndex int) (*model.Player, error) {
	me, err := p.game.SubmitAnswer(ctx, p.id, p.playerID, optionIndex)
	if err != nil {
		return nil, err
	}

	gs, changed, err := p.game.Fire(ctx, p.id, engine.Trigger{Kind: engine.TriggerAllAnswered})
	if err != nil {
		p.logger.Warn("failed to evaluate all-answered", "error", err)
		return me, nil
	}
	if changed {
		p.logger.Debug("closed question early", "version", gs.Version)
	}
	p.observe(gs)
	return me, nil
}
