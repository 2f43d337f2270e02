package coordinator

import (
	"log/slog"

	"partyquiz/internal/service"
)

// Display is the projector coordinator. It never answers; it only renders and
// drives the session's timers.
type Display struct {
	*loop
}

func NewDisplay(game Game, sessionID string, logger *slog.Logger, opts ...Option) *Display {
	return &Display{loop: newLoop(game, sessionID, service.RoleDisplay, logger, opts)}
}
