package service

import (
	"net/url"
	"strings"

	"partyquiz/internal/model"
)

// Linker renders the navigation targets clients move between.
type Linker struct {
	baseURL string
}

// NewLinker creates a linker rooted at baseURL. An empty base yields
// host-relative paths.
func NewLinker(baseURL string) *Linker {
	return &Linker{baseURL: strings.TrimRight(baseURL, "/")}
}

// Session returns the links shared by everyone in a session.
func (l *Linker) Session(sessionID string) model.Links {
	id := url.PathEscape(sessionID)
	return model.Links{
		Admin:   l.baseURL + "/admin/" + id,
		Join:    l.baseURL + "/join/" + id,
		Display: l.baseURL + "/display",
	}
}

// Player adds the player-specific links to the session links.
func (l *Linker) Player(sessionID, playerID string) model.Links {
	links := l.Session(sessionID)
	links.Game = l.baseURL + "/game/" + url.PathEscape(sessionID) + "/player/" + url.PathEscape(playerID)
	q := url.Values{}
	q.Set("gameId", sessionID)
	q.Set("playerId", playerID)
	links.Play = l.baseURL + "/play?" + q.Encode()
	return links
}
