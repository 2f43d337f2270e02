package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyquiz/internal/engine"
	"partyquiz/internal/model"
)

func playingSession(t *testing.T, eng *engine.Engine, now time.Time) *model.GameSession {
	t.Helper()
	gs := &model.GameSession{
		ID:         "ABC123",
		HostID:     "host_1",
		Status:     model.StatusWaiting,
		Categories: []string{"Geography"},
		Questions: [][]model.Question{{{
			ID: "geo-01", Text: "Capital of Australia?", Options: []string{"Sydney", "Canberra"},
			CorrectOptionIndex: 1, Category: "Geography", Points: 100, TimeLimit: 30,
		}}},
	}
	gs.AddPlayer(model.Player{ID: "p_1", Name: "Ana", JoinedAt: now})
	gs.AddPlayer(model.Player{ID: "p_2", Name: "Bo", JoinedAt: now.Add(time.Second)})
	require.NoError(t, eng.Apply(gs, engine.Trigger{Kind: engine.TriggerStart}, now))
	return gs
}

func TestBuildViewHidesAnswerUntilReveal(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	gs := playingSession(t, eng, now)
	_, err := eng.Answer(gs, "p_1", 1, now.Add(4*time.Second))
	require.NoError(t, err)

	at := now.Add(10 * time.Second)
	player := BuildView(eng, gs, RolePlayer, "p_1", at)
	require.NotNil(t, player.Question)
	assert.Nil(t, player.Question.CorrectOptionIndex)
	assert.Equal(t, 20, player.TimeRemaining)
	assert.Equal(t, 1, player.AnsweredCount)
	require.NotNil(t, player.Me)
	assert.Equal(t, 1, player.Me.LastAnswer.OptionIndex)
	for _, p := range player.Players {
		assert.Nil(t, p.LastAnswer, "other players' answers stay private")
	}
	assert.Empty(t, player.Standings)

	display := BuildView(eng, gs, RoleDisplay, "", at)
	assert.Nil(t, display.Question.CorrectOptionIndex)
	assert.Nil(t, display.Me)

	admin := BuildView(eng, gs, RoleAdmin, "", at)
	require.NotNil(t, admin.Question.CorrectOptionIndex)
	assert.Equal(t, 1, *admin.Question.CorrectOptionIndex)
	require.Len(t, admin.Players, 2)
	assert.Equal(t, "p_1", admin.Players[0].ID, "players are listed in join order")
	assert.NotNil(t, admin.Players[0].LastAnswer)

	require.NoError(t, eng.Apply(gs, engine.Trigger{Kind: engine.TriggerCountdownElapsed}, now.Add(30*time.Second)))
	revealed := BuildView(eng, gs, RolePlayer, "p_1", now.Add(31*time.Second))
	require.NotNil(t, revealed.Question.CorrectOptionIndex)
	assert.Equal(t, 1, *revealed.Question.CorrectOptionIndex)
	assert.Equal(t, model.PhaseRevealAnswer, revealed.Phase)
}

func TestStandingsShareRanksOnTies(t *testing.T) {
	now := time.Now()
	gs := &model.GameSession{}
	gs.AddPlayer(model.Player{ID: "a", Name: "A", Score: 100, JoinedAt: now})
	gs.AddPlayer(model.Player{ID: "b", Name: "B", Score: 300, JoinedAt: now})
	gs.AddPlayer(model.Player{ID: "c", Name: "C", Score: 100, JoinedAt: now.Add(-time.Second)})
	gs.AddPlayer(model.Player{ID: "d", Name: "D", Score: 0, JoinedAt: now})

	got := Standings(gs)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"b", "c", "a", "d"}, []string{got[0].PlayerID, got[1].PlayerID, got[2].PlayerID, got[3].PlayerID})
	assert.Equal(t, []int{1, 2, 2, 4}, []int{got[0].Rank, got[1].Rank, got[2].Rank, got[3].Rank})
}

func TestLinker(t *testing.T) {
	l := NewLinker("https://quiz.example/")
	links := l.Player("ABC123", "p_1")

	assert.Equal(t, "https://quiz.example/admin/ABC123", links.Admin)
	assert.Equal(t, "https://quiz.example/join/ABC123", links.Join)
	assert.Equal(t, "https://quiz.example/display", links.Display)
	assert.Equal(t, "https://quiz.example/game/ABC123/player/p_1", links.Game)
	assert.Equal(t, "https://quiz.example/play?gameId=ABC123&playerId=p_1", links.Play)

	assert.Empty(t, NewLinker("").Session("ABC123").Game)
	assert.Equal(t, "/join/ABC123", NewLinker("").Session("ABC123").Join)
}
