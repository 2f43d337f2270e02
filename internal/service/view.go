package service

import (
	"sort"
	"time"

	"partyquiz/internal/cache"
	"partyquiz/internal/engine"
	"partyquiz/internal/model"
)

// QuestionView is the active question as a client may see it.
// CorrectOptionIndex is only set once the answer may be shown.
type QuestionView struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	Category           string   `json:"category"`
	Points             int      `json:"points"`
	TimeLimit          int      `json:"timeLimit"`
	CorrectOptionIndex *int     `json:"correctOptionIndex,omitempty"`
}

// View is the role-filtered projection of a session snapshot pushed to
// clients.
type View struct {
	SessionID            string                   `json:"sessionId"`
	Version              int64                    `json:"version"`
	Status               model.SessionStatus      `json:"status"`
	Phase                model.Phase              `json:"phase"`
	Categories           []string                 `json:"categories"`
	CurrentCategory      int                      `json:"currentCategory"`
	CurrentQuestionIndex int                      `json:"currentQuestionIndex"`
	QuestionsInCategory  int                      `json:"questionsInCategory"`
	CurrentRound         int                      `json:"currentRound"`
	IsPaused             bool                     `json:"isPaused"`
	TimeRemaining        int                      `json:"timeRemaining"`
	AllPlayersAnswered   bool                     `json:"allPlayersAnswered"`
	AnsweredCount        int                      `json:"answeredCount"`
	Question             *QuestionView            `json:"question,omitempty"`
	Players              []model.Player           `json:"players,omitempty"`
	Standings            []cache.LeaderboardEntry `json:"standings,omitempty"`
	Me                   *model.Player            `json:"me,omitempty"`
	Links                *model.Links             `json:"links,omitempty"`
}

// BuildView projects gs for one role. Players and displays never see the
// correct option before the reveal; only admins see everyone's answers.
func BuildView(eng *engine.Engine, gs *model.GameSession, role Role, playerID string, now time.Time) *View {
	phase := gs.Phase()
	v := &View{
		SessionID:            gs.ID,
		Version:              gs.Version,
		Status:               gs.Status,
		Phase:                phase,
		Categories:           gs.Categories,
		CurrentCategory:      gs.CurrentCategory,
		CurrentQuestionIndex: gs.CurrentQuestionIndex,
		QuestionsInCategory:  len(gs.CategoryQuestions(gs.CurrentCategory)),
		CurrentRound:         gs.CurrentRound,
		IsPaused:             gs.IsPaused,
		TimeRemaining:        eng.RemainingSeconds(gs, now),
		AllPlayersAnswered:   gs.AllPlayersAnswered,
	}
	if phase == model.PhaseLobby {
		if qs := gs.CategoryQuestions(0); len(qs) > 0 {
			v.TimeRemaining = qs[0].TimeLimit
		}
	}

	if q := gs.ActiveQuestion(); q != nil && phase != model.PhaseRoundLeaderboard {
		qv := &QuestionView{
			ID:        q.ID,
			Text:      q.Text,
			Options:   append([]string(nil), q.Options...),
			Category:  q.Category,
			Points:    q.Points,
			TimeLimit: q.TimeLimit,
		}
		if role == RoleAdmin || phase == model.PhaseRevealAnswer {
			idx := q.CorrectOptionIndex
			qv.CorrectOptionIndex = &idx
		}
		v.Question = qv
		for _, p := range gs.Players {
			if p.AnsweredQuestion(q.ID) {
				v.AnsweredCount++
			}
		}
	}

	players := gs.PlayerList()
	v.Players = make([]model.Player, len(players))
	for i, p := range players {
		v.Players[i] = *p
		if role != RoleAdmin {
			v.Players[i].LastAnswer = nil
		}
	}

	if phase == model.PhaseRoundLeaderboard || phase == model.PhaseFinished || role == RoleAdmin {
		v.Standings = Standings(gs)
	}

	if role == RolePlayer {
		if p := gs.Player(playerID); p != nil {
			me := *p
			if me.LastAnswer != nil {
				la := *me.LastAnswer
				me.LastAnswer = &la
			}
			v.Me = &me
		}
	}
	return v
}

// Standings ranks the session's players by score. Ties keep join order and
// share a rank.
func Standings(gs *model.GameSession) []cache.LeaderboardEntry {
	players := gs.PlayerList()
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Score > players[j].Score
	})

	entries := make([]cache.LeaderboardEntry, len(players))
	for i, p := range players {
		entries[i] = cache.LeaderboardEntry{PlayerID: p.ID, Name: p.Name, Score: p.Score}
	}
	rank(entries)
	return entries
}

// rank assigns competition ranks (1, 1, 3) to entries sorted by score.
func rank(entries []cache.LeaderboardEntry) {
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
