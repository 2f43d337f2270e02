package model

import (
	"fmt"
	"sort"
	"time"
)

// SessionStatus is the coarse lifecycle of a game session.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
)

// Phase is the tagged game state derived from a session's status and flags.
type Phase string

const (
	PhaseLobby            Phase = "lobby"
	PhaseQuestionActive   Phase = "question_active"
	PhaseRevealAnswer     Phase = "reveal_answer"
	PhaseRoundLeaderboard Phase = "round_leaderboard"
	PhaseFinished         Phase = "finished"
)

// GameSession is the shared session document. Every client reads and writes
// this one document; Version is bumped on each landed write.
type GameSession struct {
	ID                   string             `json:"id" bson:"_id"`
	HostID               string             `json:"hostId" bson:"hostId"`
	Status               SessionStatus      `json:"status" bson:"status"`
	Questions            [][]Question       `json:"questions" bson:"questions"`
	Categories           []string           `json:"categories" bson:"categories"`
	CurrentCategory      int                `json:"currentCategory" bson:"currentCategory"`
	CurrentQuestionIndex int                `json:"currentQuestionIndex" bson:"currentQuestionIndex"`
	CurrentRound         int                `json:"currentRound" bson:"currentRound"`
	IsPaused             bool               `json:"isPaused" bson:"isPaused"`
	TimeRemaining        int                `json:"timeRemaining" bson:"timeRemaining"`
	ShowingCorrectAnswer bool               `json:"showingCorrectAnswer" bson:"showingCorrectAnswer"`
	AllPlayersAnswered   bool               `json:"allPlayersAnswered" bson:"allPlayersAnswered"`
	ShowLeaderboard      bool               `json:"showLeaderboard" bson:"showLeaderboard"`
	RoundCompleted       bool               `json:"roundCompleted" bson:"roundCompleted"`
	Players              map[string]*Player `json:"players" bson:"players"`
	Version              int64              `json:"version" bson:"version"`

	QuestionStartedAt    *time.Time `json:"questionStartedAt,omitempty" bson:"questionStartedAt,omitempty"`
	PausedAt             *time.Time `json:"pausedAt,omitempty" bson:"pausedAt,omitempty"`
	RevealStartedAt      *time.Time `json:"revealStartedAt,omitempty" bson:"revealStartedAt,omitempty"`
	LeaderboardStartedAt *time.Time `json:"leaderboardStartedAt,omitempty" bson:"leaderboardStartedAt,omitempty"`

	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
	StartedAt *time.Time `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// Phase derives the current game state from status and flags.
func (s *GameSession) Phase() Phase {
	switch s.Status {
	case StatusWaiting:
		return PhaseLobby
	case StatusFinished:
		return PhaseFinished
	}
	switch {
	case s.ShowLeaderboard:
		return PhaseRoundLeaderboard
	case s.ShowingCorrectAnswer:
		return PhaseRevealAnswer
	default:
		return PhaseQuestionActive
	}
}

// CategoryQuestions returns the questions of the category at index idx.
func (s *GameSession) CategoryQuestions(idx int) []*Question {
	if idx < 0 || idx >= len(s.Questions) {
		return nil
	}
	out := make([]*Question, len(s.Questions[idx]))
	for i := range s.Questions[idx] {
		out[i] = &s.Questions[idx][i]
	}
	return out
}

// QuestionCount is the number of questions across all categories.
func (s *GameSession) QuestionCount() int {
	n := 0
	for _, qs := range s.Questions {
		n += len(qs)
	}
	return n
}

// ActiveQuestion resolves the cursors to a question. It returns nil outside
// the playing status or when the cursors point past the category.
func (s *GameSession) ActiveQuestion() *Question {
	if s.Status != StatusPlaying {
		return nil
	}
	if s.CurrentCategory < 0 || s.CurrentCategory >= len(s.Questions) {
		return nil
	}
	qs := s.Questions[s.CurrentCategory]
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(qs) {
		return nil
	}
	return &qs[s.CurrentQuestionIndex]
}

// Player looks a player up by id.
func (s *GameSession) Player(id string) *Player {
	return s.Players[id]
}

// AddPlayer stores p under its id.
func (s *GameSession) AddPlayer(p Player) {
	if s.Players == nil {
		s.Players = make(map[string]*Player)
	}
	s.Players[p.ID] = &p
}

// PlayerList returns the players in join order.
func (s *GameSession) PlayerList() []*Player {
	out := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// EveryoneAnswered reports whether every current player has answered the
// question with id questionID. An empty player list is vacuously true.
func (s *GameSession) EveryoneAnswered(questionID string) bool {
	for _, p := range s.Players {
		if !p.AnsweredQuestion(questionID) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, so a snapshot handed to one reader can never be
// mutated by another.
func (s *GameSession) Clone() *GameSession {
	c := *s
	if s.Questions != nil {
		c.Questions = make([][]Question, len(s.Questions))
		for i, qs := range s.Questions {
			c.Questions[i] = make([]Question, len(qs))
			for j, q := range qs {
				q.Options = append([]string(nil), q.Options...)
				c.Questions[i][j] = q
			}
		}
	}
	c.Categories = append([]string(nil), s.Categories...)
	if s.Players != nil {
		c.Players = make(map[string]*Player, len(s.Players))
		for id, p := range s.Players {
			cp := *p
			if p.LastAnswer != nil {
				la := *p.LastAnswer
				cp.LastAnswer = &la
			}
			c.Players[id] = &cp
		}
	}
	c.QuestionStartedAt = cloneTime(s.QuestionStartedAt)
	c.PausedAt = cloneTime(s.PausedAt)
	c.RevealStartedAt = cloneTime(s.RevealStartedAt)
	c.LeaderboardStartedAt = cloneTime(s.LeaderboardStartedAt)
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	return &c
}

// Validate checks the structural invariants of a session document.
func (s *GameSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	switch s.Status {
	case StatusWaiting, StatusPlaying, StatusFinished:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s.Status)
	}
	if len(s.Categories) == 0 {
		return fmt.Errorf("%w: session has no categories", ErrInvalidInput)
	}
	if len(s.Questions) != len(s.Categories) {
		return fmt.Errorf("%w: %d question lists for %d categories", ErrInvalidInput, len(s.Questions), len(s.Categories))
	}
	names := make(map[string]struct{}, len(s.Categories))
	for _, c := range s.Categories {
		if _, dup := names[c]; dup {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidInput, c)
		}
		names[c] = struct{}{}
	}
	seen := make(map[string]struct{}, s.QuestionCount())
	for i, qs := range s.Questions {
		if len(qs) == 0 {
			return fmt.Errorf("%w: category %q has no questions", ErrInvalidInput, s.Categories[i])
		}
		for j := range qs {
			q := &qs[j]
			if err := q.Validate(); err != nil {
				return err
			}
			if _, dup := seen[q.ID]; dup {
				return fmt.Errorf("%w: duplicate question id %q", ErrInvalidInput, q.ID)
			}
			seen[q.ID] = struct{}{}
		}
	}
	for id, p := range s.Players {
		if p == nil || p.ID != id {
			return fmt.Errorf("%w: player entry %q does not match its id", ErrInvalidInput, id)
		}
	}
	if s.ShowLeaderboard && s.ShowingCorrectAnswer {
		return fmt.Errorf("%w: leaderboard and reveal are both set", ErrInvalidInput)
	}
	if s.Status == StatusPlaying && !s.ShowLeaderboard && s.ActiveQuestion() == nil {
		return fmt.Errorf("%w: cursor (%d,%d) is out of range", ErrInvalidInput, s.CurrentCategory, s.CurrentQuestionIndex)
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
