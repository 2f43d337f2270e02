package engine

import (
	"fmt"
	"strings"
	"time"

	"partyquiz/internal/model"
)

// ScoringRule converts one answer into a score delta.
type ScoringRule interface {
	Award(q *model.Question, correct bool, spent, limit time.Duration) int
	Name() string
}

// FlatScoring awards a question's full points for a correct answer.
type FlatScoring struct{}

func (FlatScoring) Name() string { return "flat" }

func (FlatScoring) Award(q *model.Question, correct bool, _, _ time.Duration) int {
	if !correct {
		return 0
	}
	return q.Points
}

// SpeedScoring adds a bonus of up to MaxBonus (a fraction of the question's
// points) that shrinks linearly with the time spent answering.
type SpeedScoring struct {
	MaxBonus float64
}

func (SpeedScoring) Name() string { return "speed" }

func (r SpeedScoring) Award(q *model.Question, correct bool, spent, limit time.Duration) int {
	if !correct {
		return 0
	}
	if limit <= 0 {
		return q.Points
	}
	left := float64(limit-spent) / float64(limit)
	if left < 0 {
		left = 0
	}
	return q.Points + int(float64(q.Points)*r.MaxBonus*left)
}

// ParseScoringRule maps a configuration name to a rule.
func ParseScoringRule(name string) (ScoringRule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "flat":
		return FlatScoring{}, nil
	case "speed":
		return SpeedScoring{MaxBonus: 0.5}, nil
	}
	return nil, fmt.Errorf("%w: unknown scoring rule %q", model.ErrInvalidInput, name)
}

// Answer records player playerID's choice on the active question and credits
// the score. It mutates s and returns the updated player.
//
// Errors: model.ErrNotFound for an unknown player, model.ErrInvalidTransition
// when no question is accepting answers (lobby, reveal, leaderboard, time up),
// model.ErrInvalidInput for an option outside the question, and
// model.ErrAlreadyAnswered for a second submission on the same question.
func (e *Engine) Answer(s *model.GameSession, playerID string, optionIndex int, now time.Time) (*model.Player, error) {
	p := s.Player(playerID)
	if p == nil {
		return nil, fmt.Errorf("%w: player %s", model.ErrNotFound, playerID)
	}
	if s.Phase() != model.PhaseQuestionActive {
		return nil, fmt.Errorf("%w: no question is accepting answers", model.ErrInvalidTransition)
	}
	q := s.ActiveQuestion()
	if q == nil {
		return nil, fmt.Errorf("%w: no active question", model.ErrInvalidTransition)
	}
	if !q.HasOption(optionIndex) {
		return nil, fmt.Errorf("%w: option %d is not one of %d options", model.ErrInvalidInput, optionIndex, len(q.Options))
	}
	if p.AnsweredQuestion(q.ID) {
		return nil, model.ErrAlreadyAnswered
	}
	if e.Remaining(s, now) <= 0 {
		return nil, fmt.Errorf("%w: time is up", model.ErrInvalidTransition)
	}

	spent := e.Elapsed(s, now)
	correct := optionIndex == q.CorrectOptionIndex
	p.Score += e.cfg.Scoring.Award(q, correct, spent, e.limit(q))
	p.LastAnswer = &model.LastAnswer{
		QuestionID:  q.ID,
		OptionIndex: optionIndex,
		IsCorrect:   correct,
		TimeSpentMs: spent.Milliseconds(),
	}
	return p, nil
}
