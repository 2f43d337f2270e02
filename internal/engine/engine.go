// Package engine holds the pure progression and scoring rules of a quiz
// session. It performs no I/O: every function takes a snapshot and a wall
// clock reading and mutates or inspects that snapshot only.
package engine

import (
	"fmt"
	"time"

	"partyquiz/internal/model"
)

const (
	// DefaultRevealWindow is how long the correct answer stays on screen.
	DefaultRevealWindow = 5 * time.Second
	// DefaultLeaderboardWindow is how long the between-category leaderboard shows.
	DefaultLeaderboardWindow = 10 * time.Second
)

// TriggerKind names an event that may move a session between phases.
type TriggerKind string

const (
	// TriggerStart opens the first question of a waiting session.
	TriggerStart TriggerKind = "start"
	// TriggerCountdownElapsed closes the active question when its clock runs out.
	TriggerCountdownElapsed TriggerKind = "countdown_elapsed"
	// TriggerAllAnswered closes the active question early once every player answered.
	TriggerAllAnswered TriggerKind = "all_answered"
	// TriggerRevealElapsed ends the reveal window and advances the cursor.
	TriggerRevealElapsed TriggerKind = "reveal_elapsed"
	// TriggerLeaderboardElapsed ends the round leaderboard.
	TriggerLeaderboardElapsed TriggerKind = "leaderboard_elapsed"
	// TriggerEndGame finishes the session immediately.
	TriggerEndGame TriggerKind = "end_game"
	// TriggerPause freezes every running clock.
	TriggerPause TriggerKind = "pause"
	// TriggerResume restarts the clocks frozen by TriggerPause.
	TriggerResume TriggerKind = "resume"
	// TriggerForceNext skips the current question, reveal or leaderboard.
	TriggerForceNext TriggerKind = "force_next"
	// TriggerSetTimer sets the active question's remaining seconds.
	TriggerSetTimer TriggerKind = "set_timer"
)

// Trigger is one input to Apply. Seconds is only read by TriggerSetTimer.
type Trigger struct {
	Kind    TriggerKind
	Seconds int
}

func (t Trigger) String() string {
	if t.Kind == TriggerSetTimer {
		return fmt.Sprintf("%s(%d)", t.Kind, t.Seconds)
	}
	return string(t.Kind)
}

// Config tunes the engine's windows and scoring.
type Config struct {
	RevealWindow      time.Duration
	LeaderboardWindow time.Duration
	// TimeLimitUnit is the wall-clock length of one unit of Question.TimeLimit.
	TimeLimitUnit time.Duration
	Scoring       ScoringRule
}

// DefaultConfig returns the production timings with flat scoring.
func DefaultConfig() Config {
	return Config{
		RevealWindow:      DefaultRevealWindow,
		LeaderboardWindow: DefaultLeaderboardWindow,
		TimeLimitUnit:     time.Second,
		Scoring:           FlatScoring{},
	}
}

// Engine applies triggers to session snapshots.
type Engine struct {
	cfg Config
}

// New creates an engine. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.RevealWindow <= 0 {
		cfg.RevealWindow = def.RevealWindow
	}
	if cfg.LeaderboardWindow <= 0 {
		cfg.LeaderboardWindow = def.LeaderboardWindow
	}
	if cfg.TimeLimitUnit <= 0 {
		cfg.TimeLimitUnit = def.TimeLimitUnit
	}
	if cfg.Scoring == nil {
		cfg.Scoring = def.Scoring
	}
	return &Engine{cfg: cfg}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Apply evaluates trigger t against s at time now and mutates s in place.
//
// It returns model.ErrNoChange when the trigger's guard does not hold for
// this snapshot (a timer that has not really elapsed, a phase another client
// already left). Admin commands that make no sense in the current phase
// return model.ErrInvalidTransition instead.
func (e *Engine) Apply(s *model.GameSession, t Trigger, now time.Time) error {
	phase := s.Phase()

	switch t.Kind {
	case TriggerStart:
		if phase != model.PhaseLobby {
			return fmt.Errorf("%w: cannot start a %s session", model.ErrInvalidTransition, s.Status)
		}
		if len(s.CategoryQuestions(0)) == 0 {
			return fmt.Errorf("%w: session has no questions", model.ErrInvalidTransition)
		}
		s.Status = model.StatusPlaying
		s.CurrentCategory = 0
		s.CurrentQuestionIndex = 0
		s.CurrentRound = 0
		s.ShowLeaderboard = false
		s.RoundCompleted = false
		s.IsPaused = false
		s.PausedAt = nil
		s.StartedAt = &now
		e.beginQuestion(s, now)
		return nil

	case TriggerCountdownElapsed:
		if phase != model.PhaseQuestionActive || s.IsPaused {
			return model.ErrNoChange
		}
		if e.Remaining(s, now) > 0 {
			return model.ErrNoChange
		}
		e.reveal(s, now)
		return nil

	case TriggerAllAnswered:
		if phase != model.PhaseQuestionActive || s.IsPaused || len(s.Players) == 0 {
			return model.ErrNoChange
		}
		q := s.ActiveQuestion()
		if q == nil || !s.EveryoneAnswered(q.ID) {
			return model.ErrNoChange
		}
		e.reveal(s, now)
		return nil

	case TriggerRevealElapsed:
		if phase != model.PhaseRevealAnswer || s.IsPaused {
			return model.ErrNoChange
		}
		if !windowElapsed(s.RevealStartedAt, e.cfg.RevealWindow, now) {
			return model.ErrNoChange
		}
		e.advance(s, now)
		return nil

	case TriggerLeaderboardElapsed:
		if phase != model.PhaseRoundLeaderboard || s.IsPaused {
			return model.ErrNoChange
		}
		if !windowElapsed(s.LeaderboardStartedAt, e.cfg.LeaderboardWindow, now) {
			return model.ErrNoChange
		}
		e.leaveLeaderboard(s, now)
		return nil

	case TriggerEndGame:
		if phase == model.PhaseFinished {
			return model.ErrNoChange
		}
		finish(s, now)
		return nil

	case TriggerPause:
		if s.Status != model.StatusPlaying {
			return fmt.Errorf("%w: cannot pause a %s session", model.ErrInvalidTransition, s.Status)
		}
		if s.IsPaused {
			return model.ErrNoChange
		}
		if phase == model.PhaseQuestionActive {
			s.TimeRemaining = e.RemainingSeconds(s, now)
		}
		s.IsPaused = true
		s.PausedAt = &now
		return nil

	case TriggerResume:
		if s.Status != model.StatusPlaying {
			return fmt.Errorf("%w: cannot resume a %s session", model.ErrInvalidTransition, s.Status)
		}
		if !s.IsPaused {
			return model.ErrNoChange
		}
		if s.PausedAt != nil {
			span := now.Sub(*s.PausedAt)
			if span > 0 {
				switch phase {
				case model.PhaseQuestionActive:
					s.QuestionStartedAt = shift(s.QuestionStartedAt, span)
				case model.PhaseRevealAnswer:
					s.RevealStartedAt = shift(s.RevealStartedAt, span)
				case model.PhaseRoundLeaderboard:
					s.LeaderboardStartedAt = shift(s.LeaderboardStartedAt, span)
				}
			}
		}
		s.IsPaused = false
		s.PausedAt = nil
		return nil

	case TriggerForceNext:
		switch phase {
		case model.PhaseQuestionActive, model.PhaseRevealAnswer:
			e.advance(s, now)
		case model.PhaseRoundLeaderboard:
			e.leaveLeaderboard(s, now)
		default:
			return fmt.Errorf("%w: nothing to skip in a %s session", model.ErrInvalidTransition, s.Status)
		}
		return nil

	case TriggerSetTimer:
		if phase != model.PhaseQuestionActive {
			return fmt.Errorf("%w: timer can only be set while a question is active", model.ErrInvalidTransition)
		}
		if t.Seconds < 0 {
			return fmt.Errorf("%w: timer seconds must not be negative", model.ErrInvalidInput)
		}
		q := s.ActiveQuestion()
		left := time.Duration(t.Seconds) * e.cfg.TimeLimitUnit
		start := e.effectiveNow(s, now).Add(-(e.limit(q) - left))
		s.QuestionStartedAt = &start
		s.TimeRemaining = t.Seconds
		return nil
	}

	return fmt.Errorf("%w: unknown trigger %q", model.ErrInvalidInput, t.Kind)
}

// Next is the non-mutating form of Apply: it returns the successor snapshot
// and leaves s untouched.
func (e *Engine) Next(s *model.GameSession, t Trigger, now time.Time) (*model.GameSession, error) {
	next := s.Clone()
	if err := e.Apply(next, t, now); err != nil {
		return nil, err
	}
	return next, nil
}

// beginQuestion opens the question the cursors point at.
func (e *Engine) beginQuestion(s *model.GameSession, now time.Time) {
	s.ShowingCorrectAnswer = false
	s.AllPlayersAnswered = false
	s.RevealStartedAt = nil
	s.LeaderboardStartedAt = nil
	s.QuestionStartedAt = &now
	if q := s.ActiveQuestion(); q != nil {
		s.TimeRemaining = q.TimeLimit
	}
	if s.IsPaused {
		s.PausedAt = &now
	}
}

func (e *Engine) reveal(s *model.GameSession, now time.Time) {
	s.TimeRemaining = e.RemainingSeconds(s, now)
	s.ShowingCorrectAnswer = true
	s.AllPlayersAnswered = true
	s.RevealStartedAt = &now
}

// advance moves past the current question: to the next question of the
// category, to the round leaderboard, or straight to the end after the last
// category.
func (e *Engine) advance(s *model.GameSession, now time.Time) {
	if s.CurrentQuestionIndex+1 < len(s.CategoryQuestions(s.CurrentCategory)) {
		s.CurrentQuestionIndex++
		e.beginQuestion(s, now)
		return
	}
	if s.CurrentCategory+1 < len(s.Categories) {
		s.ShowingCorrectAnswer = false
		s.AllPlayersAnswered = false
		s.ShowLeaderboard = true
		s.RoundCompleted = true
		s.CurrentRound++
		s.RevealStartedAt = nil
		s.QuestionStartedAt = nil
		s.LeaderboardStartedAt = &now
		s.TimeRemaining = 0
		if s.IsPaused {
			s.PausedAt = &now
		}
		return
	}
	finish(s, now)
}

func (e *Engine) leaveLeaderboard(s *model.GameSession, now time.Time) {
	if s.CurrentCategory+1 >= len(s.Categories) {
		finish(s, now)
		return
	}
	s.CurrentCategory++
	s.CurrentQuestionIndex = 0
	s.ShowLeaderboard = false
	s.RoundCompleted = false
	e.beginQuestion(s, now)
}

func finish(s *model.GameSession, now time.Time) {
	s.Status = model.StatusFinished
	s.EndedAt = &now
	s.ShowingCorrectAnswer = false
	s.AllPlayersAnswered = false
	s.ShowLeaderboard = false
	s.RoundCompleted = false
	s.IsPaused = false
	s.PausedAt = nil
	s.QuestionStartedAt = nil
	s.RevealStartedAt = nil
	s.LeaderboardStartedAt = nil
	s.TimeRemaining = 0
}

func windowElapsed(start *time.Time, window time.Duration, now time.Time) bool {
	return start == nil || !now.Before(start.Add(window))
}

func shift(t *time.Time, d time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Add(d)
	return &v
}
