package engine

import (
	"time"

	"partyquiz/internal/model"
)

// Remaining is the time left on the active question. Every client derives it
// from the question's start anchor, so no per-second writes are needed.
// Paused sessions read the clock at the pause instant.
func (e *Engine) Remaining(s *model.GameSession, now time.Time) time.Duration {
	q := s.ActiveQuestion()
	if q == nil || s.QuestionStartedAt == nil {
		return 0
	}
	left := e.limit(q) - e.effectiveNow(s, now).Sub(*s.QuestionStartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// RemainingSeconds is Remaining rounded up to whole time-limit units, the
// value displays count down with.
func (e *Engine) RemainingSeconds(s *model.GameSession, now time.Time) int {
	left := e.Remaining(s, now)
	unit := e.cfg.TimeLimitUnit
	return int((left + unit - 1) / unit)
}

// Elapsed is how long the active question has been running, paused time
// excluded. It never exceeds the question's limit.
func (e *Engine) Elapsed(s *model.GameSession, now time.Time) time.Duration {
	q := s.ActiveQuestion()
	if q == nil || s.QuestionStartedAt == nil {
		return 0
	}
	d := e.effectiveNow(s, now).Sub(*s.QuestionStartedAt)
	switch {
	case d < 0:
		return 0
	case d > e.limit(q):
		return e.limit(q)
	}
	return d
}

// NextDeadline reports which timer-driven trigger is due next for s and when.
// ok is false when nothing is scheduled: the session is paused, waiting in
// the lobby, or finished.
func (e *Engine) NextDeadline(s *model.GameSession, now time.Time) (t Trigger, at time.Time, ok bool) {
	if s.IsPaused {
		return Trigger{}, time.Time{}, false
	}
	switch s.Phase() {
	case model.PhaseQuestionActive:
		q := s.ActiveQuestion()
		if q == nil {
			return Trigger{}, time.Time{}, false
		}
		if len(s.Players) > 0 && s.EveryoneAnswered(q.ID) {
			return Trigger{Kind: TriggerAllAnswered}, now, true
		}
		return Trigger{Kind: TriggerCountdownElapsed}, now.Add(e.Remaining(s, now)), true
	case model.PhaseRevealAnswer:
		return Trigger{Kind: TriggerRevealElapsed}, anchorPlus(s.RevealStartedAt, e.cfg.RevealWindow, now), true
	case model.PhaseRoundLeaderboard:
		return Trigger{Kind: TriggerLeaderboardElapsed}, anchorPlus(s.LeaderboardStartedAt, e.cfg.LeaderboardWindow, now), true
	}
	return Trigger{}, time.Time{}, false
}

func (e *Engine) limit(q *model.Question) time.Duration {
	return time.Duration(q.TimeLimit) * e.cfg.TimeLimitUnit
}

func (e *Engine) effectiveNow(s *model.GameSession, now time.Time) time.Time {
	if s.IsPaused && s.PausedAt != nil {
		return *s.PausedAt
	}
	return now
}

func anchorPlus(anchor *time.Time, d time.Duration, now time.Time) time.Time {
	if anchor == nil {
		return now
	}
	return anchor.Add(d)
}
