package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyquiz/internal/model"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func question(id, category string, correct int) model.Question {
	return model.Question{
		ID:                 id,
		Text:               "question " + id,
		Options:            []string{"a", "b", "c", "d"},
		CorrectOptionIndex: correct,
		Category:           category,
		Points:             100,
		TimeLimit:          30,
	}
}

// newSession builds a waiting session with the given number of questions in
// each category.
func newSession(perCategory ...int) *model.GameSession {
	s := &model.GameSession{
		ID:        "s1",
		HostID:    "host_1",
		Status:    model.StatusWaiting,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	for c, n := range perCategory {
		name := fmt.Sprintf("cat%d", c+1)
		s.Categories = append(s.Categories, name)
		qs := make([]model.Question, n)
		for i := range qs {
			qs[i] = question(fmt.Sprintf("%s-q%d", name, i+1), name, 1)
		}
		s.Questions = append(s.Questions, qs)
	}
	return s
}

func addPlayers(s *model.GameSession, ids ...string) {
	for _, id := range ids {
		s.AddPlayer(model.Player{ID: id, Name: "name-" + id, JoinedAt: t0})
	}
}

// elapse fires whichever timer-driven trigger is due next, at the moment it
// is due, and returns that moment.
func elapse(t *testing.T, e *Engine, s *model.GameSession, now time.Time) time.Time {
	t.Helper()
	trig, at, ok := e.NextDeadline(s, now)
	require.True(t, ok, "no deadline in phase %s", s.Phase())
	if at.Before(now) {
		at = now
	}
	require.NoError(t, e.Apply(s, trig, at))
	return at
}

func TestStartOpensFirstQuestion(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(2, 2)

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	assert.Equal(t, model.StatusPlaying, s.Status)
	assert.Equal(t, model.PhaseQuestionActive, s.Phase())
	assert.Equal(t, 0, s.CurrentCategory)
	assert.Equal(t, 0, s.CurrentQuestionIndex)
	assert.Equal(t, 0, s.CurrentRound)
	assert.Equal(t, 30, s.TimeRemaining)
	require.NotNil(t, s.StartedAt)
	assert.True(t, s.StartedAt.Equal(t0))
	assert.Equal(t, "cat1-q1", s.ActiveQuestion().ID)

	err := e.Apply(s, Trigger{Kind: TriggerStart}, t0.Add(time.Second))
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestStartWithoutQuestionsIsRejected(t *testing.T) {
	e := New(DefaultConfig())
	s := &model.GameSession{ID: "empty", Status: model.StatusWaiting}

	err := e.Apply(s, Trigger{Kind: TriggerStart}, t0)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, model.StatusWaiting, s.Status)
}

// Two categories of two questions with nobody playing: the game is driven by
// timers alone and visits the round leaderboard once, between categories.
func TestEmptyLobbyRunsToCompletion(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(2, 2)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	now := t0
	var phases []model.Phase
	for steps := 0; s.Phase() != model.PhaseFinished; steps++ {
		require.Less(t, steps, 2*s.QuestionCount()+len(s.Categories), "game did not terminate")
		now = elapse(t, e, s, now)
		phases = append(phases, s.Phase())
	}

	want := []model.Phase{
		model.PhaseRevealAnswer, model.PhaseQuestionActive,
		model.PhaseRevealAnswer, model.PhaseRoundLeaderboard,
		model.PhaseQuestionActive,
		model.PhaseRevealAnswer, model.PhaseQuestionActive,
		model.PhaseRevealAnswer, model.PhaseFinished,
	}
	assert.Equal(t, want, phases)
	assert.Equal(t, 1, s.CurrentRound)
	require.NotNil(t, s.EndedAt)
	assert.False(t, s.ShowLeaderboard)
}

func TestEarlyRevealWhenEveryoneAnswered(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(2)
	addPlayers(s, "p1", "p2")
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	now := t0.Add(500 * time.Millisecond)
	_, err := e.Answer(s, "p1", 1, now)
	require.NoError(t, err)

	// Only one of two has answered.
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerAllAnswered}, now), model.ErrNoChange)

	now = t0.Add(time.Second)
	_, err = e.Answer(s, "p2", 1, now)
	require.NoError(t, err)

	trig, at, ok := e.NextDeadline(s, now)
	require.True(t, ok)
	assert.Equal(t, TriggerAllAnswered, trig.Kind)
	assert.True(t, at.Equal(now))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerAllAnswered}, now))
	assert.Equal(t, model.PhaseRevealAnswer, s.Phase())
	assert.True(t, s.ShowingCorrectAnswer)
	assert.True(t, s.AllPlayersAnswered)

	// The reveal window holds for its full length.
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerRevealElapsed}, now.Add(4*time.Second)), model.ErrNoChange)
	now = now.Add(5 * time.Second)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerRevealElapsed}, now))
	assert.Equal(t, 1, s.CurrentQuestionIndex)
	assert.Equal(t, model.PhaseQuestionActive, s.Phase())
	assert.False(t, s.AllPlayersAnswered)

	now = now.Add(time.Second)
	for _, id := range []string{"p1", "p2"} {
		_, err := e.Answer(s, id, 1, now)
		require.NoError(t, err)
	}
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerAllAnswered}, now))
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerRevealElapsed}, now.Add(5*time.Second)))

	// Last category: no leaderboard, straight to the end.
	assert.Equal(t, model.PhaseFinished, s.Phase())
	assert.Equal(t, 0, s.CurrentRound)
	assert.Equal(t, 200, s.Player("p1").Score)
	assert.Equal(t, 200, s.Player("p2").Score)
}

func TestAnswerValidation(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1)
	addPlayers(s, "p1")
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))
	now := t0.Add(2 * time.Second)

	_, err := e.Answer(s, "p1", 4, now)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = e.Answer(s, "p1", -1, now)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Nil(t, s.Player("p1").LastAnswer)

	_, err = e.Answer(s, "ghost", 1, now)
	assert.ErrorIs(t, err, model.ErrNotFound)

	p, err := e.Answer(s, "p1", 1, now)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Score)
	assert.Equal(t, int64(2000), p.LastAnswer.TimeSpentMs)
	assert.True(t, p.LastAnswer.IsCorrect)

	_, err = e.Answer(s, "p1", 0, now.Add(time.Second))
	assert.ErrorIs(t, err, model.ErrAlreadyAnswered)
	assert.Equal(t, 100, s.Player("p1").Score)
	assert.Equal(t, 1, s.Player("p1").LastAnswer.OptionIndex)
}

func TestWrongAnswerScoresNothing(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1)
	addPlayers(s, "p1")
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	p, err := e.Answer(s, "p1", 3, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Score)
	assert.False(t, p.LastAnswer.IsCorrect)
}

func TestAnswersRejectedOutsideQuestion(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1, 1)
	addPlayers(s, "p1", "p2")

	_, err := e.Answer(s, "p1", 1, t0)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "lobby")

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	// Time is up but the reveal has not landed yet.
	_, err = e.Answer(s, "p1", 1, t0.Add(30*time.Second))
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "time up")

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, t0.Add(30*time.Second)))
	_, err = e.Answer(s, "p2", 1, t0.Add(31*time.Second))
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "reveal")

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerRevealElapsed}, t0.Add(35*time.Second)))
	require.Equal(t, model.PhaseRoundLeaderboard, s.Phase())
	_, err = e.Answer(s, "p2", 1, t0.Add(36*time.Second))
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "leaderboard")
}

// A paused countdown must not count the paused span: 10s played, 60s paused,
// 20s left after resume.
func TestPauseFreezesCountdown(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerPause}, t0.Add(10*time.Second)))
	assert.Equal(t, 20, s.TimeRemaining)
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerPause}, t0.Add(11*time.Second)), model.ErrNoChange)

	_, _, ok := e.NextDeadline(s, t0.Add(40*time.Second))
	assert.False(t, ok, "paused sessions schedule nothing")
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, t0.Add(45*time.Second)), model.ErrNoChange)
	assert.Equal(t, 20*time.Second, e.Remaining(s, t0.Add(69*time.Second)))

	resumeAt := t0.Add(70 * time.Second)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerResume}, resumeAt))
	assert.False(t, s.IsPaused)
	assert.Nil(t, s.PausedAt)

	assert.Equal(t, 5*time.Second, e.Remaining(s, resumeAt.Add(15*time.Second)))
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, resumeAt.Add(15*time.Second)), model.ErrNoChange)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, resumeAt.Add(20*time.Second)))
	assert.Equal(t, model.PhaseRevealAnswer, s.Phase())

	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerResume}, resumeAt.Add(21*time.Second)), model.ErrNoChange)
}

func TestPauseDuringRevealHoldsWindow(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(2)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))
	revealAt := t0.Add(30 * time.Second)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, revealAt))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerPause}, revealAt.Add(2*time.Second)))
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerResume}, revealAt.Add(12*time.Second)))

	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerRevealElapsed}, revealAt.Add(14*time.Second)), model.ErrNoChange)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerRevealElapsed}, revealAt.Add(15*time.Second)))
	assert.Equal(t, 1, s.CurrentQuestionIndex)
}

func TestPauseOutsidePlayIsInvalid(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1)

	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerPause}, t0), model.ErrInvalidTransition)
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerResume}, t0), model.ErrInvalidTransition)
}

func TestTimerTriggersFireOnce(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(2, 1)
	addPlayers(s, "p1")
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	at := t0.Add(30 * time.Second)

	// Two clients racing on the same snapshot compute the same successor.
	a, err := e.Next(s, Trigger{Kind: TriggerCountdownElapsed}, at)
	require.NoError(t, err)
	b, err := e.Next(s, Trigger{Kind: TriggerCountdownElapsed}, at)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, model.PhaseQuestionActive, s.Phase(), "Next must not mutate its input")

	// The loser re-evaluates against the winner's write and backs off.
	_, err = e.Next(a, Trigger{Kind: TriggerCountdownElapsed}, at)
	assert.ErrorIs(t, err, model.ErrNoChange)
	_, err = e.Next(a, Trigger{Kind: TriggerAllAnswered}, at)
	assert.ErrorIs(t, err, model.ErrNoChange)

	// A reveal-elapsed that lands twice advances the cursor only once.
	at = at.Add(5 * time.Second)
	require.NoError(t, e.Apply(a, Trigger{Kind: TriggerRevealElapsed}, at))
	assert.ErrorIs(t, e.Apply(a, Trigger{Kind: TriggerRevealElapsed}, at), model.ErrNoChange)
	assert.Equal(t, 1, a.CurrentQuestionIndex)

	// Same for the leaderboard.
	at = at.Add(30 * time.Second)
	require.NoError(t, e.Apply(a, Trigger{Kind: TriggerCountdownElapsed}, at))
	at = at.Add(5 * time.Second)
	require.NoError(t, e.Apply(a, Trigger{Kind: TriggerRevealElapsed}, at))
	require.Equal(t, model.PhaseRoundLeaderboard, a.Phase())
	assert.Equal(t, 1, a.CurrentRound)
	assert.True(t, a.RoundCompleted)

	at = at.Add(10 * time.Second)
	require.NoError(t, e.Apply(a, Trigger{Kind: TriggerLeaderboardElapsed}, at))
	assert.ErrorIs(t, e.Apply(a, Trigger{Kind: TriggerLeaderboardElapsed}, at), model.ErrNoChange)
	assert.Equal(t, 1, a.CurrentCategory)
	assert.Equal(t, 0, a.CurrentQuestionIndex)
	assert.False(t, a.RoundCompleted)
}

func TestPrematureTimersAreIgnored(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1, 1)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, t0.Add(29*time.Second)), model.ErrNoChange)
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerRevealElapsed}, t0.Add(29*time.Second)), model.ErrNoChange)
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerLeaderboardElapsed}, t0.Add(29*time.Second)), model.ErrNoChange)

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, t0.Add(30*time.Second)))
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerRevealElapsed}, t0.Add(35*time.Second)))
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerLeaderboardElapsed}, t0.Add(44*time.Second)), model.ErrNoChange)
}

func TestForceNext(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(2, 1)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	now := t0.Add(time.Second)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerForceNext}, now))
	assert.Equal(t, 1, s.CurrentQuestionIndex)
	assert.Equal(t, model.PhaseQuestionActive, s.Phase())
	assert.Equal(t, 30*time.Second, e.Remaining(s, now))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerForceNext}, now))
	assert.Equal(t, model.PhaseRoundLeaderboard, s.Phase())

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerForceNext}, now))
	assert.Equal(t, model.PhaseQuestionActive, s.Phase())
	assert.Equal(t, 1, s.CurrentCategory)

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerForceNext}, now))
	assert.Equal(t, model.PhaseFinished, s.Phase())

	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerForceNext}, now), model.ErrInvalidTransition)
}

func TestForceNextWhilePausedStaysPaused(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(2)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerPause}, t0.Add(5*time.Second)))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerForceNext}, t0.Add(8*time.Second)))
	assert.True(t, s.IsPaused)
	assert.Equal(t, 30*time.Second, e.Remaining(s, t0.Add(100*time.Second)))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerResume}, t0.Add(100*time.Second)))
	assert.Equal(t, 20*time.Second, e.Remaining(s, t0.Add(110*time.Second)))
}

func TestSetTimer(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	now := t0.Add(10 * time.Second)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerSetTimer, Seconds: 5}, now))
	assert.Equal(t, 5, s.TimeRemaining)
	assert.Equal(t, 5*time.Second, e.Remaining(s, now))

	// Extending past the question's own limit is allowed.
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerSetTimer, Seconds: 90}, now))
	assert.Equal(t, 90*time.Second, e.Remaining(s, now))

	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerSetTimer, Seconds: -1}, now), model.ErrInvalidInput)

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerSetTimer, Seconds: 0}, now))
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, now))
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerSetTimer, Seconds: 10}, now), model.ErrInvalidTransition)
}

func TestSetTimerWhilePaused(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerPause}, t0.Add(10*time.Second)))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerSetTimer, Seconds: 15}, t0.Add(20*time.Second)))
	assert.Equal(t, 15*time.Second, e.Remaining(s, t0.Add(50*time.Second)))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerResume}, t0.Add(60*time.Second)))
	assert.Equal(t, 15*time.Second, e.Remaining(s, t0.Add(60*time.Second)))
}

func TestEndGame(t *testing.T) {
	e := New(DefaultConfig())

	lobby := newSession(1)
	require.NoError(t, e.Apply(lobby, Trigger{Kind: TriggerEndGame}, t0))
	assert.Equal(t, model.PhaseFinished, lobby.Phase())

	s := newSession(2)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerPause}, t0.Add(time.Second)))
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerEndGame}, t0.Add(2*time.Second)))
	assert.Equal(t, model.StatusFinished, s.Status)
	assert.False(t, s.IsPaused)
	require.NotNil(t, s.EndedAt)
	assert.True(t, s.EndedAt.Equal(t0.Add(2*time.Second)))

	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerEndGame}, t0.Add(3*time.Second)), model.ErrNoChange)
	assert.True(t, s.EndedAt.Equal(t0.Add(2*time.Second)))
	assert.ErrorIs(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0.Add(3*time.Second)), model.ErrInvalidTransition)
}

func TestUnknownTrigger(t *testing.T) {
	e := New(DefaultConfig())
	err := e.Apply(newSession(1), Trigger{Kind: "rewind"}, t0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

type cursor struct{ category, index, round int }

func (c cursor) less(o cursor) bool {
	if c.round != o.round {
		return c.round < o.round
	}
	if c.category != o.category {
		return c.category < o.category
	}
	return c.index < o.index
}

// Random trigger storms never move the cursor backwards and every write the
// engine produces is a valid document.
func TestCursorNeverMovesBackwards(t *testing.T) {
	kinds := []TriggerKind{
		TriggerCountdownElapsed, TriggerAllAnswered, TriggerRevealElapsed,
		TriggerLeaderboardElapsed, TriggerPause, TriggerResume, TriggerForceNext,
		TriggerSetTimer,
	}
	e := New(DefaultConfig())

	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		s := newSession(3, 1, 2)
		addPlayers(s, "p1", "p2")
		require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

		now := t0
		prev := cursor{}
		for i := 0; i < 400 && s.Phase() != model.PhaseFinished; i++ {
			now = now.Add(time.Duration(rng.Intn(8000)) * time.Millisecond)
			if rng.Intn(3) == 0 {
				_, _ = e.Answer(s, fmt.Sprintf("p%d", rng.Intn(2)+1), rng.Intn(4), now)
			}
			trig := Trigger{Kind: kinds[rng.Intn(len(kinds))], Seconds: rng.Intn(20)}
			err := e.Apply(s, trig, now)
			if err != nil && !errors.Is(err, model.ErrNoChange) && !errors.Is(err, model.ErrInvalidTransition) {
				t.Fatalf("seed %d: %s: unexpected error %v", seed, trig, err)
			}
			cur := cursor{s.CurrentCategory, s.CurrentQuestionIndex, s.CurrentRound}
			require.False(t, cur.less(prev), "seed %d: cursor moved back from %+v to %+v", seed, prev, cur)
			prev = cur
			require.NoError(t, s.Validate(), "seed %d after %s", seed, trig)
		}
	}
}
