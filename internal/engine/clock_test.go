package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyquiz/internal/model"
)

func TestRemainingSecondsRoundsUp(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	assert.Equal(t, 30, e.RemainingSeconds(s, t0))
	assert.Equal(t, 30, e.RemainingSeconds(s, t0.Add(200*time.Millisecond)))
	assert.Equal(t, 29, e.RemainingSeconds(s, t0.Add(time.Second)))
	assert.Equal(t, 1, e.RemainingSeconds(s, t0.Add(29900*time.Millisecond)))
	assert.Equal(t, 0, e.RemainingSeconds(s, t0.Add(31*time.Second)))
}

func TestElapsedIsClamped(t *testing.T) {
	e := New(DefaultConfig())
	s := newSession(1)
	assert.Zero(t, e.Elapsed(s, t0), "lobby")

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))
	assert.Equal(t, 12*time.Second, e.Elapsed(s, t0.Add(12*time.Second)))
	assert.Equal(t, 30*time.Second, e.Elapsed(s, t0.Add(time.Minute)))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerSetTimer, Seconds: 45}, t0))
	assert.Zero(t, e.Elapsed(s, t0))
}

func TestNextDeadline(t *testing.T) {
	e := New(Config{RevealWindow: 2 * time.Second, LeaderboardWindow: 3 * time.Second})
	s := newSession(1, 1)

	_, _, ok := e.NextDeadline(s, t0)
	assert.False(t, ok, "lobby")

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))
	trig, at, ok := e.NextDeadline(s, t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, TriggerCountdownElapsed, trig.Kind)
	assert.True(t, at.Equal(t0.Add(30*time.Second)))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerCountdownElapsed}, at))
	trig, at, ok = e.NextDeadline(s, at)
	require.True(t, ok)
	assert.Equal(t, TriggerRevealElapsed, trig.Kind)
	assert.True(t, at.Equal(t0.Add(32*time.Second)))

	require.NoError(t, e.Apply(s, trig, at))
	require.Equal(t, model.PhaseRoundLeaderboard, s.Phase())
	trig, at, ok = e.NextDeadline(s, at)
	require.True(t, ok)
	assert.Equal(t, TriggerLeaderboardElapsed, trig.Kind)
	assert.True(t, at.Equal(t0.Add(35*time.Second)))

	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerEndGame}, at))
	_, _, ok = e.NextDeadline(s, at)
	assert.False(t, ok, "finished")
}

func TestTimeLimitUnit(t *testing.T) {
	e := New(Config{TimeLimitUnit: 10 * time.Millisecond})
	s := newSession(1)
	require.NoError(t, e.Apply(s, Trigger{Kind: TriggerStart}, t0))

	assert.Equal(t, 300*time.Millisecond, e.Remaining(s, t0))
	assert.Equal(t, 20, e.RemainingSeconds(s, t0.Add(100*time.Millisecond)))
}
