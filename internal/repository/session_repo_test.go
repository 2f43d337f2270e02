package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyquiz/internal/cache"
	"partyquiz/internal/model"
)

func testSession(id string) *model.GameSession {
	return &model.GameSession{
		ID:         id,
		HostID:     "host_1",
		Status:     model.StatusWaiting,
		Categories: []string{"Geography"},
		Questions: [][]model.Question{{{
			ID: "geo-01", Text: "Capital?", Options: []string{"a", "b"},
			Category: "Geography", Points: 100, TimeLimit: 30,
		}}},
	}
}

func TestSessionRepoCreateGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(cache.NewMemoryStore())

	_, err := repo.Get(ctx, "ABC123")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, repo.Create(ctx, testSession("ABC123")))
	assert.ErrorIs(t, repo.Create(ctx, testSession("ABC123")), model.ErrConflict)

	got, err := repo.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, "geo-01", got.Questions[0][0].ID)
}

func TestSessionRepoRejectsInvalidDocuments(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(cache.NewMemoryStore())

	bad := testSession("BAD001")
	bad.Categories = nil
	assert.ErrorIs(t, repo.Create(ctx, bad), model.ErrInvalidInput)

	require.NoError(t, repo.Create(ctx, testSession("OK0001")))
	_, _, err := repo.Update(ctx, "OK0001", func(s *model.GameSession) error {
		s.ShowLeaderboard = true
		s.ShowingCorrectAnswer = true
		return nil
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	got, err := repo.Get(ctx, "OK0001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestSessionRepoUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(cache.NewMemoryStore())
	require.NoError(t, repo.Create(ctx, testSession("ABC123")))

	s, changed, err := repo.Update(ctx, "ABC123", func(s *model.GameSession) error {
		s.AddPlayer(model.Player{ID: "p1", Name: "Ana"})
		return nil
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(2), s.Version)
	assert.Len(t, s.Players, 1)
	assert.Equal(t, "Ana", s.Player("p1").Name)

	s, changed, err = repo.Update(ctx, "ABC123", func(*model.GameSession) error {
		return model.ErrNoChange
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(2), s.Version)

	boom := errors.New("boom")
	_, _, err = repo.Update(ctx, "ABC123", func(*model.GameSession) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, _, err = repo.Update(ctx, "NOPE00", func(*model.GameSession) error { return nil })
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSessionRepoConcurrentJoinsAllLand(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(cache.NewMemoryStore())
	require.NoError(t, repo.Create(ctx, testSession("ABC123")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := repo.Update(ctx, "ABC123", func(s *model.GameSession) error {
				s.AddPlayer(model.Player{ID: string(rune('a' + i))})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, err := repo.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.Len(t, s.Players, 20)
	assert.Equal(t, int64(21), s.Version)
}

func TestSessionRepoWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := NewSessionRepo(cache.NewMemoryStore())
	require.NoError(t, repo.Create(ctx, testSession("ABC123")))

	ch, err := repo.Watch(ctx, "ABC123")
	require.NoError(t, err)

	select {
	case s := <-ch:
		assert.Equal(t, int64(1), s.Version)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	_, _, err = repo.Update(ctx, "ABC123", func(s *model.GameSession) error {
		s.Status = model.StatusFinished
		return nil
	})
	require.NoError(t, err)

	select {
	case s := <-ch:
		assert.Equal(t, int64(2), s.Version)
		assert.Equal(t, model.StatusFinished, s.Status)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after update")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
