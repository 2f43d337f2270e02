package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"partyquiz/internal/cache"
	"partyquiz/internal/model"
)

// SessionRepo maps GameSession documents onto the shared store. It owns no
// game logic: callers pass the mutation and the repo makes it atomic.
type SessionRepo interface {
	Create(ctx context.Context, session *model.GameSession) error
	Get(ctx context.Context, id string) (*model.GameSession, error)
	// Update applies fn to the freshest snapshot and writes the result with
	// a bumped version. When fn returns model.ErrNoChange nothing is written
	// and Update returns the current snapshot with changed == false.
	Update(ctx context.Context, id string, fn func(s *model.GameSession) error) (session *model.GameSession, changed bool, err error)
	// Watch streams snapshots in version order, starting with the current
	// one. The channel is closed when ctx is done.
	Watch(ctx context.Context, id string) (<-chan *model.GameSession, error)
	Ping(ctx context.Context) error
}

type sessionRepo struct {
	store cache.DocStore
	now   func() time.Time
}

// NewSessionRepo creates a session repository over store.
func NewSessionRepo(store cache.DocStore) SessionRepo {
	return &sessionRepo{
		store: store,
		now:   time.Now,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (r *sessionRepo) Create(ctx context.Context, session *model.GameSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	now := r.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	session.Version = 1

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return r.store.Create(ctx, sessionKey(session.ID), data)
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*model.GameSession, error) {
	data, err := r.store.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

func (r *sessionRepo) Update(ctx context.Context, id string, fn func(s *model.GameSession) error) (*model.GameSession, bool, error) {
	var next *model.GameSession
	data, err := r.store.Update(ctx, sessionKey(id), func(current []byte) ([]byte, error) {
		s, err := decodeSession(current)
		if err != nil {
			return nil, err
		}
		if err := fn(s); err != nil {
			return nil, err
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("refusing to write invalid session: %w", err)
		}
		s.Version++
		s.UpdatedAt = r.now()
		next = s
		return json.Marshal(s)
	})
	if errors.Is(err, model.ErrNoChange) {
		cur, decErr := decodeSession(data)
		if decErr != nil {
			return nil, false, decErr
		}
		return cur, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}

func (r *sessionRepo) Watch(ctx context.Context, id string) (<-chan *model.GameSession, error) {
	docs, err := r.store.Subscribe(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}

	out := make(chan *model.GameSession, 1)
	go func() {
		defer close(out)
		var version int64
		for data := range docs {
			s, err := decodeSession(data)
			if err != nil || s.Version <= version {
				continue
			}
			version = s.Version
			latest(out, s)
		}
	}()
	return out, nil
}

func (r *sessionRepo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func decodeSession(data []byte) (*model.GameSession, error) {
	var s model.GameSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// latest delivers s, replacing a snapshot the reader has not taken yet.
func latest(ch chan *model.GameSession, s *model.GameSession) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
