package cache

import (
	"context"
	"fmt"
	"sync"

	"partyquiz/internal/model"
)

type memDoc struct {
	data []byte
	subs map[chan []byte]struct{}
}

type memoryStore struct {
	mu   sync.Mutex
	docs map[string]*memDoc
}

// NewMemoryStore creates a process-local DocStore. It is used for tests and
// single-instance development runs without Redis.
func NewMemoryStore() DocStore {
	return &memoryStore{docs: make(map[string]*memDoc)}
}

func (s *memoryStore) Create(_ context.Context, key string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.docs[key]
	if d != nil && d.data != nil {
		return fmt.Errorf("%w: %s already exists", model.ErrConflict, key)
	}
	if d == nil {
		d = &memDoc{subs: make(map[chan []byte]struct{})}
		s.docs[key] = d
	}
	d.data = append([]byte(nil), doc...)
	d.notify()
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.docs[key]
	if d == nil || d.data == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	return append([]byte(nil), d.data...), nil
}

func (s *memoryStore) Update(_ context.Context, key string, fn UpdateFunc) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.docs[key]
	if d == nil || d.data == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	cur := append([]byte(nil), d.data...)
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	d.data = append([]byte(nil), next...)
	d.notify()
	return next, nil
}

func (s *memoryStore) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	ch := make(chan []byte, 1)

	s.mu.Lock()
	d := s.docs[key]
	if d == nil {
		d = &memDoc{subs: make(map[chan []byte]struct{})}
		s.docs[key] = d
	}
	d.subs[ch] = struct{}{}
	if d.data != nil {
		offer(ch, d.data)
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(d.subs, ch)
		close(ch)
		if d.data == nil && len(d.subs) == 0 && s.docs[key] == d {
			delete(s.docs, key)
		}
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

// notify must be called with the store lock held.
func (d *memDoc) notify() {
	for ch := range d.subs {
		offer(ch, d.data)
	}
}
