package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"partyquiz/internal/metrics"
	"partyquiz/internal/model"
)

const (
	defaultMaxRetries = 16
	defaultResync     = 5 * time.Second
)

type redisStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxRetries int
	resync     time.Duration
}

// RedisOption tunes a Redis-backed store.
type RedisOption func(*redisStore)

// WithTTL sets how long a document lives after its last write.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *redisStore) { s.ttl = ttl }
}

// WithMaxRetries bounds how often a conflicting update is retried.
func WithMaxRetries(n int) RedisOption {
	return func(s *redisStore) { s.maxRetries = n }
}

// WithResync sets how often subscribers re-read the document to cover
// notifications lost while the pub/sub connection was down.
func WithResync(d time.Duration) RedisOption {
	return func(s *redisStore) { s.resync = d }
}

// NewRedisStore creates a DocStore over Redis strings. Writes use
// WATCH/MULTI so concurrent writers never overwrite each other blindly,
// and every write publishes the new document on the key's channel.
func NewRedisStore(client *redis.Client, opts ...RedisOption) DocStore {
	s := &redisStore{
		client:     client,
		prefix:     "quiz:",
		ttl:        24 * time.Hour, // Sessions expire after 24h
		maxRetries: defaultMaxRetries,
		resync:     defaultResync,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *redisStore) key(k string) string {
	return s.prefix + k
}

func (s *redisStore) channel(k string) string {
	return fmt.Sprintf("%s%s:changed", s.prefix, k)
}

func (s *redisStore) Create(ctx context.Context, key string, doc []byte) error {
	ok, err := s.client.SetNX(ctx, s.key(key), doc, s.ttl).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return fmt.Errorf("%w: %s already exists", model.ErrConflict, key)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return data, nil
}

func (s *redisStore) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	k := s.key(key)

	var (
		result []byte
		fnErr  error
	)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("%w: %s", model.ErrNotFound, key)
		}
		if err != nil {
			return err
		}

		next, err := fn(cur)
		if err != nil {
			result, fnErr = cur, err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, s.ttl)
			pipe.Publish(ctx, s.channel(key), next)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		switch {
		case err == nil:
			return result, nil
		case fnErr != nil:
			return result, fnErr
		case errors.Is(err, redis.TxFailedErr):
			metrics.Conflicts.Inc()
			continue
		case errors.Is(err, model.ErrNotFound):
			return nil, err
		default:
			return nil, unavailable(err)
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", model.ErrConflict, key, s.maxRetries)
}

func (s *redisStore) Subscribe(ctx context.Context, key string) (<-chan []byte, error) {
	pubsub := s.client.Subscribe(ctx, s.channel(key))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, unavailable(err)
	}

	out := make(chan []byte, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ticker := time.NewTicker(s.resync)
		defer ticker.Stop()

		var last []byte
		deliver := func(doc []byte) {
			if doc == nil || bytes.Equal(doc, last) {
				return
			}
			last = doc
			offer(out, doc)
		}
		reread := func() {
			doc, err := s.Get(ctx, key)
			if err == nil {
				deliver(doc)
			}
		}

		reread()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				deliver([]byte(msg.Payload))
			case <-ticker.C:
				reread()
			}
		}
	}()
	return out, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
