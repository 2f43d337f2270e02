package cache

import (
	"context"
	"fmt"

	"partyquiz/internal/model"
)

// DocStore is the shared state store: keyed JSON documents with atomic
// read-modify-write and change notification.
type DocStore interface {
	// Create stores doc under key. It fails with model.ErrConflict when the
	// key already exists.
	Create(ctx context.Context, key string, doc []byte) error
	// Get returns the document or model.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Update runs fn against the current document and writes its result
	// atomically. If fn fails the write is abandoned and Update returns the
	// current document together with fn's error.
	Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error)
	// Subscribe streams the document: first its current value, then every
	// later version. Slow readers only ever see the latest value. The channel
	// is closed when ctx is done.
	Subscribe(ctx context.Context, key string) (<-chan []byte, error)
	Ping(ctx context.Context) error
}

// UpdateFunc maps the current document to its replacement.
type UpdateFunc func(current []byte) ([]byte, error)

// offer delivers doc to a single-slot channel, replacing any value the
// reader has not picked up yet. Only one goroutine may send on ch.
func offer(ch chan []byte, doc []byte) {
	for {
		select {
		case ch <- doc:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}
