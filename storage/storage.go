package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("storage: key not found")

// Entry is a stored key/value pair returned from a prefix listing.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the persistence surface the limiter and verification code run on.
// Should be safe to use concurrently.
//
// Expiry is the store's own job: an implementation must drop records on its
// native TTL mechanism, there is no in-process sweeper anywhere above.
type Store interface {
	// Get returns the value for key, or ErrNotFound when the key is absent
	// or already expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the value, replacing any previous one, and (re)sets its TTL.
	// A zero ttl stores the value without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent writes the value only when the key does not exist yet and
	// reports whether the write happened.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Increment atomically adds delta to the numeric counter at key, creating
	// it at delta when absent, and refreshes the TTL. The increment must
	// happen at the store level, not as read-modify-write in here.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// ListPrefix returns up to limit live entries whose key starts with
	// prefix, ordered by key descending. Keys embed a sortable timestamp, so
	// descending order means newest first.
	ListPrefix(ctx context.Context, prefix string, limit int) ([]Entry, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
