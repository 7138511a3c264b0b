package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"passport-photo-backend/storage"
)

// Result of a read-only limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time // set only when denied
}

// windowRecord tracks when the current window opened. The count itself lives
// in a separate key so it can be bumped with a store-level atomic increment.
type windowRecord struct {
	WindowStart time.Time `json:"window_start"`
	LastAction  string    `json:"last_action,omitempty"`
}

// Counter is a fixed-window request counter over a persistent store. A window
// opens at the first recorded hit and closes windowDuration later; expiry of
// stale records is left to the store's TTL.
//
// CheckLimit and Record are intentionally separate calls, so two concurrent
// requests can both pass a check with one slot left and overshoot the limit
// by one. The limiter is a soft abuse deterrent, not a billing guarantee, and
// that race is accepted.
type Counter struct {
	store storage.Store
	now   func() time.Time
}

func NewCounter(store storage.Store) *Counter {
	return &Counter{store: store, now: time.Now}
}

func countKey(identifier, limitType string) string {
	return fmt.Sprintf("rate:%s:%s:count", limitType, identifier)
}

func windowKey(identifier, limitType string) string {
	return fmt.Sprintf("rate:%s:%s:window", limitType, identifier)
}

// CheckLimit reports whether identifier may perform another action under the
// given limit. It never writes. When the store is unreachable the check fails
// open: availability of the protected resource wins over strict enforcement.
func (c *Counter) CheckLimit(ctx context.Context, identifier, limitType string, limit int, window time.Duration) Result {
	record, err := c.readWindow(ctx, identifier, limitType)
	if err != nil {
		if err != storage.ErrNotFound {
			slog.Warn("rate limit check failed open", "limit_type", limitType, "error", err)
			return Result{Allowed: true, Remaining: limit}
		}
		return Result{Allowed: true, Remaining: limit - 1}
	}

	now := c.now()
	if now.Sub(record.WindowStart) >= window {
		// Window elapsed; the next Record opens a fresh one.
		return Result{Allowed: true, Remaining: limit - 1}
	}

	count := c.Count(ctx, identifier, limitType, window)
	if count >= limit {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetTime: record.WindowStart.Add(window),
		}
	}
	return Result{Allowed: true, Remaining: limit - count - 1}
}

// Record registers one hit for identifier, opening a new window when none is
// live. The increment happens at the store level; only the window bookkeeping
// is read-modify-write, which at worst restarts a window early. Returns true
// on success and also true when the store is down (fail open).
func (c *Counter) Record(ctx context.Context, identifier, limitType, action string, window time.Duration) bool {
	now := c.now()
	ttl := window + time.Hour // keep a little past the window for inspection

	record, err := c.readWindow(ctx, identifier, limitType)
	fresh := err != nil || now.Sub(record.WindowStart) >= window
	if err != nil && err != storage.ErrNotFound {
		slog.Warn("rate limit record skipped, store unavailable", "limit_type", limitType, "error", err)
		return true
	}

	if fresh {
		if err := c.store.Delete(ctx, countKey(identifier, limitType)); err != nil {
			slog.Warn("rate limit counter reset failed", "limit_type", limitType, "error", err)
			return true
		}
		record = windowRecord{WindowStart: now}
	}
	record.LastAction = action

	payload, err := json.Marshal(record)
	if err != nil {
		return false
	}
	if err := c.store.Put(ctx, windowKey(identifier, limitType), payload, ttl); err != nil {
		slog.Warn("rate limit window write failed", "limit_type", limitType, "error", err)
		return true
	}
	if _, err := c.store.Increment(ctx, countKey(identifier, limitType), 1, ttl); err != nil {
		slog.Warn("rate limit increment failed", "limit_type", limitType, "error", err)
		return true
	}
	return true
}

// Count returns the number of hits in the live window, zero when the window
// has elapsed or nothing was recorded.
func (c *Counter) Count(ctx context.Context, identifier, limitType string, window time.Duration) int {
	record, err := c.readWindow(ctx, identifier, limitType)
	if err != nil || c.now().Sub(record.WindowStart) >= window {
		return 0
	}

	raw, err := c.store.Get(ctx, countKey(identifier, limitType))
	if err != nil {
		return 0
	}
	var count int
	if _, err := fmt.Sscanf(string(raw), "%d", &count); err != nil {
		return 0
	}
	return count
}

func (c *Counter) readWindow(ctx context.Context, identifier, limitType string) (windowRecord, error) {
	raw, err := c.store.Get(ctx, windowKey(identifier, limitType))
	if err != nil {
		return windowRecord{}, err
	}
	var record windowRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return windowRecord{}, err
	}
	return record, nil
}
