package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"passport-photo-backend/ratelimit"
	"passport-photo-backend/storage"
)

const auditRecordTTL = 30 * 24 * time.Hour

// AuditEntry is one logged request. The email is stored hashed, like
// everywhere else.
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	EmailHash string    `json:"email_hash,omitempty"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
}

// AuditLog keeps a rolling request trail in the store. Entries are keyed by
// day and timestamp so recent activity can be listed, and expire after 30
// days on the store's TTL.
type AuditLog struct {
	store storage.Store
	now   func() time.Time
}

func NewAuditLog(store storage.Store) *AuditLog {
	return &AuditLog{store: store, now: time.Now}
}

// Log records one request. Logging is best-effort: a store failure is logged
// and swallowed, it never fails the request being audited.
func (l *AuditLog) Log(ctx context.Context, ip, email, action string, success bool) {
	now := l.now().UTC()
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		IP:        ip,
		Action:    action,
		Success:   success,
	}
	if email != "" {
		entry.EmailHash = ratelimit.HashEmail(email)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := fmt.Sprintf("log:%s:%s:%s", now.Format("2006-01-02"), now.Format("15:04:05.000000000"), entry.ID)
	if err := l.store.Put(ctx, key, payload, auditRecordTTL); err != nil {
		slog.Warn("failed to write audit entry", "action", action, "error", err)
	}
}

// Recent returns up to limit entries logged on the given day, newest first.
func (l *AuditLog) Recent(ctx context.Context, day time.Time, limit int) ([]AuditEntry, error) {
	prefix := fmt.Sprintf("log:%s:", day.UTC().Format("2006-01-02"))
	raw, err := l.store.ListPrefix(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]AuditEntry, 0, len(raw))
	for _, item := range raw {
		var entry AuditEntry
		if err := json.Unmarshal(item.Value, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
