package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"passport-photo-backend/storage"
)

// Limit types as stored in counter keys.
const (
	LimitIPHourly      = "ip_hourly"
	LimitEmailDaily    = "email_daily"
	LimitOTPGeneration = "otp_generation"
)

// Tier configuration.
const (
	UnverifiedIPLimit  = 3
	UnverifiedIPWindow = time.Hour

	VerifiedEmailLimit  = 20
	VerifiedEmailWindow = 24 * time.Hour

	OTPGenerationLimit  = 3
	OTPGenerationWindow = time.Hour

	backoffThreshold   = 5
	backoffCapMinutes  = 60
	failureWindow      = time.Hour
	failureRecordTTL   = 2 * time.Hour // failure window plus the maximum backoff
)

// HashEmail derives the stored identifier for an email address: a one-way
// hash of the lowercased address, so raw emails never land in the store.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Decision is the outcome of a combined tier check.
type Decision struct {
	Allowed   bool
	Reason    string
	LimitType string
	Remaining int
	ResetTime time.Time
}

// Quota describes the caller's remaining allowance in its tier.
type Quota struct {
	Remaining int
	Limit     int
	Window    string // "hourly" or "daily"
	UserType  string // "verified" or "unverified"
	ResetTime time.Time
}

// Backoff describes an escalating mandatory wait after repeated failures,
// independent of the steady-state window limits.
type Backoff struct {
	Required     bool
	FailureCount int
	RetryAfter   time.Time
	Wait         time.Duration
}

// Policy applies the two limiter tiers: unverified callers are keyed by IP
// with a small hourly allowance, verified callers by hashed email with a
// daily one, and verified callers are never subject to the IP limit.
type Policy struct {
	counter *Counter
	store   storage.Store
	now     func() time.Time
}

func NewPolicy(store storage.Store) *Policy {
	return &Policy{counter: NewCounter(store), store: store, now: time.Now}
}

// Counter exposes the underlying windowed counter for callers that need a
// limit outside the two download tiers, such as OTP generation.
func (p *Policy) Counter() *Counter {
	return p.counter
}

// CheckIP checks the hourly IP tier. Verified callers pass unconditionally.
func (p *Policy) CheckIP(ctx context.Context, ip string, verified bool) Result {
	if verified {
		return Result{Allowed: true, Remaining: VerifiedEmailLimit}
	}
	return p.counter.CheckLimit(ctx, ip, LimitIPHourly, UnverifiedIPLimit, UnverifiedIPWindow)
}

// CheckEmail checks the daily tier for a hashed email identifier.
func (p *Policy) CheckEmail(ctx context.Context, emailHash string) Result {
	return p.counter.CheckLimit(ctx, emailHash, LimitEmailDaily, VerifiedEmailLimit, VerifiedEmailWindow)
}

// CheckOTPGeneration limits how often a single address may request codes.
func (p *Policy) CheckOTPGeneration(ctx context.Context, emailHash string) Result {
	return p.counter.CheckLimit(ctx, emailHash, LimitOTPGeneration, OTPGenerationLimit, OTPGenerationWindow)
}

// RecordOTPGeneration registers one issued code against the hourly allowance.
func (p *Policy) RecordOTPGeneration(ctx context.Context, emailHash string) bool {
	return p.counter.Record(ctx, emailHash, LimitOTPGeneration, "send_otp", OTPGenerationWindow)
}

// CheckCombined dispatches to the tier matching the caller's verification
// status and returns a single decision.
func (p *Policy) CheckCombined(ctx context.Context, ip, emailHash string, verified bool) Decision {
	if verified && emailHash != "" {
		res := p.CheckEmail(ctx, emailHash)
		if !res.Allowed {
			return Decision{
				Reason:    "Daily quota exceeded",
				LimitType: LimitEmailDaily,
				ResetTime: res.ResetTime,
			}
		}
		return Decision{Allowed: true, LimitType: LimitEmailDaily, Remaining: res.Remaining}
	}

	res := p.CheckIP(ctx, ip, false)
	if !res.Allowed {
		return Decision{
			Reason:    "IP rate limit exceeded",
			LimitType: LimitIPHourly,
			ResetTime: res.ResetTime,
		}
	}
	return Decision{Allowed: true, LimitType: LimitIPHourly, Remaining: res.Remaining}
}

// RecordRequest registers one action in the caller's tier.
func (p *Policy) RecordRequest(ctx context.Context, ip, emailHash, action string, verified bool) bool {
	if verified && emailHash != "" {
		return p.counter.Record(ctx, emailHash, LimitEmailDaily, action, VerifiedEmailWindow)
	}
	return p.counter.Record(ctx, ip, LimitIPHourly, action, UnverifiedIPWindow)
}

// RemainingQuota reports the caller's allowance in its tier.
func (p *Policy) RemainingQuota(ctx context.Context, ip, emailHash string, verified bool) Quota {
	if verified && emailHash != "" {
		res := p.CheckEmail(ctx, emailHash)
		return Quota{
			Remaining: res.Remaining,
			Limit:     VerifiedEmailLimit,
			Window:    "daily",
			UserType:  "verified",
			ResetTime: res.ResetTime,
		}
	}
	res := p.CheckIP(ctx, ip, false)
	return Quota{
		Remaining: res.Remaining,
		Limit:     UnverifiedIPLimit,
		Window:    "hourly",
		UserType:  "unverified",
		ResetTime: res.ResetTime,
	}
}

func failureLimitType(failureType string) string {
	return "failure_" + failureType
}

func lastFailureKey(identifier, failureType string) string {
	return fmt.Sprintf("backoff:%s:%s", failureType, identifier)
}

// RecordFailure counts one failure in the trailing hour and pins down the
// moment it happened. The explicit timestamp is what makes the backoff wait
// computable; it cannot be recovered from the counter alone.
func (p *Policy) RecordFailure(ctx context.Context, identifier, failureType string) bool {
	ok := p.counter.Record(ctx, identifier, failureLimitType(failureType), "failure", failureWindow)

	stamp := p.now().UTC().Format(time.RFC3339Nano)
	if err := p.store.Put(ctx, lastFailureKey(identifier, failureType), []byte(stamp), failureRecordTTL); err != nil {
		slog.Warn("failed to record failure timestamp", "failure_type", failureType, "error", err)
	}
	return ok
}

// CheckBackoff reports whether identifier must wait before retrying after
// repeated failures. Below the threshold there is no backoff; from the fifth
// failure on, the wait doubles per failure and is capped at an hour.
func (p *Policy) CheckBackoff(ctx context.Context, identifier, failureType string) Backoff {
	failures := p.counter.Count(ctx, identifier, failureLimitType(failureType), failureWindow)
	if failures < backoffThreshold {
		return Backoff{FailureCount: failures}
	}

	minutes := 1 << (failures - backoffThreshold)
	if minutes > backoffCapMinutes {
		minutes = backoffCapMinutes
	}
	wait := time.Duration(minutes) * time.Minute

	lastFailure, err := p.lastFailureAt(ctx, identifier, failureType)
	if err != nil {
		// Without a timestamp the wait cannot be anchored; do not lock the
		// caller out on a bookkeeping gap.
		return Backoff{FailureCount: failures}
	}

	retryAfter := lastFailure.Add(wait)
	now := p.now()
	if now.Before(retryAfter) {
		return Backoff{
			Required:     true,
			FailureCount: failures,
			RetryAfter:   retryAfter,
			Wait:         retryAfter.Sub(now),
		}
	}
	return Backoff{FailureCount: failures}
}

func (p *Policy) lastFailureAt(ctx context.Context, identifier, failureType string) (time.Time, error) {
	raw, err := p.store.Get(ctx, lastFailureKey(identifier, failureType))
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, string(raw))
}
