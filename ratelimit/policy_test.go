package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"passport-photo-backend/storage"
)

func newTestPolicy() (*Policy, *fakeClock) {
	clock := newFakeClock()
	policy := NewPolicy(storage.NewMemoryStore())
	policy.now = clock.Now
	policy.counter.now = clock.Now
	return policy, clock
}

func TestUnverifiedIPTier(t *testing.T) {
	policy, _ := newTestPolicy()
	ctx := context.Background()

	for i := 0; i < UnverifiedIPLimit; i++ {
		decision := policy.CheckCombined(ctx, "203.0.113.9", "", false)
		require.True(t, decision.Allowed, "request %d", i+1)
		require.Equal(t, LimitIPHourly, decision.LimitType)
		require.True(t, policy.RecordRequest(ctx, "203.0.113.9", "", "photo_process", false))
	}

	decision := policy.CheckCombined(ctx, "203.0.113.9", "", false)
	require.False(t, decision.Allowed)
	require.Equal(t, "IP rate limit exceeded", decision.Reason)
	require.Equal(t, LimitIPHourly, decision.LimitType)
	require.False(t, decision.ResetTime.IsZero())
}

func TestVerifiedUsersSkipIPLimit(t *testing.T) {
	policy, _ := newTestPolicy()
	ctx := context.Background()
	emailHash := HashEmail("person@example.com")

	// Exhaust the IP tier first.
	for i := 0; i < UnverifiedIPLimit; i++ {
		require.True(t, policy.RecordRequest(ctx, "203.0.113.9", "", "photo_process", false))
	}
	require.False(t, policy.CheckCombined(ctx, "203.0.113.9", "", false).Allowed)

	// Same IP, but verified: email tier applies and allows.
	decision := policy.CheckCombined(ctx, "203.0.113.9", emailHash, true)
	require.True(t, decision.Allowed)
	require.Equal(t, LimitEmailDaily, decision.LimitType)
	require.Equal(t, VerifiedEmailLimit-1, decision.Remaining)
}

func TestVerifiedEmailDailyQuota(t *testing.T) {
	policy, _ := newTestPolicy()
	ctx := context.Background()
	emailHash := HashEmail("busy@example.com")

	for i := 0; i < VerifiedEmailLimit; i++ {
		require.True(t, policy.RecordRequest(ctx, "198.51.100.4", emailHash, "download_clean", true))
	}

	decision := policy.CheckCombined(ctx, "198.51.100.4", emailHash, true)
	require.False(t, decision.Allowed)
	require.Equal(t, "Daily quota exceeded", decision.Reason)
	require.Equal(t, LimitEmailDaily, decision.LimitType)
}

func TestRemainingQuota(t *testing.T) {
	policy, _ := newTestPolicy()
	ctx := context.Background()

	quota := policy.RemainingQuota(ctx, "192.0.2.5", "", false)
	require.Equal(t, "unverified", quota.UserType)
	require.Equal(t, UnverifiedIPLimit, quota.Limit)
	require.Equal(t, "hourly", quota.Window)

	emailHash := HashEmail("someone@example.com")
	quota = policy.RemainingQuota(ctx, "192.0.2.5", emailHash, true)
	require.Equal(t, "verified", quota.UserType)
	require.Equal(t, VerifiedEmailLimit, quota.Limit)
	require.Equal(t, "daily", quota.Window)
}

func TestBackoffBelowThreshold(t *testing.T) {
	policy, _ := newTestPolicy()
	ctx := context.Background()
	emailHash := HashEmail("clumsy@example.com")

	for i := 0; i < backoffThreshold-1; i++ {
		require.True(t, policy.RecordFailure(ctx, emailHash, "otp_verification"))
	}

	backoff := policy.CheckBackoff(ctx, emailHash, "otp_verification")
	require.False(t, backoff.Required)
	require.Equal(t, backoffThreshold-1, backoff.FailureCount)
}

func TestBackoffAtThreshold(t *testing.T) {
	policy, clock := newTestPolicy()
	ctx := context.Background()
	emailHash := HashEmail("locked@example.com")

	for i := 0; i < backoffThreshold; i++ {
		require.True(t, policy.RecordFailure(ctx, emailHash, "otp_verification"))
	}

	// Five failures in the trailing hour: 2^0 = 1 minute from the last one.
	backoff := policy.CheckBackoff(ctx, emailHash, "otp_verification")
	require.True(t, backoff.Required)
	require.Equal(t, backoffThreshold, backoff.FailureCount)
	require.Equal(t, time.Minute, backoff.Wait)
	require.Equal(t, clock.Now().Add(time.Minute), backoff.RetryAfter)

	clock.Advance(61 * time.Second)
	backoff = policy.CheckBackoff(ctx, emailHash, "otp_verification")
	require.False(t, backoff.Required)
}

func TestBackoffEscalatesAndCaps(t *testing.T) {
	policy, _ := newTestPolicy()
	ctx := context.Background()
	emailHash := HashEmail("hopeless@example.com")

	for i := 0; i < backoffThreshold+2; i++ {
		require.True(t, policy.RecordFailure(ctx, emailHash, "otp_verification"))
	}
	backoff := policy.CheckBackoff(ctx, emailHash, "otp_verification")
	require.True(t, backoff.Required)
	require.Equal(t, 4*time.Minute, backoff.Wait) // 2^2

	for i := 0; i < 10; i++ {
		require.True(t, policy.RecordFailure(ctx, emailHash, "otp_verification"))
	}
	backoff = policy.CheckBackoff(ctx, emailHash, "otp_verification")
	require.True(t, backoff.Required)
	require.Equal(t, 60*time.Minute, backoff.Wait) // capped
}

func TestBackoffFailuresExpireWithWindow(t *testing.T) {
	policy, clock := newTestPolicy()
	ctx := context.Background()
	emailHash := HashEmail("patient@example.com")

	for i := 0; i < backoffThreshold; i++ {
		require.True(t, policy.RecordFailure(ctx, emailHash, "otp_verification"))
	}
	require.True(t, policy.CheckBackoff(ctx, emailHash, "otp_verification").Required)

	clock.Advance(failureWindow + time.Minute)
	backoff := policy.CheckBackoff(ctx, emailHash, "otp_verification")
	require.False(t, backoff.Required)
	require.Equal(t, 0, backoff.FailureCount)
}

func TestHashEmailNormalizes(t *testing.T) {
	require.Equal(t, HashEmail("User@Example.COM"), HashEmail("  user@example.com "))
	require.NotEqual(t, HashEmail("a@example.com"), HashEmail("b@example.com"))
	require.Len(t, HashEmail("a@example.com"), 64)
}
