package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"passport-photo-backend/ratelimit"
	"passport-photo-backend/storage"
)

type capturingSender struct {
	mutex sync.Mutex
	to    []string
	codes []string
	fail  bool
}

func (s *capturingSender) SendOTP(to, code string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.fail {
		return errors.New("smtp unreachable")
	}
	s.to = append(s.to, to)
	s.codes = append(s.codes, code)
	return nil
}

func (s *capturingSender) lastCode() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

type testClock struct {
	mutex sync.Mutex
	at    time.Time
}

func (c *testClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.at = c.at.Add(d)
}

func newTestService() (*Service, *capturingSender, *testClock) {
	store := storage.NewMemoryStore()
	policy := ratelimit.NewPolicy(store)
	sender := &capturingSender{}
	clock := &testClock{at: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}

	svc := NewService(store, policy, sender, NewTokenIssuer([]byte("test-secret"), "passport-photo"))
	svc.now = clock.Now
	svc.newCode = func() (string, error) { return "123456", nil }
	return svc, sender, clock
}

func TestSendAndVerify(t *testing.T) {
	svc, sender, _ := newTestService()
	ctx := context.Background()

	result, err := svc.SendOTP(ctx, "person@example.com")
	require.NoError(t, err)
	require.Equal(t, 600, result.ExpiresIn)
	require.Equal(t, []string{"person@example.com"}, sender.to)

	require.False(t, svc.IsVerified(ctx, "person@example.com"))

	verify, err := svc.VerifyOTP(ctx, "person@example.com", sender.lastCode())
	require.NoError(t, err)
	require.NotEmpty(t, verify.Token)

	require.True(t, svc.IsVerified(ctx, "person@example.com"))

	emailHash, err := svc.tokens.Parse(verify.Token)
	require.NoError(t, err)
	require.Equal(t, ratelimit.HashEmail("person@example.com"), emailHash)

	status := svc.VerificationStatus(ctx, "person@example.com")
	require.True(t, status.ValidEmail)
	require.True(t, status.Verified)
	require.Equal(t, 1, status.VerificationCount)
	require.Equal(t, ratelimit.VerifiedEmailLimit, status.DailyLimit)
}

func TestCheckToken(t *testing.T) {
	svc, sender, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SendOTP(ctx, "person@example.com")
	require.NoError(t, err)
	verify, err := svc.VerifyOTP(ctx, "person@example.com", sender.lastCode())
	require.NoError(t, err)

	require.NoError(t, svc.CheckToken(verify.Token, "person@example.com"))

	err = svc.CheckToken(verify.Token, "other@example.com")
	require.ErrorIs(t, err, ErrInvalidToken)

	err = svc.CheckToken("not-a-token", "person@example.com")
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenIssuer([]byte("another-secret"), "passport-photo")
	forged, err := other.Issue(ratelimit.HashEmail("person@example.com"))
	require.NoError(t, err)
	err = svc.CheckToken(forged, "person@example.com")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSendRejectsInvalidEmail(t *testing.T) {
	svc, sender, _ := newTestService()
	ctx := context.Background()

	for _, email := range []string{"", "not-an-email", "missing@tld", "a@b.c"} {
		_, err := svc.SendOTP(ctx, email)
		require.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
	}
	require.Empty(t, sender.to)
}

func TestValidEmail(t *testing.T) {
	require.True(t, ValidEmail("person@example.com"))
	require.True(t, ValidEmail("  Person+tag@Example.COM  "))
	require.False(t, ValidEmail("person@example"))
	require.False(t, ValidEmail("@example.com"))

	long := make([]byte, 250)
	for i := range long {
		long[i] = 'a'
	}
	require.False(t, ValidEmail(string(long)+"@example.com"))
}

func TestVerifyRejectsBadCodeFormat(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, err := svc.VerifyOTP(ctx, "person@example.com", code)
		require.ErrorIs(t, err, ErrInvalidOTPFormat, "code %q", code)
	}
}

func TestOTPGenerationLimit(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < ratelimit.OTPGenerationLimit; i++ {
		_, err := svc.SendOTP(ctx, "person@example.com")
		require.NoError(t, err, "send %d", i+1)
	}

	_, err := svc.SendOTP(ctx, "person@example.com")
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	require.False(t, limited.RetryAfter.IsZero())
}

func TestOTPExpires(t *testing.T) {
	svc, sender, clock := newTestService()
	ctx := context.Background()

	_, err := svc.SendOTP(ctx, "person@example.com")
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)

	_, err = svc.VerifyOTP(ctx, "person@example.com", sender.lastCode())
	require.ErrorIs(t, err, ErrOTPExpired)
	require.False(t, svc.IsVerified(ctx, "person@example.com"))
}

func TestWrongCodeBurnsAttempts(t *testing.T) {
	svc, sender, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SendOTP(ctx, "person@example.com")
	require.NoError(t, err)

	for i := 0; i < otpMaxAttempts; i++ {
		_, err := svc.VerifyOTP(ctx, "person@example.com", "000000")
		require.ErrorIs(t, err, ErrCodeMismatch)
	}

	// The correct code is spent too once the attempt budget is gone.
	_, err = svc.VerifyOTP(ctx, "person@example.com", sender.lastCode())
	require.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestCodeIsSingleUse(t *testing.T) {
	svc, sender, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SendOTP(ctx, "person@example.com")
	require.NoError(t, err)

	_, err = svc.VerifyOTP(ctx, "person@example.com", sender.lastCode())
	require.NoError(t, err)

	_, err = svc.VerifyOTP(ctx, "person@example.com", sender.lastCode())
	require.ErrorIs(t, err, ErrCodeMismatch)
}

func TestRepeatedFailuresTriggerBackoff(t *testing.T) {
	svc, sender, _ := newTestService()
	ctx := context.Background()

	_, err := svc.SendOTP(ctx, "person@example.com")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.VerifyOTP(ctx, "person@example.com", "000000")
		require.ErrorIs(t, err, ErrCodeMismatch, "attempt %d", i+1)
	}

	_, err = svc.VerifyOTP(ctx, "person@example.com", sender.lastCode())
	var backoff *BackoffError
	require.ErrorAs(t, err, &backoff)
	require.Greater(t, backoff.Wait, time.Duration(0))
}

func TestSendSurfacesDeliveryFailure(t *testing.T) {
	svc, sender, _ := newTestService()
	ctx := context.Background()
	sender.fail = true

	_, err := svc.SendOTP(ctx, "person@example.com")
	require.Error(t, err)
}

func TestStatusForUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	status := svc.VerificationStatus(ctx, "unknown@example.com")
	require.True(t, status.ValidEmail)
	require.False(t, status.Verified)
	require.Nil(t, status.CreatedAt)

	status = svc.VerificationStatus(ctx, "not-an-email")
	require.False(t, status.ValidEmail)
}
