package verification

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"passport-photo-backend/ratelimit"
	"passport-photo-backend/storage"
)

const (
	otpLength       = 6
	otpValidity     = 10 * time.Minute
	otpHistoryDepth = 5
	otpMaxAttempts  = 3

	userRecordTTL  = 90 * 24 * time.Hour
	maxEmailLength = 254

	// OTPFailureType is the failure bucket for bad verification attempts,
	// feeding the exponential backoff.
	OTPFailureType = "otp"

	// otpTimeLayout is fixed-width UTC so that keys sort chronologically.
	otpTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var (
	ErrInvalidEmail     = errors.New("please enter a valid email address")
	ErrInvalidOTPFormat = errors.New("verification code must be 6 digits")
	ErrOTPExpired       = errors.New("verification code has expired")
	ErrTooManyAttempts  = errors.New("too many attempts for this code")
	ErrCodeMismatch     = errors.New("invalid verification code")
	ErrInvalidToken     = errors.New("invalid verification token")
)

// RateLimitedError reports that OTP generation for this address is exhausted
// for the current window.
type RateLimitedError struct {
	RetryAfter time.Time
}

func (e *RateLimitedError) Error() string {
	return "too many verification code requests, please try again later"
}

// BackoffError reports that repeated failed attempts have triggered a
// mandatory wait.
type BackoffError struct {
	RetryAfter time.Time
	Wait       time.Duration
}

func (e *BackoffError) Error() string {
	return fmt.Sprintf("too many failed attempts, wait %s before retrying", e.Wait.Round(time.Second))
}

// UserRecord is the stored per-email verification state, keyed by the email
// hash so raw addresses never land in the store.
type UserRecord struct {
	EmailHash         string    `json:"email_hash"`
	Verified          bool      `json:"verified"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivity      time.Time `json:"last_activity"`
	VerificationCount int       `json:"verification_count"`
}

// otpRecord is one issued code. Several may be live per email; verification
// walks the newest few.
type otpRecord struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
	Verified  bool      `json:"verified"`
}

// SendResult is returned after a code was issued and delivered.
type SendResult struct {
	ExpiresIn int `json:"expires_in"` // seconds
}

// VerifyResult is returned after a successful verification.
type VerifyResult struct {
	Token string `json:"token,omitempty"`
}

// Status is the detailed verification report for one address.
type Status struct {
	ValidEmail        bool       `json:"valid_email"`
	Verified          bool       `json:"verified"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
	VerificationCount int        `json:"verification_count"`
	DailyRequests     int        `json:"daily_requests"`
	DailyLimit        int        `json:"daily_limit"`
}

// Service runs the OTP email verification flow: issue codes, verify them,
// and answer verified-or-not lookups for the download gate.
type Service struct {
	store  storage.Store
	policy *ratelimit.Policy
	sender Sender
	tokens *TokenIssuer

	now     func() time.Time
	newCode func() (string, error)
}

func NewService(store storage.Store, policy *ratelimit.Policy, sender Sender, tokens *TokenIssuer) *Service {
	return &Service{
		store:   store,
		policy:  policy,
		sender:  sender,
		tokens:  tokens,
		now:     time.Now,
		newCode: generateCode,
	}
}

// ValidEmail reports whether the address looks deliverable: the usual
// local@domain.tld shape, at most 254 characters.
func ValidEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	return emailPattern.MatchString(email)
}

func userKey(emailHash string) string {
	return "user:" + emailHash
}

func otpPrefix(emailHash string) string {
	return "otp:" + emailHash + ":"
}

// SendOTP issues a fresh code, stores it and emails it. Storing and delivery
// are hard dependencies here: without a stored code there is nothing to
// verify against, so store errors are surfaced instead of degrading.
func (s *Service) SendOTP(ctx context.Context, email string) (*SendResult, error) {
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	emailHash := ratelimit.HashEmail(email)

	res := s.policy.CheckOTPGeneration(ctx, emailHash)
	if !res.Allowed {
		return nil, &RateLimitedError{RetryAfter: res.ResetTime}
	}

	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := s.now().UTC()
	record := otpRecord{
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(otpValidity),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode verification code: %w", err)
	}
	key := otpPrefix(emailHash) + now.Format(otpTimeLayout)
	if err := s.store.Put(ctx, key, payload, otpValidity); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := s.sender.SendOTP(email, code); err != nil {
		return nil, err
	}

	s.policy.RecordOTPGeneration(ctx, emailHash)
	s.ensureUser(ctx, emailHash)

	return &SendResult{ExpiresIn: int(otpValidity.Seconds())}, nil
}

// VerifyOTP checks code against the most recent issued codes for email. On
// success the user is marked verified and a signed token is returned. A
// mismatch charges an attempt against the newest live code and counts toward
// the failure backoff.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*VerifyResult, error) {
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !validOTPFormat(code) {
		return nil, ErrInvalidOTPFormat
	}
	emailHash := ratelimit.HashEmail(email)

	if backoff := s.policy.CheckBackoff(ctx, emailHash, OTPFailureType); backoff.Required {
		return nil, &BackoffError{RetryAfter: backoff.RetryAfter, Wait: backoff.Wait}
	}

	entries, err := s.store.ListPrefix(ctx, otpPrefix(emailHash), otpHistoryDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load verification codes: %w", err)
	}

	now := s.now()
	for _, entry := range entries {
		var record otpRecord
		if err := json.Unmarshal(entry.Value, &record); err != nil {
			slog.Warn("skipping unreadable otp record", "error", err)
			continue
		}
		if record.Code != code {
			continue
		}
		if !now.Before(record.ExpiresAt) {
			return nil, ErrOTPExpired
		}
		if record.Attempts >= otpMaxAttempts {
			return nil, ErrTooManyAttempts
		}
		if record.Verified {
			// Already used once; a code is single-use.
			continue
		}

		record.Verified = true
		record.Attempts++
		s.writeBackOTP(ctx, entry.Key, record, now)
		s.markVerified(ctx, emailHash)

		result := &VerifyResult{}
		if s.tokens != nil {
			token, err := s.tokens.Issue(emailHash)
			if err != nil {
				slog.Warn("failed to issue verification token", "error", err)
			} else {
				result.Token = token
			}
		}
		return result, nil
	}

	s.chargeFailedAttempt(ctx, entries, now)
	s.policy.RecordFailure(ctx, emailHash, OTPFailureType)
	return nil, ErrCodeMismatch
}

// IsVerified reports whether email has completed verification. Satisfies the
// download gate's lookup interface.
func (s *Service) IsVerified(ctx context.Context, email string) bool {
	if !ValidEmail(email) {
		return false
	}
	user, err := s.getUser(ctx, ratelimit.HashEmail(email))
	if err != nil {
		return false
	}
	return user.Verified
}

// CheckToken validates a bearer token a client presents and confirms it was
// issued for email. The token only authenticates the claim to the address;
// verification state itself is still read from the store.
func (s *Service) CheckToken(token, email string) error {
	if s.tokens == nil {
		return ErrInvalidToken
	}
	emailHash, err := s.tokens.Parse(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if emailHash != ratelimit.HashEmail(email) {
		return fmt.Errorf("%w: issued for a different address", ErrInvalidToken)
	}
	return nil
}

// VerificationStatus reports the full verification state for email, plus its
// current standing against the daily quota.
func (s *Service) VerificationStatus(ctx context.Context, email string) Status {
	if !ValidEmail(email) {
		return Status{}
	}
	emailHash := ratelimit.HashEmail(email)

	status := Status{
		ValidEmail: true,
		DailyLimit: ratelimit.UnverifiedIPLimit,
	}
	user, err := s.getUser(ctx, emailHash)
	if err != nil {
		return status
	}

	status.Verified = user.Verified
	status.CreatedAt = &user.CreatedAt
	status.LastActivity = &user.LastActivity
	status.VerificationCount = user.VerificationCount
	if user.Verified {
		status.DailyLimit = ratelimit.VerifiedEmailLimit
		status.DailyRequests = s.policy.Counter().Count(ctx, emailHash, ratelimit.LimitEmailDaily, ratelimit.VerifiedEmailWindow)
	}
	return status
}

// TouchActivity refreshes the user's activity timestamp and with it the
// record's retention window.
func (s *Service) TouchActivity(ctx context.Context, email string) {
	if !ValidEmail(email) {
		return
	}
	emailHash := ratelimit.HashEmail(email)
	user, err := s.getUser(ctx, emailHash)
	if err != nil {
		return
	}
	user.LastActivity = s.now().UTC()
	s.putUser(ctx, user)
}

func validOTPFormat(code string) bool {
	if len(code) != otpLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func generateCode() (string, error) {
	buf := make([]byte, otpLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}

func (s *Service) getUser(ctx context.Context, emailHash string) (UserRecord, error) {
	raw, err := s.store.Get(ctx, userKey(emailHash))
	if err != nil {
		return UserRecord{}, err
	}
	var user UserRecord
	if err := json.Unmarshal(raw, &user); err != nil {
		return UserRecord{}, err
	}
	return user, nil
}

func (s *Service) putUser(ctx context.Context, user UserRecord) {
	payload, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.store.Put(ctx, userKey(user.EmailHash), payload, userRecordTTL); err != nil {
		slog.Warn("failed to write user record", "error", err)
	}
}

func (s *Service) ensureUser(ctx context.Context, emailHash string) {
	now := s.now().UTC()
	user := UserRecord{
		EmailHash:    emailHash,
		CreatedAt:    now,
		LastActivity: now,
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return
	}
	if _, err := s.store.PutIfAbsent(ctx, userKey(emailHash), payload, userRecordTTL); err != nil {
		slog.Warn("failed to create user record", "error", err)
	}
}

func (s *Service) markVerified(ctx context.Context, emailHash string) {
	now := s.now().UTC()
	user, err := s.getUser(ctx, emailHash)
	if err != nil {
		user = UserRecord{EmailHash: emailHash, CreatedAt: now}
	}
	user.Verified = true
	user.LastActivity = now
	user.VerificationCount++
	s.putUser(ctx, user)
}

func (s *Service) writeBackOTP(ctx context.Context, key string, record otpRecord, now time.Time) {
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.store.Put(ctx, key, payload, ttl); err != nil {
		slog.Warn("failed to update otp record", "error", err)
	}
}

// chargeFailedAttempt burns one attempt on the newest code that is still
// usable, so guessing against a live code runs out after a few tries.
func (s *Service) chargeFailedAttempt(ctx context.Context, entries []storage.Entry, now time.Time) {
	for _, entry := range entries {
		var record otpRecord
		if err := json.Unmarshal(entry.Value, &record); err != nil {
			continue
		}
		if record.Verified || !now.Before(record.ExpiresAt) || record.Attempts >= otpMaxAttempts {
			continue
		}
		record.Attempts++
		s.writeBackOTP(ctx, entry.Key, record, now)
		return
	}
}
