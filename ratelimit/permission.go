package ratelimit

import (
	"context"
	"time"
)

// Download kinds.
const (
	DownloadWatermarked = "watermarked"
	DownloadClean       = "clean"
)

// Reason codes for denied or degraded permissions, so the HTTP layer can
// render a specific response (429 with retry-after vs. a verification nudge).
const (
	ReasonIPRateLimit   = "ip_rate_limit_exceeded"
	ReasonDailyQuota    = "daily_quota_exceeded"
	ReasonBackoffActive = "backoff_active"
	ReasonNotVerified   = "email_not_verified"
)

// DownloadFailureType is the failure bucket backing the download backoff.
const DownloadFailureType = "download"

// VerificationChecker is the lookup the gate needs from the verification
// subsystem; defined here so the dependency points outward only.
type VerificationChecker interface {
	IsVerified(ctx context.Context, email string) bool
}

// PermissionDecision is the gate's single allow/deny answer.
type PermissionDecision struct {
	Allowed              bool      `json:"allowed"`
	Kind                 string    `json:"download_type"`
	Reason               string    `json:"reason,omitempty"`
	RemainingQuota       int       `json:"remaining_quota"`
	RetryAfter           time.Time `json:"retry_after,omitempty"`
	VerificationRequired bool      `json:"verification_required,omitempty"`
}

// Gate composes the limiter tiers and the verification lookup into one
// download decision.
type Gate struct {
	policy   *Policy
	verifier VerificationChecker
}

func NewGate(policy *Policy, verifier VerificationChecker) *Gate {
	return &Gate{policy: policy, verifier: verifier}
}

// CheckDownload decides what the caller may download. A clean download needs
// a verified email, room in the daily quota and no active backoff; every
// other combination degrades to a watermarked download under the IP tier,
// and exhausting that too denies the request outright.
func (g *Gate) CheckDownload(ctx context.Context, email, ip string) PermissionDecision {
	verified := email != "" && g.verifier.IsVerified(ctx, email)

	degradeReason := ReasonNotVerified
	if verified {
		emailHash := HashEmail(email)
		emailRes := g.policy.CheckEmail(ctx, emailHash)
		backoff := g.policy.CheckBackoff(ctx, emailHash, DownloadFailureType)

		switch {
		case emailRes.Allowed && !backoff.Required:
			return PermissionDecision{
				Allowed:        true,
				Kind:           DownloadClean,
				RemainingQuota: emailRes.Remaining,
			}
		case backoff.Required:
			degradeReason = ReasonBackoffActive
		default:
			degradeReason = ReasonDailyQuota
		}
	}

	ipRes := g.policy.CheckIP(ctx, ip, false)
	if !ipRes.Allowed {
		return PermissionDecision{
			Allowed:              false,
			Kind:                 DownloadWatermarked,
			Reason:               ReasonIPRateLimit,
			RetryAfter:           ipRes.ResetTime,
			VerificationRequired: !verified,
		}
	}

	return PermissionDecision{
		Allowed:              true,
		Kind:                 DownloadWatermarked,
		Reason:               degradeReason,
		RemainingQuota:       ipRes.Remaining,
		VerificationRequired: !verified,
	}
}

// RecordDownload charges one download against the caller's tier.
func (g *Gate) RecordDownload(ctx context.Context, email, ip, kind string) bool {
	verified := email != "" && g.verifier.IsVerified(ctx, email)
	var emailHash string
	if verified {
		emailHash = HashEmail(email)
	}
	return g.policy.RecordRequest(ctx, ip, emailHash, "download_"+kind, verified)
}

// ShouldWatermark reports whether the processed image must carry the
// watermark overlay.
func (g *Gate) ShouldWatermark(ctx context.Context, email string) bool {
	if email == "" {
		return true
	}
	return !g.verifier.IsVerified(ctx, email)
}

// Quota reports the caller's current allowance.
func (g *Gate) Quota(ctx context.Context, email, ip string) Quota {
	verified := email != "" && g.verifier.IsVerified(ctx, email)
	var emailHash string
	if verified {
		emailHash = HashEmail(email)
	}
	return g.policy.RemainingQuota(ctx, ip, emailHash, verified)
}
