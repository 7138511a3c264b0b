package models

import (
	"passport-photo-backend/facedetect"
	"passport-photo-backend/ratelimit"
	"passport-photo-backend/verification"
)

type ProcessPhotoResponse struct {
	Success     bool                `json:"success"`
	Photo       string              `json:"photo"` // Base64 encoded JPEG
	Watermarked bool                `json:"watermarked"`
	Decision    facedetect.Decision `json:"face_detection"`
}

type SendOTPResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

type VerifyOTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

type StatusResponse struct {
	verification.Status
}

type DownloadPermissionsResponse struct {
	Permission      ratelimit.PermissionDecision `json:"permission"`
	Quota           QuotaInfo                    `json:"quota"`
	ShouldWatermark bool                         `json:"should_add_watermark"`
	Recommendations []string                     `json:"recommendations,omitempty"`
}

type QuotaInfo struct {
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Window    string `json:"window"`
	UserType  string `json:"user_type"`
}

type HealthResponse struct {
	OK       bool            `json:"ok"`
	Features map[string]bool `json:"features"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retry_after,omitempty"`
}
