package models

type ProcessPhotoRequest struct {
	Image string `json:"image"` // Base64 encoded image
	Email string `json:"email,omitempty"`

	RemoveBackground bool `json:"remove_background,omitempty"`
}

type SendOTPRequest struct {
	Email string `json:"email"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type StatusRequest struct {
	Email string `json:"email"`
}

type DownloadPermissionsRequest struct {
	Email string `json:"email,omitempty"`
}
