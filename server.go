package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"passport-photo-backend/facedetect"
	"passport-photo-backend/images"
	"passport-photo-backend/metrics"
	"passport-photo-backend/models"
	"passport-photo-backend/ratelimit"
	"passport-photo-backend/storage"
	"passport-photo-backend/verification"
)

const ErrorInternal = "error:internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_INVALID_REQUEST = "invalid request"
const ERR_PHOTO_PROCESSING = "failed to process photo"
const ERR_OTP_SEND = "failed to send verification code"
const ERR_OTP_VERIFY = "failed to verify code"
const ERR_INVALID_TOKEN = "invalid verification token"

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	UseTls         bool   `json:"use_tls,omitempty"`
	TlsPrivKeyPath string `json:"tls_priv_key_path,omitempty"`
	TlsCertPath    string `json:"tls_cert_path,omitempty"`
}

type ServerState struct {
	store             storage.Store
	policy            *ratelimit.Policy
	gate              *ratelimit.Gate
	verifier          *verification.Service
	detector          facedetect.Source
	backgroundRemover images.BackgroundRemover
	auditLog          *AuditLog
	metricsHandler    http.Handler
}

type SpaHandler struct {
	staticPath string
	indexPath  string
}

type Server struct {
	server *http.Server
	config ServerConfig
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	} else {
		slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServe()
	}
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

// ServeHTTP inspects the URL path to locate a file within the static dir
// on the SPA handler. If a file is found, it will be served. If not, the
// file located at the index path on the SPA handler will be served. This
// is suitable behavior for serving an SPA (single page application).
// https://github.com/gorilla/mux?tab=readme-ov-file#serving-single-page-applications
func (h SpaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Debug("SPA handler serving request", "path", r.URL.Path)
	// Join internally call path.Clean to prevent directory traversal
	path := filepath.Join(h.staticPath, r.URL.Path)
	// check whether a file exists or is a directory at the given path
	fi, err := os.Stat(path)
	if os.IsNotExist(err) || fi.IsDir() {
		// file does not exist or path is a directory, serve index.html
		slog.Debug("Serving index.html for path", "path", r.URL.Path)
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	if err != nil {
		slog.Error("Error stating file", "path", path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Debug("Serving static file", "path", path)
	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}

func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)
	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(state, w, r)
	})
	router.HandleFunc("/api/process-photo", func(w http.ResponseWriter, r *http.Request) {
		handleProcessPhoto(state, w, r)
	})
	router.HandleFunc("/api/send-otp", func(w http.ResponseWriter, r *http.Request) {
		handleSendOTP(state, w, r)
	})
	router.HandleFunc("/api/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		handleVerifyOTP(state, w, r)
	})
	router.HandleFunc("/api/verification-status", func(w http.ResponseWriter, r *http.Request) {
		handleVerificationStatus(state, w, r)
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/download-permissions", func(w http.ResponseWriter, r *http.Request) {
		handleDownloadPermissions(state, w, r)
	}).Methods(http.MethodGet)
	if state.metricsHandler != nil {
		router.Handle("/metrics", state.metricsHandler).Methods(http.MethodGet)
	}

	slog.Debug("Registered all API routes")

	spa := SpaHandler{staticPath: "../frontend/build", indexPath: "index.html"}
	router.PathPrefix("/").Handler(spa)

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler: router,
		Addr:    addr,
		// Good practice: enforce timeouts for servers you create!
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: config,
	}, nil
}

func handleHealth(state *ServerState, w http.ResponseWriter, r *http.Request) {
	slog.Debug("Health check request received")
	response := models.HealthResponse{
		OK: true,
		Features: map[string]bool{
			"face_detection":     state.detector != nil,
			"background_removal": state.backgroundRemover != nil,
			"email_verification": state.verifier != nil,
		},
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleProcessPhoto(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.ProcessPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, ERR_INVALID_REQUEST, "failed to decode process-photo request", err)
		return
	}

	if !authorizeBearer(state, w, r, request.Email) {
		return
	}

	ctx := r.Context()
	ip := clientIP(r)

	permission := state.gate.CheckDownload(ctx, request.Email, ip)
	if !permission.Allowed {
		metrics.RateLimitDenials.WithLabelValues(permission.Reason).Inc()
		state.auditLog.Log(ctx, ip, request.Email, "process_photo_denied", false)
		writeRateLimited(w, permission.Reason, permission.RetryAfter)
		return
	}

	watermark := permission.Kind == ratelimit.DownloadWatermarked
	response, err := processPhoto(ctx, state, request, watermark)
	if err != nil {
		if errors.Is(err, facedetect.ErrInvalidInput) {
			respondWithErr(w, http.StatusBadRequest, ERR_INVALID_REQUEST, ERR_PHOTO_PROCESSING, err)
		} else {
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_PHOTO_PROCESSING, err)
		}
		state.auditLog.Log(ctx, ip, request.Email, "process_photo", false)
		return
	}

	state.gate.RecordDownload(ctx, request.Email, ip, permission.Kind)
	state.verifier.TouchActivity(ctx, request.Email)
	state.auditLog.Log(ctx, ip, request.Email, "process_photo", true)
	metrics.DownloadsServed.WithLabelValues(permission.Kind).Inc()

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleSendOTP(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, ERR_INVALID_REQUEST, "failed to decode send-otp request", err)
		return
	}

	ctx := r.Context()
	ip := clientIP(r)

	result, err := state.verifier.SendOTP(ctx, request.Email)
	if err != nil {
		state.auditLog.Log(ctx, ip, request.Email, "send_otp", false)

		var limited *verification.RateLimitedError
		switch {
		case errors.Is(err, verification.ErrInvalidEmail):
			respondWithErr(w, http.StatusBadRequest, err.Error(), ERR_OTP_SEND, err)
		case errors.As(err, &limited):
			metrics.RateLimitDenials.WithLabelValues(ratelimit.LimitOTPGeneration).Inc()
			writeRateLimited(w, err.Error(), limited.RetryAfter)
		default:
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_OTP_SEND, err)
		}
		return
	}

	metrics.OTPSent.Inc()
	state.auditLog.Log(ctx, ip, request.Email, "send_otp", true)

	response := models.SendOTPResponse{
		Success:   true,
		Message:   "Verification code sent",
		ExpiresIn: result.ExpiresIn,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleVerifyOTP(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, ERR_INVALID_REQUEST, "failed to decode verify-otp request", err)
		return
	}

	ctx := r.Context()
	ip := clientIP(r)

	result, err := state.verifier.VerifyOTP(ctx, request.Email, request.OTP)
	if err != nil {
		metrics.OTPVerifications.WithLabelValues("failure").Inc()
		state.auditLog.Log(ctx, ip, request.Email, "otp_verification_failed", false)

		var backoff *verification.BackoffError
		if errors.As(err, &backoff) {
			writeRateLimited(w, err.Error(), backoff.RetryAfter)
			return
		}
		switch {
		case errors.Is(err, verification.ErrInvalidEmail),
			errors.Is(err, verification.ErrInvalidOTPFormat),
			errors.Is(err, verification.ErrOTPExpired),
			errors.Is(err, verification.ErrTooManyAttempts),
			errors.Is(err, verification.ErrCodeMismatch):
			respondWithErr(w, http.StatusBadRequest, err.Error(), ERR_OTP_VERIFY, err)
		default:
			respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_OTP_VERIFY, err)
		}
		return
	}

	metrics.OTPVerifications.WithLabelValues("success").Inc()
	state.auditLog.Log(ctx, ip, request.Email, "otp_verified", true)

	response := models.VerifyOTPResponse{
		Success: true,
		Message: "Email verified successfully",
		Token:   result.Token,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleVerificationStatus(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	email := r.URL.Query().Get("email")
	status := state.verifier.VerificationStatus(r.Context(), email)

	if err := writeJSON(w, http.StatusOK, models.StatusResponse{Status: status}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleDownloadPermissions(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	ctx := r.Context()
	email := r.URL.Query().Get("email")
	ip := clientIP(r)

	if !authorizeBearer(state, w, r, email) {
		return
	}

	permission := state.gate.CheckDownload(ctx, email, ip)
	quota := state.gate.Quota(ctx, email, ip)

	response := models.DownloadPermissionsResponse{
		Permission: permission,
		Quota: models.QuotaInfo{
			Remaining: quota.Remaining,
			Limit:     quota.Limit,
			Window:    quota.Window,
			UserType:  quota.UserType,
		},
		ShouldWatermark: state.gate.ShouldWatermark(ctx, email),
		Recommendations: permissionRecommendations(permission),
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func permissionRecommendations(permission ratelimit.PermissionDecision) []string {
	var recommendations []string
	switch permission.Reason {
	case ratelimit.ReasonNotVerified:
		recommendations = append(recommendations, "Verify your email to download watermark-free photos")
	case ratelimit.ReasonDailyQuota:
		recommendations = append(recommendations, "Daily quota reached, resets within 24 hours")
	case ratelimit.ReasonBackoffActive:
		recommendations = append(recommendations, "Too many failed attempts, wait before retrying")
	case ratelimit.ReasonIPRateLimit:
		recommendations = append(recommendations, "Hourly limit reached, verify your email for a higher quota")
	}
	return recommendations
}

// authorizeBearer checks an optional Authorization header. Without one the
// request proceeds anonymously; with one, the token must be valid and issued
// for the email named in the request.
func authorizeBearer(state *ServerState, w http.ResponseWriter, r *http.Request, email string) bool {
	header := r.Header.Get("Authorization")
	if header == "" {
		return true
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if err := state.verifier.CheckToken(token, email); err != nil {
		respondWithErr(w, http.StatusUnauthorized, ERR_INVALID_TOKEN, "bearer token rejected", err)
		return false
	}
	return true
}

func writeRateLimited(w http.ResponseWriter, reason string, retryAfter time.Time) {
	response := models.ErrorResponse{Error: reason}
	if !retryAfter.IsZero() {
		response.RetryAfter = retryAfter.UTC().Format(time.RFC3339)
		seconds := int(time.Until(retryAfter).Seconds())
		if seconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
	}
	slog.Info("request rate limited", "reason", reason, "retry_after", response.RetryAfter)
	if err := writeJSON(w, http.StatusTooManyRequests, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	slog.Error(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	w.WriteHeader(code)
	if _, err := w.Write([]byte(responseBody)); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

// helpers ------------

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func requirePOST(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		slog.Debug("Non-POST request rejected", "method", r.Method, "path", r.URL.Path)
		respondWithErr(w, http.StatusMethodNotAllowed, "method not allowed", "invalid method", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	slog.Debug("Writing JSON response", "status_code", status)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		slog.Error("failed to write body to http response", "error", err)
	} else {
		slog.Debug("JSON response written successfully", "status_code", status, "payload_size", len(payload))
	}
	return nil
}

// clientIP prefers the first X-Forwarded-For hop over the socket address, so
// rate limiting keys on the real client behind a proxy.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
