package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"passport-photo-backend/facedetect"
	"passport-photo-backend/images"
	"passport-photo-backend/ratelimit"
	"passport-photo-backend/storage"
	"passport-photo-backend/verification"
)

var testConfig = ServerConfig{
	Host:           "localhost",
	Port:           8081,
	UseTls:         false,
	TlsCertPath:    "",
	TlsPrivKeyPath: "",
}

const testBaseURL = "http://localhost:8081"

// stubDetector returns a fixed candidate list.
type stubDetector struct {
	candidates []facedetect.Candidate
	err        error
}

func (d stubDetector) DetectFaces(_ context.Context, _ image.Image) ([]facedetect.Candidate, error) {
	return d.candidates, d.err
}

// testSender captures outgoing verification codes instead of emailing them.
type testSender struct {
	mutex sync.Mutex
	codes map[string]string // email -> last code
}

func newTestSender() *testSender {
	return &testSender{codes: make(map[string]string)}
}

func (s *testSender) SendOTP(to, code string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.codes[to] = code
	return nil
}

func (s *testSender) codeFor(email string) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.codes[email]
}

func newTestState(store storage.Store, detector facedetect.Source, sender verification.Sender) *ServerState {
	policy := ratelimit.NewPolicy(store)
	tokens := verification.NewTokenIssuer([]byte("integration-test-secret"), "passport-photo-backend")
	verifier := verification.NewService(store, policy, sender, tokens)

	return &ServerState{
		store:             store,
		policy:            policy,
		gate:              ratelimit.NewGate(policy, verifier),
		verifier:          verifier,
		detector:          detector,
		backgroundRemover: images.NoopBackgroundRemover{},
		auditLog:          NewAuditLog(store),
	}
}

func startTestServer(t *testing.T, state *ServerState) *Server {
	t.Helper()

	srv, err := NewServer(state, testConfig)
	require.NoError(t, err)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("server error: %v", err)
		}
	}()

	waitUntilHealthy(t, testBaseURL+"/api/health")
	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Logf("error shutting down server: %v", err)
		}
	})
	return srv
}

func waitUntilHealthy(t *testing.T, url string) {
	t.Helper()
	const maxAttempts = 50
	for i := 0; i < maxAttempts; i++ {
		if resp, err := http.Get(url); err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not start in time")
}

func postJSON[T any](t *testing.T, url string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	}
	resp, err := http.Post(url, "application/json", body)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded *T
	var v T
	_ = json.Unmarshal(respBody, &v)
	decoded = &v

	return resp, respBody, decoded
}

func postJSONAuth[T any](t *testing.T, url, token string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)
	return resp, respBody, &v
}

func getJSON[T any](t *testing.T, url string) (*http.Response, []byte, *T) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)
	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

// makeTestPhoto builds a base64 JPEG gradient of the given size.
func makeTestPhoto(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: 96,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// testImage builds a plain in-memory image for client tests.
func testImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	return img
}

// goodFace is a centered candidate that passes the lenient thresholds on an
// 800x800 test photo.
var goodFace = facedetect.Candidate{X: 300, Y: 200, Width: 200, Height: 200, EyeCount: 2}
