package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"passport-photo-backend/facedetect"
	"passport-photo-backend/images"
)

// HTTPDetector calls an external face detection service and adapts its
// answer to the candidate list the decision pipeline consumes. Any service
// producing boxes with eye counts fits behind this client.
type HTTPDetector struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPDetector(baseURL string) *HTTPDetector {
	return &HTTPDetector{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DetectFaces sends the image to the detection service and returns the raw
// candidates.
func (c *HTTPDetector) DetectFaces(ctx context.Context, img image.Image) ([]facedetect.Candidate, error) {
	encoded, err := images.EncodeJPEGBase64(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image for detection: %w", err)
	}

	requestBody := map[string]interface{}{
		"image": encoded,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detect request: %w", err)
	}

	url := fmt.Sprintf("%s/api/detect", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face detection failed with status %d: %s", resp.StatusCode, string(body))
	}

	var detectResponse struct {
		Faces []facedetect.Candidate `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detectResponse); err != nil {
		return nil, fmt.Errorf("failed to decode detect response: %w", err)
	}

	slog.Info("Face detection completed", "faces", len(detectResponse.Faces))
	return detectResponse.Faces, nil
}

// HealthCheck verifies the detection service is available
func (c *HTTPDetector) HealthCheck() error {
	url := fmt.Sprintf("%s/api/healthz", c.baseURL)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
