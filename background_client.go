package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"passport-photo-backend/images"
)

// HTTPBackgroundRemover calls an external matting service to replace the
// photo background. Failures are surfaced to the caller, which decides
// whether to continue with the original image.
type HTTPBackgroundRemover struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPBackgroundRemover(baseURL string) *HTTPBackgroundRemover {
	return &HTTPBackgroundRemover{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *HTTPBackgroundRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	encoded, err := images.EncodeJPEGBase64(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image for background removal: %w", err)
	}

	jsonData, err := json.Marshal(map[string]interface{}{"image": encoded})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal background removal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/remove-background", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create background removal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute background removal request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("background removal failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode background removal response: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(response.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode background removal payload: %w", err)
	}
	return images.Decode(raw)
}
