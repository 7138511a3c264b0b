package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"

	"passport-photo-backend/facedetect"
	"passport-photo-backend/images"
	"passport-photo-backend/metrics"
	"passport-photo-backend/models"
)

// processPhoto runs the whole pipeline for one upload: decode, detect,
// decide, crop, optionally strip the background, resize, enhance and
// watermark. The watermark flag is decided by the caller from the
// verification state.
func processPhoto(ctx context.Context, state *ServerState, req models.ProcessPhotoRequest, watermark bool) (*models.ProcessPhotoResponse, error) {
	raw, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64", facedetect.ErrInvalidInput)
	}

	img, err := images.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", facedetect.ErrInvalidInput, err)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	candidates, err := state.detector.DetectFaces(ctx, img)
	if err != nil {
		// Detection is a soft dependency: without candidates the pipeline
		// falls back to a center crop.
		slog.Warn("face detection unavailable, using fallback", "error", err)
		candidates = nil
	}

	decision, err := facedetect.Analyze(candidates, width, height)
	if err != nil {
		return nil, err
	}

	photo := images.Crop(img, decision.CropBox)

	if req.RemoveBackground && state.backgroundRemover != nil {
		cleaned, err := state.backgroundRemover.RemoveBackground(ctx, photo)
		if err != nil {
			slog.Warn("background removal failed, keeping original background", "error", err)
		} else {
			photo = cleaned
		}
	}

	photo = images.Resize(photo, images.OutputSize, images.OutputSize)
	photo = images.Enhance(photo)
	if watermark {
		photo = images.Watermark(photo)
	}

	encoded, err := images.EncodeJPEGBase64(photo)
	if err != nil {
		return nil, err
	}

	metrics.PhotosProcessed.WithLabelValues(decision.DetectionMethod, strconv.FormatBool(decision.Valid)).Inc()
	slog.Info("photo processed",
		"faces", decision.FacesDetected,
		"valid", decision.Valid,
		"method", decision.DetectionMethod,
		"watermarked", watermark)

	return &models.ProcessPhotoResponse{
		Success:     true,
		Photo:       encoded,
		Watermarked: watermark,
		Decision:    decision,
	}, nil
}
