package facedetect

import (
	"context"
	"errors"
	"image"
)

// Candidate is a detector-reported face bounding box plus the number of eyes
// found inside it. Coordinates are pixels with the origin at the top-left.
type Candidate struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	Width    int `json:"width"`
	Height   int `json:"height"`
	EyeCount int `json:"eye_count"`
}

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScoredCandidate pairs a candidate with its quality score.
// Confidence is Score normalized by scoreCeiling; it is a heuristic,
// not a probability, and may exceed 1.0 when many eyes are reported.
type ScoredCandidate struct {
	Candidate  Candidate
	Score      float64
	Confidence float64
}

// Detection methods reported in a Decision.
const (
	MethodAdvanced = "advanced"
	MethodFallback = "center_crop_fallback"
)

// Decision is the per-image output of the pipeline. It is serialized to the
// caller and never persisted.
type Decision struct {
	FacesDetected        int     `json:"faces_detected"`
	Valid                bool    `json:"valid"`
	CropBox              Rect    `json:"crop_box"`
	OriginalFace         Rect    `json:"original_face"`
	EyesDetected         int     `json:"eyes_detected"`
	HeadHeightPercent    float64 `json:"head_height_percent"`
	HorizontallyCentered bool    `json:"horizontally_centered"`
	FaceAreaPercent      float64 `json:"face_area_percent"`
	AspectRatio          float64 `json:"aspect_ratio"`
	Confidence           float64 `json:"confidence"`
	DetectionMethod      string  `json:"detection_method"`
	Error                string  `json:"error,omitempty"`
}

// ErrInvalidInput is returned for zero or negative image dimensions.
var ErrInvalidInput = errors.New("invalid image dimensions")

// Source produces face candidates for an image. Any detector that reports
// bounding boxes with eye counts can be plugged in here.
type Source interface {
	DetectFaces(ctx context.Context, img image.Image) ([]Candidate, error)
}

// NoneSource is a Source that never finds faces, forcing the pipeline onto
// its center-crop fallback. Useful when no detector is deployed.
type NoneSource struct{}

func (NoneSource) DetectFaces(ctx context.Context, img image.Image) ([]Candidate, error) {
	return nil, nil
}
