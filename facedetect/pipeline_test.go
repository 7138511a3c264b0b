package facedetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeSingleGoodFace(t *testing.T) {
	candidates := []Candidate{{X: 400, Y: 300, Width: 200, Height: 200, EyeCount: 2}}

	decision, err := Analyze(candidates, 1000, 1000)
	require.NoError(t, err)

	require.True(t, decision.Valid)
	require.Equal(t, MethodAdvanced, decision.DetectionMethod)
	require.Equal(t, 1, decision.FacesDetected)
	require.Equal(t, 2, decision.EyesDetected)
	require.InDelta(t, 0.20, decision.HeadHeightPercent, 1e-9)
	require.InDelta(t, 4.0, decision.FaceAreaPercent, 1e-9)
	require.True(t, decision.HorizontallyCentered)
	require.Empty(t, decision.Error)
	requireInBoundsSquare(t, decision.CropBox, 1000, 1000)
}

func TestAnalyzeNoCandidatesFallsBack(t *testing.T) {
	decision, err := Analyze(nil, 1000, 1000)
	require.NoError(t, err)

	require.True(t, decision.Valid)
	require.Equal(t, MethodFallback, decision.DetectionMethod)
	require.Equal(t, Rect{X: 0, Y: 0, Width: 1000, Height: 1000}, decision.CropBox)
	require.Equal(t, 0, decision.EyesDetected)
	require.InDelta(t, 0.5, decision.Confidence, 1e-9)
	require.InDelta(t, 25.0, decision.FaceAreaPercent, 1e-9)
}

func TestAnalyzeLenientThresholdsWithEyes(t *testing.T) {
	// Face area 0.4% sits below the strict minimum of 0.5% but above the
	// lenient 0.3% that applies once two eyes are seen.
	small := Candidate{X: 480, Y: 440, Width: 60, Height: 67}

	noEyes := small
	noEyes.EyeCount = 0
	decision, err := Analyze([]Candidate{noEyes}, 1000, 1000)
	require.NoError(t, err)
	require.False(t, decision.Valid)
	require.Equal(t, adviceNotCompliant, decision.Error)

	withEyes := small
	withEyes.EyeCount = 2
	decision, err = Analyze([]Candidate{withEyes}, 1000, 1000)
	require.NoError(t, err)
	require.True(t, decision.Valid)
	require.Empty(t, decision.Error)
}

func TestAnalyzeAspectCheckNeverRelaxed(t *testing.T) {
	// A 4000x1000 panorama is outside the 0.3..3.0 window regardless of eyes.
	c := Candidate{X: 1800, Y: 300, Width: 400, Height: 400, EyeCount: 2}
	decision, err := Analyze([]Candidate{c}, 4000, 1000)
	require.NoError(t, err)
	require.False(t, decision.Valid)
	require.Equal(t, adviceNotCompliant, decision.Error)
	requireInBoundsSquare(t, decision.CropBox, 4000, 1000)
}

func TestAnalyzeInvalidDecisionStillCarriesCrop(t *testing.T) {
	// Tiny face fails the strict thresholds, but the crop is still produced
	// so the caller can render the image with an advisory.
	c := Candidate{X: 10, Y: 10, Width: 20, Height: 20, EyeCount: 0}
	decision, err := Analyze([]Candidate{c}, 1000, 1000)
	require.NoError(t, err)
	require.False(t, decision.Valid)
	requireInBoundsSquare(t, decision.CropBox, 1000, 1000)
}

func TestAnalyzeRejectsMalformedImage(t *testing.T) {
	_, err := Analyze(nil, 0, 1000)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Analyze(nil, 1000, -5)
	require.ErrorIs(t, err, ErrInvalidInput)
}
