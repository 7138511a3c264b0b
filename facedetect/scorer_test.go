package facedetect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectBestEmptyInput(t *testing.T) {
	require.Nil(t, SelectBest(nil, 1000, 1000))
	require.Nil(t, SelectBest([]Candidate{}, 1000, 1000))
}

func TestSelectBestDeterministic(t *testing.T) {
	candidates := []Candidate{
		{X: 100, Y: 100, Width: 120, Height: 140, EyeCount: 1},
		{X: 400, Y: 300, Width: 200, Height: 200, EyeCount: 2},
		{X: 700, Y: 600, Width: 90, Height: 90, EyeCount: 0},
	}

	first := SelectBest(candidates, 1000, 1000)
	second := SelectBest(candidates, 1000, 1000)

	require.NotNil(t, first)
	require.Equal(t, first.Candidate, second.Candidate)
	require.Equal(t, first.Score, second.Score)
}

func TestSelectBestPrefersEyes(t *testing.T) {
	candidates := []Candidate{
		{X: 400, Y: 400, Width: 100, Height: 100, EyeCount: 0},
		{X: 400, Y: 400, Width: 100, Height: 100, EyeCount: 2},
	}

	best := SelectBest(candidates, 1000, 1000)
	require.NotNil(t, best)
	require.Equal(t, 2, best.Candidate.EyeCount)
}

func TestSelectBestTiesKeepFirst(t *testing.T) {
	// Mirrored around the vertical center line: identical size, aspect,
	// eye count and distance from center, so identical scores.
	candidates := []Candidate{
		{X: 100, Y: 450, Width: 100, Height: 100, EyeCount: 2},
		{X: 800, Y: 450, Width: 100, Height: 100, EyeCount: 2},
	}

	best := SelectBest(candidates, 1000, 1000)
	require.NotNil(t, best)
	require.Equal(t, candidates[0], best.Candidate)
}

func TestSelectBestDegenerateBox(t *testing.T) {
	candidates := []Candidate{
		{X: 100, Y: 100, Width: 0, Height: 0, EyeCount: 1},
		{X: 200, Y: 200, Width: 100, Height: 0, EyeCount: 0},
	}

	best := SelectBest(candidates, 1000, 1000)
	require.NotNil(t, best)
	require.False(t, math.IsNaN(best.Score))
	require.False(t, math.IsInf(best.Score, 0))
}

func TestScoreComponents(t *testing.T) {
	// Centered square box: position score is the full 50, aspect adds 25.
	c := Candidate{X: 450, Y: 450, Width: 100, Height: 100, EyeCount: 2}
	score := scoreCandidate(c, 1000, 1000)

	// eyes 100 + size min(1*2,100)=2 + position 50 + aspect 25
	require.InDelta(t, 177.0, score, 1e-9)

	best := SelectBest([]Candidate{c}, 1000, 1000)
	require.NotNil(t, best)
	require.InDelta(t, 177.0/225.0, best.Confidence, 1e-9)
}

func TestConfidenceNotClamped(t *testing.T) {
	// Enough reported eyes push the score past the normalization ceiling.
	c := Candidate{X: 300, Y: 300, Width: 400, Height: 400, EyeCount: 6}
	best := SelectBest([]Candidate{c}, 1000, 1000)
	require.NotNil(t, best)
	require.Greater(t, best.Confidence, 1.0)
}
