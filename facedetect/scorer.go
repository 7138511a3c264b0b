package facedetect

import "math"

// Scoring weights. scoreCeiling is a derived normalization constant, not a
// hard upper bound: the eye term alone can push a score past it.
const (
	pointsPerEye      = 50.0
	sizeScoreCap      = 100.0
	positionScoreMax  = 50.0
	aspectScorePoints = 25.0
	scoreCeiling      = 225.0

	aspectRatioMin = 0.7
	aspectRatioMax = 1.4
)

// SelectBest scores every candidate and returns the strictly best one, or nil
// when the list is empty. Ties keep the first-encountered candidate, so the
// result is deterministic for a given input order.
func SelectBest(candidates []Candidate, imageWidth, imageHeight int) *ScoredCandidate {
	if len(candidates) == 0 || imageWidth <= 0 || imageHeight <= 0 {
		return nil
	}

	var best *ScoredCandidate
	for _, c := range candidates {
		score := scoreCandidate(c, imageWidth, imageHeight)
		if best == nil || score > best.Score {
			best = &ScoredCandidate{
				Candidate:  c,
				Score:      score,
				Confidence: score / scoreCeiling,
			}
		}
	}
	return best
}

func scoreCandidate(c Candidate, imageWidth, imageHeight int) float64 {
	eyeScore := float64(c.EyeCount) * pointsPerEye

	areaPercent := float64(c.Width*c.Height) / float64(imageWidth*imageHeight) * 100
	sizeScore := math.Min(areaPercent*2, sizeScoreCap)

	centerX := float64(c.X) + float64(c.Width)/2
	centerY := float64(c.Y) + float64(c.Height)/2
	dx := centerX - float64(imageWidth)/2
	dy := centerY - float64(imageHeight)/2
	centerDistance := math.Hypot(dx, dy)
	maxDistance := math.Hypot(float64(imageWidth), float64(imageHeight)) / 2
	positionScore := (1 - centerDistance/maxDistance) * positionScoreMax

	// A zero-height box has no defined aspect ratio and simply scores zero here.
	aspectScore := 0.0
	if c.Height > 0 {
		ratio := float64(c.Width) / float64(c.Height)
		if ratio >= aspectRatioMin && ratio <= aspectRatioMax {
			aspectScore = aspectScorePoints
		}
	}

	return eyeScore + sizeScore + positionScore + aspectScore
}
