package facedetect

import (
	"fmt"
	"math"
)

// Validity thresholds. The lenient set applies when at least two eyes were
// detected; the aspect check for the whole image is never relaxed.
const (
	strictMinFaceArea = 0.5
	strictMaxFaceArea = 60.0
	strictMinHeadPct  = 0.10
	strictMaxHeadPct  = 0.9

	lenientMinFaceArea = 0.3
	lenientMaxFaceArea = 70.0
	lenientMinHeadPct  = 0.05
	lenientMaxHeadPct  = 0.95

	imageAspectMin = 0.3
	imageAspectMax = 3.0

	fallbackConfidence   = 0.5
	fallbackFaceAreaPct  = 25.0
	fallbackHeadHeight   = 0.5
	centeredTolerancePct = 0.3
)

const adviceNotCompliant = "Face detected but may not meet passport photo requirements"

// Analyze scores the candidates, derives quality metrics for the winner and
// computes the crop. With no usable candidate it degrades to a valid
// center-crop decision rather than failing; only malformed image dimensions
// are an error.
func Analyze(candidates []Candidate, imageWidth, imageHeight int) (Decision, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return Decision{}, fmt.Errorf("%w: %dx%d", ErrInvalidInput, imageWidth, imageHeight)
	}

	best := SelectBest(candidates, imageWidth, imageHeight)
	if best == nil {
		return fallbackDecision(imageWidth, imageHeight), nil
	}

	face := Rect{
		X:      best.Candidate.X,
		Y:      best.Candidate.Y,
		Width:  best.Candidate.Width,
		Height: best.Candidate.Height,
	}

	headHeightPercent := float64(face.Height) / float64(imageHeight)
	faceAreaPercent := float64(face.Width*face.Height) / float64(imageWidth*imageHeight) * 100
	faceCenterX := float64(face.X) + float64(face.Width)/2
	horizontallyCentered := math.Abs(faceCenterX-float64(imageWidth)/2)/float64(imageWidth) < centeredTolerancePct
	imageAspect := float64(imageWidth) / float64(imageHeight)

	sizeOK := faceAreaPercent >= strictMinFaceArea && faceAreaPercent <= strictMaxFaceArea
	headOK := headHeightPercent >= strictMinHeadPct && headHeightPercent <= strictMaxHeadPct
	if best.Candidate.EyeCount >= 2 {
		sizeOK = faceAreaPercent >= lenientMinFaceArea && faceAreaPercent <= lenientMaxFaceArea
		headOK = headHeightPercent >= lenientMinHeadPct && headHeightPercent <= lenientMaxHeadPct
	}
	aspectOK := imageAspect >= imageAspectMin && imageAspect <= imageAspectMax

	valid := sizeOK && headOK && aspectOK

	decision := Decision{
		FacesDetected:        len(candidates),
		Valid:                valid,
		CropBox:              ComputeCrop(face, imageWidth, imageHeight),
		OriginalFace:         face,
		EyesDetected:         best.Candidate.EyeCount,
		HeadHeightPercent:    headHeightPercent,
		HorizontallyCentered: horizontallyCentered,
		FaceAreaPercent:      faceAreaPercent,
		AspectRatio:          imageAspect,
		Confidence:           best.Confidence,
		DetectionMethod:      MethodAdvanced,
	}
	if !valid {
		// Advisory only: downstream still crops and renders the image.
		decision.Error = adviceNotCompliant
	}
	return decision, nil
}

func fallbackDecision(imageWidth, imageHeight int) Decision {
	crop := CenterSquare(imageWidth, imageHeight)
	return Decision{
		FacesDetected:        0,
		Valid:                true,
		CropBox:              crop,
		OriginalFace:         crop,
		EyesDetected:         0,
		HeadHeightPercent:    fallbackHeadHeight,
		HorizontallyCentered: true,
		FaceAreaPercent:      fallbackFaceAreaPct,
		AspectRatio:          float64(imageWidth) / float64(imageHeight),
		Confidence:           fallbackConfidence,
		DetectionMethod:      MethodFallback,
	}
}
