package facedetect

// Crop layout constants for passport conventions. A detected face box covers
// roughly the core features, so the full head is estimated from it and placed
// at 75% of the output height with a little headroom above.
const (
	faceToHeadRatio  = 0.6  // face box height relative to full head height
	targetHeadRatio  = 0.75 // full head height relative to crop height
	headTopOffset    = 0.4  // estimated head top sits this fraction of face height above the face box
	headroomFraction = 0.12 // extra margin above the estimated head top
)

// CenterSquare returns the largest centered square inside an image. It is the
// crop used when no usable face is available.
func CenterSquare(imageWidth, imageHeight int) Rect {
	size := imageWidth
	if imageHeight < size {
		size = imageHeight
	}
	return Rect{
		X:      (imageWidth - size) / 2,
		Y:      (imageHeight - size) / 2,
		Width:  size,
		Height: size,
	}
}

// ComputeCrop derives the square passport crop for a detected face box,
// clamped to the image bounds. The face box is the raw detected box; head
// expansion is baked into the layout constants above, so callers must not
// pre-expand it. Pure function.
func ComputeCrop(face Rect, imageWidth, imageHeight int) Rect {
	if face.Width <= 0 || face.Height <= 0 {
		return CenterSquare(imageWidth, imageHeight)
	}

	estimatedHeadHeight := float64(face.Height) / faceToHeadRatio
	cropSize := estimatedHeadHeight / targetHeadRatio

	estimatedHeadTop := float64(face.Y) - float64(face.Height)*headTopOffset

	cropTop := estimatedHeadTop - cropSize*headroomFraction
	if cropTop < 0 {
		cropTop = 0
	}
	cropBottom := cropTop + cropSize
	if cropBottom > float64(imageHeight) {
		cropBottom = float64(imageHeight)
		cropTop = cropBottom - cropSize
		if cropTop < 0 {
			cropTop = 0
		}
	}

	faceCenterX := float64(face.X) + float64(face.Width)/2
	cropLeft := faceCenterX - cropSize/2
	if cropLeft < 0 {
		cropLeft = 0
	}
	cropRight := cropLeft + cropSize
	if cropRight > float64(imageWidth) {
		cropRight = float64(imageWidth)
		cropLeft = cropRight - cropSize
		if cropLeft < 0 {
			cropLeft = 0
		}
	}

	left, top := int(cropLeft), int(cropTop)
	right, bottom := int(cropRight), int(cropBottom)
	if right > imageWidth {
		right = imageWidth
	}
	if bottom > imageHeight {
		bottom = imageHeight
	}

	// Force a perfect square: shrink to the shorter truncated axis and
	// re-center the longer one.
	actualWidth := right - left
	actualHeight := bottom - top
	finalSize := actualWidth
	if actualHeight < finalSize {
		finalSize = actualHeight
	}
	if finalSize < 1 {
		finalSize = 1
	}

	if actualWidth > finalSize {
		centerX := left + actualWidth/2
		left = centerX - finalSize/2
	}
	if actualHeight > finalSize {
		centerY := top + actualHeight/2
		top = centerY - finalSize/2
	}

	return clampSquare(left, top, finalSize, imageWidth, imageHeight)
}

func clampSquare(left, top, size, imageWidth, imageHeight int) Rect {
	if size > imageWidth {
		size = imageWidth
	}
	if size > imageHeight {
		size = imageHeight
	}
	if left < 0 {
		left = 0
	}
	if left+size > imageWidth {
		left = imageWidth - size
	}
	if top < 0 {
		top = 0
	}
	if top+size > imageHeight {
		top = imageHeight - size
	}
	return Rect{X: left, Y: top, Width: size, Height: size}
}
