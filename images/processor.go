package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"

	"passport-photo-backend/facedetect"
)

// OutputSize is the edge length of the final square photo in pixels.
const OutputSize = 1200

// jpegQuality for the delivered photo.
const jpegQuality = 92

// BackgroundRemover replaces the photo background with a plain one. The real
// implementation calls an external matting service; NoopBackgroundRemover
// leaves the image untouched.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

type NoopBackgroundRemover struct{}

func (NoopBackgroundRemover) RemoveBackground(_ context.Context, img image.Image) (image.Image, error) {
	return img, nil
}

// Decode attempts to decode an image from bytes, trying multiple formats
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no image data provided")
	}

	// Try JPEG first (most common)
	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := png.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	// Try generic image decode as fallback
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("unsupported or invalid image format")
}

// Crop returns the portion of img covered by box, clamped to the image
// bounds.
func Crop(img image.Image, box facedetect.Rect) image.Image {
	bounds := img.Bounds()
	r := image.Rect(
		bounds.Min.X+box.X,
		bounds.Min.Y+box.Y,
		bounds.Min.X+box.X+box.Width,
		bounds.Min.Y+box.Y+box.Height,
	).Intersect(bounds)

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Copy(dst, image.Point{}, img, r, xdraw.Src, nil)
	return dst
}

// Resize scales img to width x height with a high-quality kernel.
func Resize(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}

// EncodeJPEGBase64 encodes the photo as base64 JPEG for the JSON response.
func EncodeJPEGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	slog.Debug("image encoded", "bytes", buf.Len())
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
