package images

import (
	"image"
	"image/draw"
)

// Enhancement factors for the delivered photo. Values are deliberately
// subtle; anything stronger starts to look processed.
const (
	brightnessFactor = 1.02
	contrastFactor   = 1.05
	sharpnessFactor  = 1.1
)

// Enhance applies the brightness, contrast and sharpness adjustments to the
// photo and returns a new image.
func Enhance(img image.Image) image.Image {
	rgba := toRGBA(img)
	rgba = adjustBrightness(rgba, brightnessFactor)
	rgba = adjustContrast(rgba, contrastFactor)
	rgba = sharpen(rgba, sharpnessFactor)
	return rgba
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// adjustBrightness scales every channel by factor.
func adjustBrightness(img *image.RGBA, factor float64) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	for i := 0; i < len(img.Pix); i += 4 {
		out.Pix[i+0] = clampByte(float64(img.Pix[i+0]) * factor)
		out.Pix[i+1] = clampByte(float64(img.Pix[i+1]) * factor)
		out.Pix[i+2] = clampByte(float64(img.Pix[i+2]) * factor)
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

// adjustContrast interpolates every channel away from the image's mean
// luminance: out = mean + factor*(in-mean).
func adjustContrast(img *image.RGBA, factor float64) *image.RGBA {
	var sum, count float64
	for i := 0; i < len(img.Pix); i += 4 {
		sum += 0.299*float64(img.Pix[i+0]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
		count++
	}
	if count == 0 {
		return img
	}
	mean := sum / count

	out := image.NewRGBA(img.Bounds())
	for i := 0; i < len(img.Pix); i += 4 {
		out.Pix[i+0] = clampByte(mean + factor*(float64(img.Pix[i+0])-mean))
		out.Pix[i+1] = clampByte(mean + factor*(float64(img.Pix[i+1])-mean))
		out.Pix[i+2] = clampByte(mean + factor*(float64(img.Pix[i+2])-mean))
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

// sharpen blends the image with a 3x3 smoothed copy:
// out = blurred + factor*(in - blurred). factor 1.0 is a no-op.
func sharpen(img *image.RGBA, factor float64) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return img
	}

	blurred := smooth3x3(img)
	out := image.NewRGBA(bounds)
	copy(out.Pix, img.Pix)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				b := float64(blurred.Pix[i+c])
				v := float64(img.Pix[i+c])
				out.Pix[i+c] = clampByte(b + factor*(v-b))
			}
		}
	}
	return out
}

// smooth3x3 applies the standard smoothing kernel (center 5, edges 1,
// normalized by 13). Border pixels are copied unchanged.
func smooth3x3(img *image.RGBA) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(bounds)
	copy(out.Pix, img.Pix)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				sum := 5 * int(img.Pix[img.PixOffset(x, y)+c])
				sum += int(img.Pix[img.PixOffset(x-1, y)+c])
				sum += int(img.Pix[img.PixOffset(x+1, y)+c])
				sum += int(img.Pix[img.PixOffset(x, y-1)+c])
				sum += int(img.Pix[img.PixOffset(x, y+1)+c])
				sum += int(img.Pix[img.PixOffset(x-1, y-1)+c])
				sum += int(img.Pix[img.PixOffset(x+1, y-1)+c])
				sum += int(img.Pix[img.PixOffset(x-1, y+1)+c])
				sum += int(img.Pix[img.PixOffset(x+1, y+1)+c])
				out.Pix[i+c] = byte(sum / 13)
			}
		}
	}
	return out
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
