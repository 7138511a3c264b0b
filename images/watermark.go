package images

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const watermarkText = "PROOF"

// Watermark tiles a semi-transparent text grid across the photo, rows offset
// by half a step so the pattern cannot be cropped away. Returns a new image.
func Watermark(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)

	tag := renderTag(bounds.Dx())
	tagW := tag.Bounds().Dx()
	tagH := tag.Bounds().Dy()

	xSpacing := tagW + tagW/2
	ySpacing := tagH * 2

	row := 0
	for y := -tagH; y < bounds.Dy()+tagH; y += ySpacing {
		x := -tagW
		if row%2 == 1 {
			x += xSpacing / 2
		}
		for ; x < bounds.Dx()+tagW; x += xSpacing {
			r := image.Rect(x, y, x+tagW, y+tagH)
			draw.Draw(out, r, tag, image.Point{}, draw.Over)
		}
		row++
	}
	return out
}

// renderTag draws the watermark text once and scales it relative to the
// image width, so the overlay stays legible at any output size.
func renderTag(imageWidth int) *image.RGBA {
	face := basicfont.Face7x13
	textW := font.MeasureString(face, watermarkText).Ceil()
	textH := face.Metrics().Height.Ceil()

	small := image.NewRGBA(image.Rect(0, 0, textW, textH))
	drawer := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 120}),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(watermarkText)

	scale := imageWidth / (textW * 6)
	if scale < 1 {
		scale = 1
	}
	if scale == 1 {
		return small
	}

	scaled := image.NewRGBA(image.Rect(0, 0, textW*scale, textH*scale))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	return scaled
}
