package dataset

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Prepare letterboxes img onto a black size x size canvas, preserving the
// aspect ratio, then stretches each colour channel to the full 0..255 range.
// A non-positive size keeps the original dimensions.
func Prepare(img image.Image, size int) *image.RGBA {
	src := img.Bounds()
	var canvas *image.RGBA
	if size <= 0 || src.Dx() == 0 || src.Dy() == 0 {
		canvas = image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
		draw.Draw(canvas, canvas.Bounds(), img, src.Min, draw.Src)
	} else {
		canvas = image.NewRGBA(image.Rect(0, 0, size, size))
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

		w, h := size, size
		if src.Dx() > src.Dy() {
			h = max(1, size*src.Dy()/src.Dx())
		} else {
			w = max(1, size*src.Dx()/src.Dy())
		}
		x0, y0 := (size-w)/2, (size-h)/2
		draw.CatmullRom.Scale(canvas, image.Rect(x0, y0, x0+w, y0+h), img, src, draw.Src, nil)
	}
	autoContrast(canvas)
	return canvas
}

func autoContrast(img *image.RGBA) {
	lo := [3]uint8{255, 255, 255}
	hi := [3]uint8{}
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		for c := 0; c < 3; c++ {
			lo[c] = min(lo[c], pix[i+c])
			hi[c] = max(hi[c], pix[i+c])
		}
	}
	for c := 0; c < 3; c++ {
		if lo[c] >= hi[c] {
			continue
		}
		span := int(hi[c]) - int(lo[c])
		for i := c; i < len(pix); i += 4 {
			pix[i] = uint8((int(pix[i]) - int(lo[c])) * 255 / span)
		}
	}
}
