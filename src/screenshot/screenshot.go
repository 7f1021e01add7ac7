package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"
)

// Region represents a screen region to capture, in absolute virtual-screen
// coordinates.
type Region struct {
	X      int `yaml:"x" json:"x"`
	Y      int `yaml:"y" json:"y"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// CaptureFunc grabs the pixels of a region. Components take one of these
// instead of calling CaptureRegion directly so tests can feed synthetic frames.
type CaptureFunc func(region Region) (*image.RGBA, error)

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// FromRect converts a rectangle back into a Region.
func FromRect(rect image.Rectangle) Region {
	return Region{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
}

// Around returns the square region of side 2*radius centred on (x, y).
// The window is shifted to stay inside bounds; when bounds are smaller than
// the window it is cut down to the bounds.
func Around(x, y, radius int, bounds image.Rectangle) Region {
	size := 2 * radius
	left := x - radius
	top := y - radius

	if left+size > bounds.Max.X {
		left = bounds.Max.X - size
	}
	if top+size > bounds.Max.Y {
		top = bounds.Max.Y - size
	}
	if left < bounds.Min.X {
		left = bounds.Min.X
	}
	if top < bounds.Min.Y {
		top = bounds.Min.Y
	}

	rect := image.Rect(left, top, left+size, top+size).Intersect(bounds)
	return FromRect(rect)
}

// Clamp cuts the region down to bounds.
func (r Region) Clamp(bounds image.Rectangle) Region {
	return FromRect(r.Rect().Intersect(bounds))
}

// VirtualBounds returns the union of all active display bounds.
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}

// CaptureRegion captures a specific region of the screen
func CaptureRegion(region Region) (*image.RGBA, error) {
	if region.Empty() {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", region.Width, region.Height)
	}

	img, err := screenshot.CaptureRect(region.Rect())
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return img, nil
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}
