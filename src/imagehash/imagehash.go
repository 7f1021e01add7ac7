// Package imagehash fingerprints images for near-duplicate detection.
package imagehash

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/bits"
	"time"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// Method selects how two images are compared.
type Method string

const (
	// MethodDHash compares 64-bit difference hashes by Hamming distance.
	MethodDHash Method = "dhash"
	// MethodHistogram correlates per-channel colour histograms.
	MethodHistogram Method = "histogram"
)

const histogramBins = 16

// ParseMethod validates a configured method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodDHash, MethodHistogram:
		return Method(s), nil
	case "":
		return MethodDHash, nil
	}
	return "", fmt.Errorf("unknown dedup method %q", s)
}

// Fingerprint is a compact summary of an image.
type Fingerprint struct {
	Hash      uint64
	Histogram []float64
}

// Compute fingerprints img with the given method.
func Compute(method Method, img image.Image) Fingerprint {
	if method == MethodHistogram {
		return Fingerprint{Histogram: Histogram(img)}
	}
	return Fingerprint{Hash: DHash(img)}
}

// Similarity of two fingerprints in [0, 1] under method.
func Similarity(method Method, a, b Fingerprint) float64 {
	if method == MethodHistogram {
		return HistogramSimilarity(a.Histogram, b.Histogram)
	}
	return HashSimilarity(a.Hash, b.Hash)
}

// DHash computes a 64-bit difference hash: the image is shrunk to 9x8
// grayscale and each bit records whether a pixel is brighter than its right
// neighbour.
func DHash(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			hash <<= 1
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				hash |= 1
			}
		}
	}
	return hash
}

// HashSimilarity is 1 minus the normalized Hamming distance.
func HashSimilarity(a, b uint64) float64 {
	return 1 - float64(bits.OnesCount64(a^b))/64
}

// Histogram returns normalized R, G and B histograms concatenated.
func Histogram(img image.Image) []float64 {
	hist := make([]float64, 3*histogramBins)
	b := img.Bounds()
	total := float64(b.Dx() * b.Dy())
	if total == 0 {
		return hist
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			hist[int(c.R)*histogramBins/256]++
			hist[histogramBins+int(c.G)*histogramBins/256]++
			hist[2*histogramBins+int(c.B)*histogramBins/256]++
		}
	}
	for i := range hist {
		hist[i] /= total
	}
	return hist
}

// HistogramSimilarity is the Pearson correlation of two histograms clipped
// to [0, 1]. Flat (zero-variance) histograms are only similar to themselves.
func HistogramSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		for i := range a {
			if a[i] != b[i] {
				return 0
			}
		}
		return 1
	}
	return math.Max(0, math.Min(1, r))
}

type entry struct {
	fp Fingerprint
	at time.Time
}

// Window remembers the most recent fingerprints of one subject. It is not
// safe for concurrent use.
type Window struct {
	method    Method
	threshold float64
	size      int
	maxAge    time.Duration
	entries   []entry
}

// NewWindow keeps at most size fingerprints; entries older than maxAge are
// ignored when maxAge > 0.
func NewWindow(method Method, threshold float64, size int, maxAge time.Duration) *Window {
	if size <= 0 {
		size = 16
	}
	return &Window{method: method, threshold: threshold, size: size, maxAge: maxAge}
}

// Match returns the best similarity against the window and whether it
// reaches the threshold.
func (w *Window) Match(fp Fingerprint, at time.Time) (float64, bool) {
	best, compared := 0.0, false
	for _, e := range w.entries {
		if w.maxAge > 0 && at.Sub(e.at) > w.maxAge {
			continue
		}
		compared = true
		if s := Similarity(w.method, fp, e.fp); s > best {
			best = s
		}
	}
	return best, compared && best >= w.threshold
}

// Add records fp, evicting the oldest entry when full.
func (w *Window) Add(fp Fingerprint, at time.Time) {
	w.entries = append(w.entries, entry{fp: fp, at: at})
	if len(w.entries) > w.size {
		w.entries = w.entries[len(w.entries)-w.size:]
	}
}

// Len returns the number of remembered fingerprints.
func (w *Window) Len() int { return len(w.entries) }
