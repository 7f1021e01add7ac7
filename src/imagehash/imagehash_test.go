package imagehash

import (
	"image"
	"image/color"
	"testing"
	"time"
)

func gradient(w, h int, reverse bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if reverse {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	return img
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{"": MethodDHash, "dhash": MethodDHash, "histogram": MethodHistogram} {
		got, err := ParseMethod(in)
		if err != nil || got != want {
			t.Errorf("ParseMethod(%q) = %q, %v; expected %q", in, got, err, want)
		}
	}
	if _, err := ParseMethod("sha256"); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestDHash(t *testing.T) {
	a := gradient(300, 300, false)
	b := gradient(300, 300, false)
	c := gradient(300, 300, true)

	if DHash(a) != DHash(b) {
		t.Error("identical images must hash identically")
	}
	if s := HashSimilarity(DHash(a), DHash(c)); s > 0.5 {
		t.Errorf("mirrored gradients too similar: %v", s)
	}
	if HashSimilarity(0, ^uint64(0)) != 0 {
		t.Error("opposite hashes should have similarity 0")
	}
}

func TestHistogramSimilarity(t *testing.T) {
	red := Histogram(solid(20, 20, color.RGBA{R: 255, A: 255}))
	blue := Histogram(solid(20, 20, color.RGBA{B: 255, A: 255}))
	grad := Histogram(gradient(64, 16, false))

	if s := HistogramSimilarity(red, red); s != 1 {
		t.Errorf("self similarity = %v, expected 1", s)
	}
	if s := HistogramSimilarity(red, blue); s >= 0.9 {
		t.Errorf("red/blue similarity = %v, expected low", s)
	}
	if s := HistogramSimilarity(grad, grad); s < 0.999 {
		t.Errorf("gradient self similarity = %v", s)
	}
	if s := HistogramSimilarity(red, nil); s != 0 {
		t.Errorf("mismatched lengths should give 0, got %v", s)
	}
}

func TestWindow(t *testing.T) {
	for _, method := range []Method{MethodDHash, MethodHistogram} {
		t.Run(string(method), func(t *testing.T) {
			base := time.Unix(0, 0)
			w := NewWindow(method, 0.9, 2, time.Minute)
			fa := Compute(method, gradient(100, 100, true))
			fc := Compute(method, solid(100, 100, color.RGBA{G: 200, A: 255}))

			if _, dup := w.Match(fa, base); dup {
				t.Fatal("empty window cannot match")
			}
			w.Add(fa, base)
			if _, dup := w.Match(fa, base.Add(time.Second)); !dup {
				t.Fatal("expected identical fingerprint to match")
			}
			if _, dup := w.Match(fa, base.Add(2*time.Minute)); dup {
				t.Fatal("entries older than maxAge must be ignored")
			}

			w.Add(fc, base)
			w.Add(fc, base)
			if w.Len() != 2 {
				t.Fatalf("window size = %d, expected 2", w.Len())
			}
			if _, dup := w.Match(fa, base); dup && method == MethodDHash {
				t.Fatal("evicted fingerprint still matched")
			}
		})
	}
}
