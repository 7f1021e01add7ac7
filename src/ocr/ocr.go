// Package ocr provides text recognition for captured screen regions using Tesseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"character-hunter/src/screenshot"
)

// DefaultThreshold is the grayscale cut-off used to binarize frames before
// recognition.
const DefaultThreshold = 128

// ErrNoText means recognition ran but produced nothing usable.
var ErrNoText = errors.New("no text recognized")

// Recognizer turns an image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Engine provides OCR functionality using Tesseract. A gosseract client is
// not safe for concurrent use, so calls are serialized.
type Engine struct {
	mu        sync.Mutex
	client    *gosseract.Client
	threshold uint8
}

// NewEngine creates a new OCR engine for the given Tesseract language.
func NewEngine(language string) (*Engine, error) {
	if language == "" {
		language = "eng"
	}
	client := gosseract.NewClient()

	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	// Search boxes hold a single line of text.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}

	return &Engine{client: client, threshold: DefaultThreshold}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Recognize runs OCR on img. The context deadline is honoured, but an
// abandoned Tesseract call keeps running in the background until it returns.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := screenshot.EncodePNG(Preprocess(img, e.threshold))
	if err != nil {
		return "", err
	}

	resCh := make(chan struct {
		text string
		err  error
	}, 1)
	go func() {
		text, err := e.recognizeBytes(data)
		resCh <- struct {
			text string
			err  error
		}{text, err}
	}()

	select {
	case r := <-resCh:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) recognizeBytes(data []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Preprocess converts img to grayscale and binarizes it: pixels darker than
// threshold become black, everything else white.
func Preprocess(img image.Image, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			v := uint8(255)
			if g.Y < threshold {
				v = 0
			}
			out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: v})
		}
	}
	return out
}
