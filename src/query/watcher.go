// Package query watches the search-bar region of the screen and reports when
// the user's search query changes.
package query

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode"

	"character-hunter/src/logutil"
	"character-hunter/src/ocr"
	"character-hunter/src/screenshot"
)

// Confidence grades how much a recognized query can be trusted.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceHigh
)

func (c Confidence) String() string {
	if c == ConfidenceHigh {
		return "high"
	}
	return "low"
}

// RecognizedQuery is one accepted observation of the search text.
type RecognizedQuery struct {
	Text       string
	ObservedAt time.Time
	Confidence Confidence
}

// Options tune the watcher. Zero values fall back to defaults.
type Options struct {
	Region              screenshot.Region
	Interval            time.Duration
	SimilarityThreshold float64
	MinLength           int
	StableFrames        int
	HistorySize         int
	RecognizeTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 750 * time.Millisecond
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = 0.85
	}
	if o.MinLength <= 0 {
		o.MinLength = 3
	}
	if o.StableFrames <= 0 {
		o.StableFrames = 2
	}
	if o.HistorySize < o.StableFrames {
		o.HistorySize = o.StableFrames + 1
	}
	if o.RecognizeTimeout <= 0 {
		o.RecognizeTimeout = 4 * o.Interval
	}
	return o
}

// Watcher polls a screen region through OCR. It is owned by a single
// goroutine; Observe and Tick are not safe for concurrent use.
type Watcher struct {
	opts       Options
	capture    screenshot.CaptureFunc
	recognizer ocr.Recognizer
	now        func() time.Time

	history []string
	last    *RecognizedQuery
}

func NewWatcher(opts Options, capture screenshot.CaptureFunc, recognizer ocr.Recognizer) *Watcher {
	if capture == nil {
		capture = screenshot.CaptureRegion
	}
	return &Watcher{
		opts:       opts.withDefaults(),
		capture:    capture,
		recognizer: recognizer,
		now:        time.Now,
	}
}

// Run polls on a fixed interval and calls emit for every new query until ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context, emit func(RecognizedQuery)) error {
	log.Printf("query: watching region %+v every %v", w.opts.Region, w.opts.Interval)
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("query: watcher stopped")
			return nil
		case <-ticker.C:
			if q, ok := w.Tick(ctx); ok {
				emit(q)
			}
		}
	}
}

// Tick captures and recognizes the region once. The query is stamped with
// the capture time.
func (w *Watcher) Tick(ctx context.Context) (RecognizedQuery, bool) {
	// The text was on screen when the frame was grabbed, not when OCR ended.
	at := w.now()
	img, err := w.capture(w.opts.Region)
	if err != nil {
		log.Printf("query: capture failed: %v", err)
		return RecognizedQuery{}, false
	}

	rctx, cancel := context.WithTimeout(ctx, w.opts.RecognizeTimeout)
	defer cancel()
	raw, err := w.recognizer.Recognize(rctx, img)
	if err != nil && !errors.Is(err, ocr.ErrNoText) {
		log.Printf("query: recognition failed: %v", err)
	}
	return w.Observe(raw, at)
}

// Observe feeds one frame of raw OCR output. It returns a new query only when
// the extracted text is non-trivial, has been stable for StableFrames of the
// recent history, and differs enough from the last emitted query.
func (w *Watcher) Observe(raw string, at time.Time) (RecognizedQuery, bool) {
	text := Extract(raw)
	if len([]rune(text)) < w.opts.MinLength || !hasAlphaToken(text) {
		text = ""
	}
	w.remember(text)
	if text == "" {
		return RecognizedQuery{}, false
	}

	seen := 0
	for _, h := range w.history {
		if h != "" && Similarity(h, text) >= w.opts.SimilarityThreshold {
			seen++
		}
	}
	if seen < w.opts.StableFrames {
		return RecognizedQuery{}, false
	}

	if w.last != nil && Similarity(w.last.Text, text) >= w.opts.SimilarityThreshold {
		return RecognizedQuery{}, false
	}

	q := RecognizedQuery{Text: text, ObservedAt: at, Confidence: AssessConfidence(text)}
	w.last = &q
	log.Printf("query: new search %q (confidence %s)", logutil.SanitizeForLog(text), q.Confidence)
	return q, true
}

func (w *Watcher) remember(text string) {
	w.history = append(w.history, text)
	if len(w.history) > w.opts.HistorySize {
		w.history = w.history[len(w.history)-w.opts.HistorySize:]
	}
}

const shortQueryLength = 4

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(search|search images|images|all|google|google search|new tab)$`),
	regexp.MustCompile(`^(?:\S{1,2}\s)+\S{1,2}$`),
}

// AssessConfidence grades text: short strings, strings heavy with symbol
// artifacts and known noise patterns are low confidence.
func AssessConfidence(text string) Confidence {
	runes := []rune(text)
	if len(runes) < shortQueryLength {
		return ConfidenceLow
	}
	artifacts := 0
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && !strings.ContainsRune("-|()'&.", r) {
			artifacts++
		}
	}
	if float64(artifacts)/float64(len(runes)) > 0.2 {
		return ConfidenceLow
	}
	for _, re := range noisePatterns {
		if re.MatchString(text) {
			return ConfidenceLow
		}
	}
	return ConfidenceHigh
}

// Similarity is the case-insensitive edit-distance ratio of a and b, in [0, 1].
func Similarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
