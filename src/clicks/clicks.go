// Package clicks turns system-wide mouse presses into captured screen regions.
package clicks

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"sync"
	"time"

	"character-hunter/src/screenshot"
)

var (
	// ErrCaptureTimeout means the region grab did not finish inside the budget.
	ErrCaptureTimeout = errors.New("capture exceeded time budget")
	// ErrListenerUnavailable means the system-wide mouse hook could not be installed.
	ErrListenerUnavailable = errors.New("system-wide click listener unavailable")
)

// Button identifies a mouse button.
type Button int

const (
	ButtonOther Button = iota
	ButtonLeft
)

func (b Button) String() string {
	if b == ButtonLeft {
		return "left"
	}
	return "other"
}

// Event is a pointer-down at absolute screen coordinates.
type Event struct {
	X          int
	Y          int
	OccurredAt time.Time
	Button     Button
}

// Capture pairs a click with the pixels grabbed around it.
type Capture struct {
	Event  Event
	Region screenshot.Region
	Image  *image.RGBA
}

// Options tune the capturer. Zero values fall back to defaults.
type Options struct {
	Radius      int
	Budget      time.Duration
	Cooldown    time.Duration
	MinDistance int
}

func (o Options) withDefaults() Options {
	if o.Radius <= 0 {
		o.Radius = 150
	}
	if o.Budget <= 0 {
		o.Budget = 50 * time.Millisecond
	}
	return o
}

// Capturer grabs the region around qualifying clicks. Handle is called from
// the listener goroutine only.
type Capturer struct {
	opts    Options
	bounds  image.Rectangle
	capture screenshot.CaptureFunc

	mu       sync.Mutex
	captured bool
	lastAt   time.Time
	lastX    int
	lastY    int
}

func NewCapturer(opts Options, bounds image.Rectangle, capture screenshot.CaptureFunc) *Capturer {
	if capture == nil {
		capture = screenshot.CaptureRegion
	}
	return &Capturer{opts: opts.withDefaults(), bounds: bounds, capture: capture}
}

// Handle grabs the region around ev. It returns false when the click is not
// a left click, falls inside the cooldown or travel debounce, or the grab
// fails or overruns its budget; such clicks are dropped, never retried.
func (c *Capturer) Handle(ev Event) (Capture, bool) {
	if ev.Button != ButtonLeft {
		return Capture{}, false
	}
	if !c.admit(ev) {
		return Capture{}, false
	}

	region := screenshot.Around(ev.X, ev.Y, c.opts.Radius, c.bounds)
	if region.Empty() {
		log.Printf("clicks: click at (%d,%d) outside screen bounds %v", ev.X, ev.Y, c.bounds)
		return Capture{}, false
	}

	img, err := c.grabWithin(region)
	if err != nil {
		log.Printf("clicks: dropping click at (%d,%d): %v", ev.X, ev.Y, err)
		return Capture{}, false
	}
	return Capture{Event: ev, Region: region, Image: img}, true
}

func (c *Capturer) admit(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.captured {
		if c.opts.Cooldown > 0 && ev.OccurredAt.Sub(c.lastAt) < c.opts.Cooldown {
			return false
		}
		if c.opts.MinDistance > 0 {
			d := math.Hypot(float64(ev.X-c.lastX), float64(ev.Y-c.lastY))
			if d < float64(c.opts.MinDistance) {
				return false
			}
		}
	}
	c.captured = true
	c.lastAt = ev.OccurredAt
	c.lastX, c.lastY = ev.X, ev.Y
	return true
}

// grabWithin runs the capture on a helper goroutine so an overrun returns
// control to the listener as soon as the budget elapses.
func (c *Capturer) grabWithin(region screenshot.Region) (*image.RGBA, error) {
	type grab struct {
		img *image.RGBA
		err error
	}
	resCh := make(chan grab, 1)
	go func() {
		img, err := c.capture(region)
		resCh <- grab{img, err}
	}()

	timer := time.NewTimer(c.opts.Budget)
	defer timer.Stop()
	select {
	case r := <-resCh:
		return r.img, r.err
	case <-timer.C:
		return nil, fmt.Errorf("%w (%v)", ErrCaptureTimeout, c.opts.Budget)
	}
}

// Source delivers raw pointer-down events.
type Source interface {
	Start() (<-chan Event, error)
	Stop()
}

// Listen consumes events from src, captures qualifying clicks and passes
// them to sink until ctx is cancelled or the source closes. sink must not
// block. The source is stopped before Listen returns.
func Listen(ctx context.Context, src Source, c *Capturer, sink func(Capture)) error {
	events, err := src.Start()
	if err != nil {
		return err
	}
	defer src.Stop()
	log.Printf("clicks: listener started")

	for {
		select {
		case <-ctx.Done():
			log.Printf("clicks: listener stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				log.Printf("clicks: event channel closed")
				return nil
			}
			if capture, ok := c.Handle(ev); ok {
				sink(capture)
			}
		}
	}
}
