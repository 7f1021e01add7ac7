package clicks

import (
	"fmt"
	"log"
	"sync"
	"time"

	gohook "github.com/robotn/gohook"
)

const (
	// gohook reports button 1 for the primary (left) button.
	hookLeftButton = 1

	hookEnableTimeout = 2 * time.Second
)

// HookSource is the system-wide mouse listener backed by gohook.
type HookSource struct {
	start         func() chan gohook.Event
	end           func()
	enableTimeout time.Duration

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

func NewHookSource() *HookSource {
	return NewHookSourceWith(gohook.Start, gohook.End, hookEnableTimeout)
}

// NewHookSourceWith uses the given hook entry points instead of gohook's
// package functions. Start fails unless start's channel reports
// HookEnabled within enableTimeout.
func NewHookSourceWith(start func() chan gohook.Event, end func(), enableTimeout time.Duration) *HookSource {
	if enableTimeout <= 0 {
		enableTimeout = hookEnableTimeout
	}
	return &HookSource{start: start, end: end, enableTimeout: enableTimeout}
}

// Start installs the hook and forwards mouse presses. It fails with
// ErrListenerUnavailable when the OS refuses the hook, which gohook only
// signals by never delivering HookEnabled.
func (h *HookSource) Start() (<-chan Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	evChan := h.start()
	if evChan == nil {
		return nil, ErrListenerUnavailable
	}
	if err := awaitEnabled(evChan, h.enableTimeout); err != nil {
		h.end()
		return nil, err
	}
	h.started = true
	h.done = make(chan struct{})

	out := make(chan Event, 16)
	done := h.done
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in click hook goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			// MouseHold is the press; MouseDown fires on release.
			if ev.Kind != gohook.MouseHold {
				continue
			}
			e := Event{
				X:          int(ev.X),
				Y:          int(ev.Y),
				OccurredAt: ev.When,
				Button:     ButtonOther,
			}
			if e.OccurredAt.IsZero() {
				e.OccurredAt = time.Now()
			}
			if ev.Button == hookLeftButton {
				e.Button = ButtonLeft
			}
			select {
			case out <- e:
			case <-done:
				return
			default:
				// listener busy with a capture; a burst click is dropped
			}
		}
	}()
	return out, nil
}

func awaitEnabled(evChan chan gohook.Event, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-evChan:
			if !ok {
				return fmt.Errorf("%w: hook closed before it was enabled", ErrListenerUnavailable)
			}
			if ev.Kind == gohook.HookEnabled {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("%w: hook not enabled within %v; grant this program input monitoring (accessibility) permission", ErrListenerUnavailable, timeout)
		}
	}
}

// Stop unregisters the hook.
func (h *HookSource) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return
	}
	h.started = false
	close(h.done)
	h.end()
}
