package runtimeinit

import (
	"errors"
	"fmt"
	"log"
	"os"

	"character-hunter/src/config"
	"character-hunter/src/notification"
	"character-hunter/src/screenshot"
)

// ErrScreenCapture means the process may not read the screen, usually
// because the OS permission has not been granted.
var ErrScreenCapture = errors.New("screen capture unavailable")

type Options struct {
	LoadOptions config.LoadOptions
	// SetupLogging is called once the configuration is known.
	SetupLogging func(enableFileLogging bool, dir string)
	// ProbeScreen overrides the startup capture check; nil uses ProbeScreen.
	ProbeScreen     func() error
	ShowBlockingErr bool
}

// Bootstrap loads configuration, configures logging and verifies the
// preconditions the pipeline cannot run without.
func Bootstrap(opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging, cfg.DatasetDir)
	}

	if err := ensureWritable(cfg.DatasetDir); err != nil {
		return nil, fmt.Errorf("dataset directory %s is not writable: %w", cfg.DatasetDir, err)
	}

	probe := opts.ProbeScreen
	if probe == nil {
		probe = ProbeScreen
	}
	if err := probe(); err != nil {
		err = fmt.Errorf("%w: %w", ErrScreenCapture, err)
		if opts.ShowBlockingErr {
			notification.ShowBlockingError("Screen capture unavailable",
				fmt.Sprintf("Startup check failed: %v\n\nGrant this program screen-recording permission in the OS settings and restart it.", err))
		}
		return nil, err
	}
	log.Printf("Screen capture check succeeded")

	return cfg, nil
}

// ProbeScreen grabs a single pixel of the primary display.
func ProbeScreen() error {
	bounds, err := screenshot.VirtualBounds()
	if err != nil {
		return err
	}
	_, err = screenshot.CaptureRegion(screenshot.Region{X: bounds.Min.X, Y: bounds.Min.Y, Width: 1, Height: 1})
	return err
}

func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
