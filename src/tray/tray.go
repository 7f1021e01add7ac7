// Package tray shows the pipeline status in the system tray.
package tray

import (
	"context"
	"image"
	"image/color"
	"log"
	"time"

	"github.com/getlantern/systray"

	"character-hunter/src/coordinator"
	"character-hunter/src/screenshot"
)

const (
	appTitle     = "Character Hunter"
	pollInterval = time.Second
)

// Run blocks in the systray main loop until ctx is cancelled or the user
// picks Quit, in which case onQuit is called. It must run on the main
// goroutine on platforms that require it.
func Run(ctx context.Context, status func() coordinator.Snapshot, onQuit func()) {
	onReady := func() {
		if icon, err := Icon(); err == nil {
			systray.SetIcon(icon)
		} else {
			log.Printf("tray: icon: %v", err)
		}
		systray.SetTitle(appTitle)
		systray.SetTooltip(appTitle)

		mStatus := systray.AddMenuItem(status().Summary(), "Current label")
		mStatus.Disable()
		systray.AddSeparator()
		mQuit := systray.AddMenuItem("Quit", "Stop hunting and exit")

		go func() {
			ticker := time.NewTicker(pollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					systray.Quit()
					return
				case <-ticker.C:
					text := status().Summary()
					mStatus.SetTitle(text)
					systray.SetTooltip(appTitle + ": " + text)
				case <-mQuit.ClickedCh:
					log.Printf("tray: quit requested")
					if onQuit != nil {
						onQuit()
					}
					systray.Quit()
					return
				}
			}
		}()
	}
	systray.Run(onReady, func() {})
}

// Icon draws the 16x16 crosshair tray icon as PNG.
func Icon() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	ink := color.RGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff}
	for i := 2; i < 14; i++ {
		img.Set(i, 7, ink)
		img.Set(7, i, ink)
	}
	for i := 3; i < 12; i++ {
		img.Set(i, 3, ink)
		img.Set(i, 11, ink)
		img.Set(3, i, ink)
		img.Set(11, i, ink)
	}
	return screenshot.EncodePNG(img)
}
