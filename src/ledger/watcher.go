package ledger

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reconcileDelay = 200 * time.Millisecond

// Watch follows the dataset tree rooted at root and marks catalog rows as
// removed when their image is deleted or moved away, e.g. by an external
// validator. It returns when ctx is cancelled. onRemoved may be nil.
func Watch(ctx context.Context, l *Ledger, root string, onRemoved func(path string)) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	log.Printf("Ledger: watching %s", root)

	// Rename only reports the old name; a delayed pass catches files that
	// left the tree without a Remove event.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			log.Printf("Ledger: watcher stopped")
			return nil

		case <-reconcileCh:
			if n, err := l.Reconcile(); err != nil {
				log.Printf("Ledger: reconcile failed: %v", err)
			} else if n > 0 {
				log.Printf("Ledger: reconciled %d missing files", n)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						log.Printf("Ledger: watch %s failed: %v", ev.Name, addErr)
					}
					continue
				}
			}
			if !isImage(ev.Name) || ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			changed, err := l.MarkRemoved(ev.Name)
			if err != nil {
				log.Printf("Ledger: %v", err)
				continue
			}
			if changed {
				log.Printf("Ledger: %s removed from dataset", ev.Name)
				if onRemoved != nil {
					onRemoved(ev.Name)
				}
			}
			if ev.Op&fsnotify.Rename != 0 {
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("Ledger: watcher error: %v", watchErr)
		}
	}
}

func isImage(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".tmp-") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
