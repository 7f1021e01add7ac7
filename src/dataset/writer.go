package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"character-hunter/src/imagehash"
	"character-hunter/src/label"
)

// Format is the on-disk image encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

const maxNameAttempts = 1000

// Options configure a Writer. A DedupThreshold <= 0 disables near-duplicate
// rejection.
type Options struct {
	Root           string
	Format         Format
	TargetSize     int
	JPEGQuality    int
	DedupMethod    imagehash.Method
	DedupThreshold float64
	DedupWindow    int
	DedupMaxAge    time.Duration
}

type subjectState struct {
	mu     sync.Mutex
	seq    int
	window *imagehash.Window
}

// Writer persists capture records. Writes for one subject are serialized;
// different subjects proceed in parallel.
type Writer struct {
	opts      Options
	notifiers []Notifier

	mu       sync.Mutex
	subjects map[string]*subjectState
}

func NewWriter(opts Options, notifiers ...Notifier) *Writer {
	if opts.Root == "" {
		opts.Root = "dataset"
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 95
	}
	if opts.DedupMethod == "" {
		opts.DedupMethod = imagehash.MethodDHash
	}
	return &Writer{opts: opts, notifiers: notifiers, subjects: make(map[string]*subjectState)}
}

// Root returns the dataset directory.
func (w *Writer) Root() string { return w.opts.Root }

func (w *Writer) state(subject string) *subjectState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.subjects[subject]
	if !ok {
		st = &subjectState{
			window: imagehash.NewWindow(w.opts.DedupMethod, w.opts.DedupThreshold, w.opts.DedupWindow, w.opts.DedupMaxAge),
		}
		w.subjects[subject] = st
	}
	return st
}

// Persist prepares, deduplicates and writes rec. It never panics on I/O
// problems; failures come back as OutcomeFailed wrapping ErrPersistence.
func (w *Writer) Persist(rec CaptureRecord) Result {
	subject := label.Sanitize(rec.Label.Subject)
	res := Result{Subject: subject, SequenceID: rec.SequenceID}
	if subject == "" || rec.Image == nil {
		return w.fail(res, errors.New("record has no subject or image"))
	}

	st := w.state(subject)
	st.mu.Lock()
	defer st.mu.Unlock()

	img := Prepare(rec.Image, w.opts.TargetSize)
	fp := imagehash.Compute(w.opts.DedupMethod, img)
	if w.opts.DedupThreshold > 0 {
		if sim, dup := st.window.Match(fp, rec.CapturedAt); dup {
			log.Printf("Dataset: skipping near-duplicate for %q (similarity %.3f)", subject, sim)
			res.Outcome = OutcomeDuplicateSkipped
			res.Similarity = sim
			return res
		}
	}

	dir := filepath.Join(w.opts.Root, subject)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return w.fail(res, fmt.Errorf("create %s: %w", dir, err))
	}
	data, err := w.encode(img)
	if err != nil {
		return w.fail(res, fmt.Errorf("encode: %w", err))
	}

	var path string
	for attempt := 0; ; attempt++ {
		if attempt == maxNameAttempts {
			return w.fail(res, fmt.Errorf("no free file name in %s", dir))
		}
		st.seq++
		path = filepath.Join(dir, FileName(subject, rec.CapturedAt, st.seq, w.opts.Format.Ext()))
		err = publish(dir, path, data)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return w.fail(res, err)
		}
		break
	}

	b := img.Bounds()
	meta := Metadata{
		Query:        rec.Query,
		Subject:      subject,
		Source:       rec.Label.Source,
		CapturedAt:   rec.CapturedAt,
		ImageSize:    [2]int{b.Dx(), b.Dy()},
		Region:       rec.Region,
		SequenceID:   rec.SequenceID,
		Session:      rec.Session,
		Preprocessed: true,
	}
	metaPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	if err := writeMetadata(dir, metaPath, meta); err != nil {
		// The image is already published; a missing sidecar is not worth losing it.
		log.Printf("Dataset: metadata for %s not written: %v", path, err)
		metaPath = ""
	}

	st.window.Add(fp, rec.CapturedAt)
	log.Printf("Dataset: saved %s", path)

	entry := Entry{
		Path:       path,
		MetaPath:   metaPath,
		Subject:    subject,
		Source:     rec.Label.Source,
		Query:      rec.Query,
		Session:    rec.Session,
		CapturedAt: rec.CapturedAt,
		SequenceID: rec.SequenceID,
	}
	for _, n := range w.notifiers {
		n.Notify(entry)
	}

	res.Outcome = OutcomeSaved
	res.Path = path
	return res
}

func (w *Writer) fail(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = fmt.Errorf("%w: %w", ErrPersistence, err)
	log.Printf("Dataset: write for %q failed: %v", res.Subject, res.Err)
	return res
}

func (w *Writer) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if w.opts.Format == FormatJPEG {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: w.opts.JPEGQuality})
	} else {
		err = png.Encode(&buf, img)
	}
	return buf.Bytes(), err
}

// FileName builds "<subject>_<YYYYMMDD>_<HHMMSS>_<seq>.<ext>".
func FileName(subject string, at time.Time, seq int, ext string) string {
	return fmt.Sprintf("%s_%s_%03d.%s", subject, at.Format("20060102_150405"), seq, ext)
}

// publish writes data to a temp file in dir and links it to path. It fails
// with fs.ErrExist instead of replacing an existing file.
func publish(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	err = os.Link(tmpName, path)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}
	// Some filesystems refuse hard links; fall back to rename after an
	// existence check.
	if _, statErr := os.Lstat(path); statErr == nil {
		return fs.ErrExist
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

func writeMetadata(dir, path string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return publish(dir, path, data)
}
