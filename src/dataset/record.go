// Package dataset persists labelled captures under one folder per subject.
package dataset

import (
	"errors"
	"image"
	"time"

	"character-hunter/src/label"
	"character-hunter/src/screenshot"
)

// ErrPersistence wraps every filesystem or encoding failure of a write.
var ErrPersistence = errors.New("persistence failure")

// CaptureRecord is one labelled click capture handed to the writer.
type CaptureRecord struct {
	Image      image.Image
	Label      label.Label
	Query      string
	CapturedAt time.Time
	SequenceID int64
	Session    string
	Region     screenshot.Region
}

// Outcome classifies what happened to a record.
type Outcome int

const (
	OutcomeSaved Outcome = iota
	OutcomeDuplicateSkipped
	OutcomeFailed
	// OutcomeDropped means the record never reached the writer because its
	// subject queue was full.
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeDuplicateSkipped:
		return "duplicate-skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeDropped:
		return "dropped"
	}
	return "unknown"
}

// Result reports the outcome of one Persist call.
type Result struct {
	Outcome    Outcome
	Subject    string
	Path       string
	SequenceID int64
	Similarity float64
	Err        error
}

// Entry describes a published dataset file.
type Entry struct {
	Path       string    `json:"path"`
	MetaPath   string    `json:"meta_path"`
	Subject    string    `json:"subject"`
	Source     string    `json:"source"`
	Query      string    `json:"query"`
	Session    string    `json:"session"`
	CapturedAt time.Time `json:"captured_at"`
	SequenceID int64     `json:"sequence_id"`
}

// Notifier is told about every saved entry. Implementations must not block
// for long; they run on the write worker.
type Notifier interface {
	Notify(Entry)
}

// Metadata is the JSON sidecar written next to each image.
type Metadata struct {
	Query        string            `json:"search_query"`
	Subject      string            `json:"subject"`
	Source       string            `json:"source,omitempty"`
	CapturedAt   time.Time         `json:"captured_at"`
	ImageSize    [2]int            `json:"image_size"`
	Region       screenshot.Region `json:"region"`
	SequenceID   int64             `json:"sequence_id"`
	Session      string            `json:"session,omitempty"`
	Preprocessed bool              `json:"preprocessed"`
}
