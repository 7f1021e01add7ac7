package messages

import (
	"character-hunter/src/clicks"
	"character-hunter/src/dataset"
	"character-hunter/src/query"
)

// Message is the base interface for everything posted to the coordinator intake.
type Message interface {
	Type() string
}

// MessageType constants for type identification
const (
	TypeQueryObserved = "QueryObserved"
	TypeClickCaptured = "ClickCaptured"
	TypeWriteComplete = "WriteComplete"
)

// QueryObserved - sent by the query watcher when the search text changes
type QueryObserved struct {
	Query query.RecognizedQuery
}

func (m QueryObserved) Type() string { return TypeQueryObserved }

// ClickCaptured - sent by the click listener after a region was grabbed
type ClickCaptured struct {
	Capture clicks.Capture
}

func (m ClickCaptured) Type() string { return TypeClickCaptured }

// WriteComplete - sent by a write worker once a capture was persisted or skipped
type WriteComplete struct {
	Result dataset.Result
}

func (m WriteComplete) Type() string { return TypeWriteComplete }
