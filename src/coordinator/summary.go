package coordinator

import "fmt"

// Summary renders a one-line description for trays and status commands.
func (s Snapshot) Summary() string {
	var head string
	switch s.State {
	case StateActive.String():
		head = "Hunting " + s.label()
	case StateStale.String():
		head = "Stale: " + s.label() + " (search again)"
	default:
		head = "Idle: waiting for a search"
	}
	c := s.Counters
	if c.Saved+c.Duplicates+c.Ignored+c.Failed+c.Dropped == 0 {
		return head
	}
	tail := fmt.Sprintf("saved %d, duplicates %d, ignored %d", c.Saved, c.Duplicates, c.Ignored)
	if c.Failed+c.Dropped > 0 {
		tail += fmt.Sprintf(", failed %d, dropped %d", c.Failed, c.Dropped)
	}
	return head + " | " + tail
}

func (s Snapshot) label() string {
	if s.Source == "" {
		return s.Subject
	}
	return fmt.Sprintf("%s (%s)", s.Subject, s.Source)
}
