// Package coordinator correlates the latest search query with each click and
// hands labelled captures to the dataset writer. All state is owned by the
// goroutine running Run; producers talk to it through a single intake channel.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"character-hunter/src/clicks"
	"character-hunter/src/dataset"
	"character-hunter/src/label"
	"character-hunter/src/logutil"
	"character-hunter/src/messages"
	"character-hunter/src/query"
	"character-hunter/src/worker"
)

// State of the active label.
type State int

const (
	StateIdle State = iota
	StateActive
	StateStale
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateStale:
		return "stale"
	}
	return "idle"
}

// Persister writes one capture record.
type Persister interface {
	Persist(dataset.CaptureRecord) dataset.Result
}

// Counters are cumulative since start.
type Counters struct {
	Queries    int `json:"queries"`
	Rejected   int `json:"rejected"`
	Clicks     int `json:"clicks"`
	Ignored    int `json:"ignored"`
	Saved      int `json:"saved"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Dropped    int `json:"dropped"`
}

// Snapshot is the read-only view polled by presentation collaborators.
type Snapshot struct {
	State       string    `json:"state"`
	Subject     string    `json:"subject,omitempty"`
	Source      string    `json:"source,omitempty"`
	Query       string    `json:"query,omitempty"`
	Since       time.Time `json:"since,omitempty"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastPath    string    `json:"last_path,omitempty"`
	Counters    Counters  `json:"counters"`
}

// Options tune the coordinator.
type Options struct {
	// Freshness is how long an accepted query labels clicks. Default 2 minutes.
	Freshness           time.Duration
	AcceptLowConfidence bool
	IntakeSize          int
	Session             string
}

type Coordinator struct {
	opts   Options
	writer Persister
	pool   *worker.Pool
	now    func() time.Time

	intake chan messages.Message
	done   chan struct{}
	once   sync.Once

	// Owned by the Run goroutine.
	active   label.Label
	query    string
	since    time.Time
	hasLabel bool
	seq      int64

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a coordinator. With a nil pool records are persisted inline on
// the coordinator goroutine.
func New(opts Options, writer Persister, pool *worker.Pool) *Coordinator {
	if opts.Freshness <= 0 {
		opts.Freshness = 2 * time.Minute
	}
	if opts.IntakeSize <= 0 {
		opts.IntakeSize = 64
	}
	return &Coordinator{
		opts:   opts,
		writer: writer,
		pool:   pool,
		now:    time.Now,
		intake: make(chan messages.Message, opts.IntakeSize),
		done:   make(chan struct{}),
		snap:   Snapshot{State: StateIdle.String()},
	}
}

// PostQuery queues a recognized query. It blocks while the intake is full
// and gives up once the coordinator has stopped.
func (c *Coordinator) PostQuery(q query.RecognizedQuery) {
	select {
	case c.intake <- messages.QueryObserved{Query: q}:
	case <-c.done:
	}
}

// PostClick queues a capture without blocking; it reports false if the click
// was dropped because the intake is full or the coordinator has stopped.
func (c *Coordinator) PostClick(cp clicks.Capture) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.intake <- messages.ClickCaptured{Capture: cp}:
		return true
	default:
		log.Printf("Coordinator: intake full, dropping click at (%d,%d)", cp.Event.X, cp.Event.Y)
		c.update(func(s *Snapshot) {
			s.Counters.Clicks++
			s.Counters.Dropped++
			s.LastOutcome = dataset.OutcomeDropped.String()
		})
		return false
	}
}

func (c *Coordinator) postResult(res dataset.Result) {
	select {
	case c.intake <- messages.WriteComplete{Result: res}:
	case <-c.done:
	}
}

// Run processes the intake until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.once.Do(func() { close(c.done) })
	log.Printf("Coordinator: running (freshness %v)", c.opts.Freshness)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Coordinator: stopped")
			return nil
		case msg := <-c.intake:
			c.Handle(msg)
		}
	}
}

// Handle applies one message. It must only be called from a single
// goroutine: Run's, or a test's in place of Run.
func (c *Coordinator) Handle(msg messages.Message) {
	switch m := msg.(type) {
	case messages.QueryObserved:
		c.handleQuery(m.Query)
	case messages.ClickCaptured:
		c.handleClick(m.Capture)
	case messages.WriteComplete:
		c.handleResult(m.Result)
	default:
		log.Printf("Coordinator: unknown message %T", msg)
	}
}

func (c *Coordinator) handleQuery(q query.RecognizedQuery) {
	if q.Confidence == query.ConfidenceLow && !c.opts.AcceptLowConfidence {
		log.Printf("Coordinator: ignoring low-confidence query %q", logutil.SanitizeForLog(q.Text))
		c.update(func(s *Snapshot) {
			s.Counters.Queries++
			s.Counters.Rejected++
		})
		return
	}
	l, err := label.Parse(q.Text)
	if err != nil {
		log.Printf("Coordinator: %v: %q", err, logutil.SanitizeForLog(q.Text))
		c.update(func(s *Snapshot) {
			s.Counters.Queries++
			s.Counters.Rejected++
		})
		return
	}

	c.active, c.query, c.since, c.hasLabel = l, q.Text, q.ObservedAt, true
	log.Printf("Coordinator: active label %s", l)
	c.update(func(s *Snapshot) {
		s.Counters.Queries++
		s.State = StateActive.String()
		s.Subject, s.Source, s.Query, s.Since = l.Subject, l.Source, q.Text, q.ObservedAt
	})
}

// stateAt evaluates freshness lazily against the event time.
func (c *Coordinator) stateAt(t time.Time) State {
	if !c.hasLabel {
		return StateIdle
	}
	if t.Sub(c.since) > c.opts.Freshness {
		return StateStale
	}
	return StateActive
}

func (c *Coordinator) handleClick(cp clicks.Capture) {
	// Clicks older than the active label were made under an earlier one.
	if c.hasLabel && cp.Event.OccurredAt.Before(c.since) {
		log.Printf("Coordinator: click predates active label %s, ignored", c.active)
		c.update(func(s *Snapshot) {
			s.Counters.Clicks++
			s.Counters.Ignored++
			s.LastOutcome = "ignored"
		})
		return
	}

	state := c.stateAt(cp.Event.OccurredAt)
	if state != StateActive {
		log.Printf("Coordinator: click ignored, label %s", state)
		c.update(func(s *Snapshot) {
			s.Counters.Clicks++
			s.Counters.Ignored++
			s.State = state.String()
			s.LastOutcome = "ignored"
		})
		return
	}

	c.seq++
	rec := dataset.CaptureRecord{
		Image:      cp.Image,
		Label:      c.active,
		Query:      c.query,
		CapturedAt: cp.Event.OccurredAt,
		SequenceID: c.seq,
		Session:    c.opts.Session,
		Region:     cp.Region,
	}
	c.update(func(s *Snapshot) { s.Counters.Clicks++ })

	if c.pool == nil {
		c.handleResult(c.writer.Persist(rec))
		return
	}
	subject := rec.Label.Subject
	c.pool.Submit(subject, worker.Job{
		Run: func() { c.postResult(c.writer.Persist(rec)) },
		// Drop runs synchronously inside Submit, i.e. on this goroutine.
		Drop: func() {
			c.handleResult(dataset.Result{Outcome: dataset.OutcomeDropped, Subject: subject, SequenceID: rec.SequenceID})
		},
	})
}

func (c *Coordinator) handleResult(res dataset.Result) {
	c.update(func(s *Snapshot) {
		switch res.Outcome {
		case dataset.OutcomeSaved:
			s.Counters.Saved++
			s.LastPath = res.Path
		case dataset.OutcomeDuplicateSkipped:
			s.Counters.Duplicates++
		case dataset.OutcomeFailed:
			s.Counters.Failed++
		case dataset.OutcomeDropped:
			s.Counters.Dropped++
		}
		s.LastOutcome = res.Outcome.String()
	})
}

func (c *Coordinator) update(fn func(*Snapshot)) {
	c.mu.Lock()
	fn(&c.snap)
	c.mu.Unlock()
}

// Snapshot returns the current presentation view. An active label past its
// freshness window is reported as stale.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	s := c.snap
	c.mu.RUnlock()
	if s.State == StateActive.String() && c.now().Sub(s.Since) > c.opts.Freshness {
		s.State = StateStale.String()
	}
	return s
}
