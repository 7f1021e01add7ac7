package worker

import (
	"fmt"
	"log"
	"runtime"
	"sync"
)

// Policy decides which job is dropped when a key's queue is full.
type Policy int

const (
	// DropNewest refuses the job being submitted.
	DropNewest Policy = iota
	// DropOldest evicts the oldest queued job to make room.
	DropOldest
)

// ParsePolicy maps "drop-newest" / "drop-oldest" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop-newest":
		return DropNewest, nil
	case "drop-oldest":
		return DropOldest, nil
	}
	return DropNewest, fmt.Errorf("unknown drop policy %q", s)
}

func (p Policy) String() string {
	if p == DropOldest {
		return "drop-oldest"
	}
	return "drop-newest"
}

// Job is a unit of work. Drop is invoked instead of Run when the job is
// discarded by back-pressure; it may be nil.
type Job struct {
	Run  func()
	Drop func()
}

// Pool runs jobs on at most size goroutines at once. Jobs sharing a key run
// one at a time in submission order; each key holds at most limit waiting jobs.
type Pool struct {
	mu      sync.Mutex
	queues  map[string][]Job
	running map[string]bool
	closed  bool

	sem    chan struct{}
	limit  int
	policy Policy
	wg     sync.WaitGroup
}

// New creates a pool. size defaults to NumCPU and limit to 8 when <= 0.
func New(size, limit int, policy Policy) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if limit <= 0 {
		limit = 8
	}
	return &Pool{
		queues:  make(map[string][]Job),
		running: make(map[string]bool),
		sem:     make(chan struct{}, size),
		limit:   limit,
		policy:  policy,
	}
}

// Submit enqueues j under key. It returns false if j itself was dropped.
// Drop callbacks run synchronously on the caller's goroutine.
func (p *Pool) Submit(key string, j Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		dropJob(j)
		return false
	}

	q := p.queues[key]
	var evicted *Job
	if len(q) >= p.limit {
		if p.policy == DropNewest {
			p.mu.Unlock()
			log.Printf("Worker: queue for %q full (%d), dropping newest", key, p.limit)
			dropJob(j)
			return false
		}
		oldest := q[0]
		evicted = &oldest
		q = q[1:]
	}
	p.queues[key] = append(q, j)
	if !p.running[key] {
		p.running[key] = true
		p.wg.Add(1)
		go p.drain(key)
	}
	p.mu.Unlock()

	if evicted != nil {
		log.Printf("Worker: queue for %q full (%d), dropping oldest", key, p.limit)
		dropJob(*evicted)
	}
	return true
}

// Pending returns the number of queued (not yet running) jobs for key.
func (p *Pool) Pending(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[key])
}

func (p *Pool) drain(key string) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		q := p.queues[key]
		if len(q) == 0 {
			delete(p.queues, key)
			delete(p.running, key)
			p.mu.Unlock()
			return
		}
		j := q[0]
		p.queues[key] = q[1:]
		p.mu.Unlock()

		p.sem <- struct{}{}
		j.Run()
		<-p.sem
	}
}

// Close refuses new work and waits for queued and running jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func dropJob(j Job) {
	if j.Drop != nil {
		j.Drop()
	}
}
