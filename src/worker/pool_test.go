package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitPreservesPerKeyOrder(t *testing.T) {
	p := New(4, 100, DropNewest)
	var mu sync.Mutex
	got := map[string][]int{}
	for i := 0; i < 50; i++ {
		i := i
		for _, key := range []string{"a", "b"} {
			key := key
			p.Submit(key, Job{Run: func() {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
			}})
		}
	}
	p.Close()

	for _, key := range []string{"a", "b"} {
		if len(got[key]) != 50 {
			t.Fatalf("key %s ran %d jobs, expected 50", key, len(got[key]))
		}
		for i, v := range got[key] {
			if v != i {
				t.Fatalf("key %s out of order at %d: %v", key, i, got[key])
			}
		}
	}
}

func TestSubmitRespectsWorkerLimit(t *testing.T) {
	p := New(2, 10, DropNewest)
	var cur, peak int32
	for i := 0; i < 8; i++ {
		key := string(rune('a' + i))
		p.Submit(key, Job{Run: func() {
			n := atomic.AddInt32(&cur, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&cur, -1)
		}})
	}
	p.Close()
	if peak > 2 {
		t.Errorf("peak concurrency %d exceeds 2", peak)
	}
}

// blockKey occupies key with a running job until release is closed.
func blockKey(p *Pool, key string) (release chan struct{}) {
	started := make(chan struct{})
	release = make(chan struct{})
	p.Submit(key, Job{Run: func() {
		close(started)
		<-release
	}})
	<-started
	return release
}

func TestDropNewest(t *testing.T) {
	p := New(1, 2, DropNewest)
	release := blockKey(p, "k")

	var ran, dropped []int
	var mu sync.Mutex
	for i := 0; i < 4; i++ {
		i := i
		ok := p.Submit("k", Job{
			Run:  func() { mu.Lock(); ran = append(ran, i); mu.Unlock() },
			Drop: func() { dropped = append(dropped, i) },
		})
		if want := i < 2; ok != want {
			t.Errorf("Submit(%d) = %v, expected %v", i, ok, want)
		}
	}
	if p.Pending("k") != 2 {
		t.Errorf("pending = %d, expected 2", p.Pending("k"))
	}
	close(release)
	p.Close()

	if len(ran) != 2 || ran[0] != 0 || ran[1] != 1 {
		t.Errorf("ran %v, expected [0 1]", ran)
	}
	if len(dropped) != 2 || dropped[0] != 2 || dropped[1] != 3 {
		t.Errorf("dropped %v, expected [2 3]", dropped)
	}
}

func TestDropOldest(t *testing.T) {
	p := New(1, 2, DropOldest)
	release := blockKey(p, "k")

	var ran, dropped []int
	var mu sync.Mutex
	for i := 0; i < 4; i++ {
		i := i
		if !p.Submit("k", Job{
			Run:  func() { mu.Lock(); ran = append(ran, i); mu.Unlock() },
			Drop: func() { dropped = append(dropped, i) },
		}) {
			t.Errorf("Submit(%d) refused under drop-oldest", i)
		}
	}
	close(release)
	p.Close()

	if len(ran) != 2 || ran[0] != 2 || ran[1] != 3 {
		t.Errorf("ran %v, expected [2 3]", ran)
	}
	if len(dropped) != 2 || dropped[0] != 0 || dropped[1] != 1 {
		t.Errorf("dropped %v, expected [0 1]", dropped)
	}
}

func TestCloseDrainsAndRefuses(t *testing.T) {
	p := New(1, 10, DropNewest)
	var n int32
	for i := 0; i < 5; i++ {
		p.Submit("k", Job{Run: func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&n, 1)
		}})
	}
	p.Close()
	if n != 5 {
		t.Fatalf("ran %d jobs before Close returned, expected 5", n)
	}

	dropped := false
	if p.Submit("k", Job{Run: func() {}, Drop: func() { dropped = true }}) {
		t.Error("Submit after Close should be refused")
	}
	if !dropped {
		t.Error("Drop should be called for refused job")
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": DropNewest, "drop-newest": DropNewest, "drop-oldest": DropOldest} {
		if got, err := ParsePolicy(in); err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("random"); err == nil {
		t.Error("expected error")
	}
}
