package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsJobs(t *testing.T) {
	p := New("test", 2, 4)

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	p.Close()

	if got := count.Load(); got != 10 {
		t.Fatalf("expected 10 jobs run, got %d", got)
	}
}

func TestSubmitInlineWhenQueueFull(t *testing.T) {
	// Single worker blocked on a gate; queue of one fills immediately, so
	// the third submission must run on the calling goroutine.
	p := New("test", 1, 1)
	defer p.Close()

	gate := make(chan struct{})
	p.Submit(func() { <-gate })
	p.Submit(func() {}) // occupies the single queue slot

	callerRan := false
	done := make(chan struct{})
	go func() {
		p.Submit(func() { callerRan = true })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("inline submission blocked; expected caller to execute the job")
	}
	if !callerRan {
		t.Fatal("expected job to run inline on the caller")
	}
	close(gate)
}

func TestCloseDrainsBacklog(t *testing.T) {
	p := New("test", 1, 8)

	var count atomic.Int64
	for i := 0; i < 5; i++ {
		p.Submit(func() {
			time.Sleep(5 * time.Millisecond)
			count.Add(1)
		})
	}
	p.Close()

	if got := count.Load(); got != 5 {
		t.Fatalf("Close returned before backlog drained: %d of 5 jobs ran", got)
	}
}

func TestSubmitAfterCloseRunsInline(t *testing.T) {
	p := New("test", 1, 1)
	p.Close()

	ran := false
	p.Submit(func() { ran = true })
	if !ran {
		t.Fatal("expected inline execution after close")
	}
}

func TestCloseTimeout(t *testing.T) {
	p := New("test", 1, 4)
	p.Submit(func() { time.Sleep(500 * time.Millisecond) })

	if ok := p.CloseTimeout(10 * time.Millisecond); ok {
		t.Fatal("expected timeout while job still running")
	}
}

func TestCloseIdempotent(t *testing.T) {
	p := New("test", 1, 1)
	p.Close()
	p.Close()
}
