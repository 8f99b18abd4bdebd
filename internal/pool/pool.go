// Package pool provides bounded worker pools for background jobs.
//
// A Pool has a fixed worker count and a bounded backlog queue. When the
// backlog is full the submitting goroutine executes the job itself, trading
// latency for guaranteed completion; work is never dropped and the queue
// never grows without bound.
package pool

import (
	"sync"
	"time"
)

// Pool runs jobs on a fixed worker group fed by a bounded queue.
type Pool struct {
	name  string
	queue chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Pool with the given worker count and backlog capacity.
func New(name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		name:  name,
		queue: make(chan func(), queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.queue {
		job()
	}
}

// Name returns the pool's identifier, used in log records.
func (p *Pool) Name() string { return p.name }

// Submit schedules job for execution. If the backlog is full or the pool is
// already closed, job runs synchronously on the calling goroutine.
func (p *Pool) Submit(job func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		job()
		return
	}
	select {
	case p.queue <- job:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		job()
	}
}

// Close stops accepting new jobs and blocks until all queued jobs finish.
// Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// CloseTimeout closes the pool and waits up to d for the backlog to drain.
// Returns false if the deadline passed with jobs still running.
func (p *Pool) CloseTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
