// Package queue runs deferred order submissions through a two-tier
// rate limiter. Smart orders pace at a strict interval so position
// reads stay consistent between submissions; regular orders share a
// sliding-window broker rate limit. Smart orders always dispatch first.
package queue

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultSmartDelay = time.Second
	defaultWindowSize = 10
	pollInterval      = 50 * time.Millisecond
)

// Job is one deferred submission. The queue controls only the timing;
// the job does the work and reports its own outcome.
type Job func(ctx context.Context)

// Queue is the background dispatcher. The zero value is usable; the
// dispatcher goroutine starts lazily on the first enqueue.
type Queue struct {
	// SmartDelay is the minimum gap between smart dispatches.
	SmartDelay time.Duration
	// WindowPerSecond caps regular dispatches in any one-second
	// sliding window.
	WindowPerSecond int

	mu      sync.Mutex
	smart   []Job
	regular []Job
	started bool

	lastSmart time.Time
	recent    []time.Time // regular dispatch timestamps inside the window
}

// New builds a queue with explicit pacing. Zero values fall back to
// one smart order per second and ten regular orders per second.
func New(smartDelay time.Duration, windowPerSecond int) *Queue {
	return &Queue{SmartDelay: smartDelay, WindowPerSecond: windowPerSecond}
}

// EnqueueSmart adds a smart order job to the priority tier.
func (q *Queue) EnqueueSmart(job Job) {
	q.mu.Lock()
	q.smart = append(q.smart, job)
	q.start()
	q.mu.Unlock()
}

// Enqueue adds a regular order job.
func (q *Queue) Enqueue(job Job) {
	q.mu.Lock()
	q.regular = append(q.regular, job)
	q.start()
	q.mu.Unlock()
}

// Depth reports the queued job counts (smart, regular).
func (q *Queue) Depth() (int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.smart), len(q.regular)
}

// start launches the dispatcher once. Caller holds q.mu.
func (q *Queue) start() {
	if q.started {
		return
	}
	q.started = true
	go q.run()
	log.Printf("[queue] dispatcher started")
}

func (q *Queue) run() {
	for {
		job := q.next()
		if job == nil {
			time.Sleep(pollInterval)
			continue
		}
		job(context.Background())
	}
}

// next pops the first dispatchable job, honoring smart priority and
// both rate limits. Returns nil when nothing may run yet.
func (q *Queue) next() Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	if len(q.smart) > 0 && now.Sub(q.lastSmart) >= q.smartDelay() {
		job := q.smart[0]
		q.smart = q.smart[1:]
		q.lastSmart = now
		return job
	}

	if len(q.regular) > 0 && q.windowAllows(now) {
		job := q.regular[0]
		q.regular = q.regular[1:]
		q.recent = append(q.recent, now)
		return job
	}
	return nil
}

// windowAllows prunes timestamps older than one second and checks the
// sliding-window cap. Caller holds q.mu.
func (q *Queue) windowAllows(now time.Time) bool {
	cutoff := now.Add(-time.Second)
	kept := q.recent[:0]
	for _, ts := range q.recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	q.recent = kept
	return len(q.recent) < q.windowSize()
}

func (q *Queue) smartDelay() time.Duration {
	if q.SmartDelay > 0 {
		return q.SmartDelay
	}
	return defaultSmartDelay
}

func (q *Queue) windowSize() int {
	if q.WindowPerSecond > 0 {
		return q.WindowPerSecond
	}
	return defaultWindowSize
}
