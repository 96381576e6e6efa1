// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel provides the pausable worker pool that drives neb renders.
//
// A Pool runs a fixed set of worker goroutines that consume items from one
// shared, unbounded FIFO queue. Callers can quiesce the pool at any moment:
//
//   - Pause parks every worker and returns once all of them have parked
//     (the quorum). Resume releases them.
//   - Stop parks every worker indefinitely. Start releases them.
//
// Workers only observe pause and stop requests between items, so an item
// that has been dequeued always runs to completion before its worker parks.
// A worker idle on the empty queue parks immediately.
//
// The barrier is a single mutex guarding the queue, the request flags and the
// parked counter. Workers wait on one condition variable and the controller on
// another; the worker whose arrival brings the parked count to the pool size
// wakes the controller, which re-checks the count under the same mutex.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	// ErrClosed is returned by operations on a closed pool.
	ErrClosed = errors.New("parallel: pool closed")

	// ErrPausing is returned by Pause when another pause is already in effect.
	ErrPausing = errors.New("parallel: pause already in effect")
)

// WorkerState is the run state of a single worker goroutine.
type WorkerState uint8

const (
	// Running means the worker is executing items or waiting on the queue.
	Running WorkerState = iota

	// ParkedPaused means the worker parked for a pause request.
	ParkedPaused

	// ParkedStopped means the worker parked for a stop request.
	ParkedStopped

	// Exited means the worker goroutine has returned after Close.
	Exited
)

// String returns the state name.
func (s WorkerState) String() string {
	switch s {
	case Running:
		return "running"
	case ParkedPaused:
		return "parked-paused"
	case ParkedStopped:
		return "parked-stopped"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("WorkerState(%d)", uint8(s))
	}
}

// PanicError wraps a value recovered from a panicking item.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: item panicked: %v", e.Value)
}

// Pool is a fixed set of goroutines consuming a shared FIFO queue.
//
// Thread safety: Pool is safe for concurrent use. Pause, Resume, Stop and
// Start are expected to be issued by a single controller at a time; Pause
// returns ErrPausing rather than nesting.
type Pool[T any] struct {
	// workers is the number of worker goroutines.
	workers int

	run     func(T) error
	onError func(T, error)

	mu sync.Mutex

	// avail wakes workers waiting on an empty queue.
	avail *sync.Cond

	// release wakes parked workers.
	release *sync.Cond

	// quorum wakes the controller waiting for workers to park.
	quorum *sync.Cond

	queue   queue[T]
	paused  bool
	stopped bool
	closed  bool
	parked  int
	active  int
	states  []WorkerState

	wg sync.WaitGroup
}

// NewPool creates a pool with the given number of workers and starts them.
// If workers is 0 or negative, GOMAXPROCS is used.
//
// run is invoked for every dequeued item. A non-nil error, or a panic
// recovered as *PanicError, is passed to onError (if non-nil) on the same
// worker goroutine. Neither callback may call Pause or Stop.
func NewPool[T any](workers int, run func(T) error, onError func(T, error)) *Pool[T] {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool[T]{
		workers: workers,
		run:     run,
		onError: onError,
		states:  make([]WorkerState, workers),
	}
	p.avail = sync.NewCond(&p.mu)
	p.release = sync.NewCond(&p.mu)
	p.quorum = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

// worker is the main loop for each worker goroutine.
func (p *Pool[T]) worker(id int) {
	defer p.wg.Done()

	p.mu.Lock()
	for {
		if p.closed {
			p.states[id] = Exited
			p.mu.Unlock()
			return
		}
		if p.paused || p.stopped {
			p.park(id)
			continue
		}

		item, ok := p.queue.pop()
		if !ok {
			p.avail.Wait()
			continue
		}

		p.active++
		p.mu.Unlock()
		p.execute(item)
		p.mu.Lock()
		p.active--
	}
}

// park blocks the worker until neither a pause nor a stop is in effect.
// Must be called with p.mu held.
func (p *Pool[T]) park(id int) {
	p.parked++
	if p.parked == p.workers {
		p.quorum.Broadcast()
	}
	for (p.paused || p.stopped) && !p.closed {
		if p.stopped {
			p.states[id] = ParkedStopped
		} else {
			p.states[id] = ParkedPaused
		}
		p.release.Wait()
	}
	p.parked--
	p.states[id] = Running
}

// execute runs one item, converting panics into *PanicError.
func (p *Pool[T]) execute(item T) {
	if err := p.safeRun(item); err != nil && p.onError != nil {
		p.onError(item, err)
	}
}

func (p *Pool[T]) safeRun(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return p.run(item)
}

// Submit appends an item to the queue. It never blocks on queue capacity.
// Returns false if the pool is closed.
func (p *Pool[T]) Submit(item T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.queue.push(item)
	p.avail.Signal()
	return true
}

// Pause requests every worker to park and waits until all of them have.
// Items already dequeued finish before their worker parks; queued items stay
// queued. If ctx ends before the quorum is reached, the pause is withdrawn
// and ctx.Err() is returned.
func (p *Pool[T]) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.paused {
		return ErrPausing
	}

	p.paused = true
	p.avail.Broadcast()

	if err := p.awaitQuorum(ctx); err != nil {
		p.paused = false
		p.release.Broadcast()
		return err
	}
	return nil
}

// Resume withdraws a pause. Workers stay parked if a stop is in effect.
func (p *Pool[T]) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = false
	p.release.Broadcast()
}

// Stop requests every worker to park indefinitely and waits until all of them
// have. Stop is idempotent. If ctx ends first the stop stays requested and
// ctx.Err() is returned.
func (p *Pool[T]) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.stopped = true
	p.avail.Broadcast()
	p.release.Broadcast() // relabel workers already parked for a pause
	return p.awaitQuorum(ctx)
}

// Start withdraws a stop. Start is idempotent.
func (p *Pool[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = false
	p.release.Broadcast()
}

// awaitQuorum waits until every worker has parked. Must be called with p.mu held.
func (p *Pool[T]) awaitQuorum(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.quorum.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	for p.parked < p.workers {
		if p.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.quorum.Wait()
	}
	return nil
}

// Drain removes every queued item for which match returns true and returns
// the number removed. Items currently executing are not affected.
func (p *Pool[T]) Drain(match func(T) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.queue.filter(func(item T) bool { return !match(item) })
}

// Close stops all workers and discards queued items. Items currently
// executing finish first. Close is safe to call multiple times.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.queue.reset()
	p.avail.Broadcast()
	p.release.Broadcast()
	p.quorum.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool[T]) Workers() int {
	return p.workers
}

// Len returns the number of queued items.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// Active returns the number of items currently executing.
func (p *Pool[T]) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Parked returns the number of parked workers.
func (p *Pool[T]) Parked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parked
}

// Paused reports whether a pause is in effect (including one still waiting
// for its quorum).
func (p *Pool[T]) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Stopped reports whether a stop is in effect.
func (p *Pool[T]) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// IsRunning returns true until the pool is closed.
func (p *Pool[T]) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// States returns a copy of every worker's current state.
func (p *Pool[T]) States() []WorkerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make([]WorkerState, len(p.states))
	copy(states, p.states)
	return states
}
