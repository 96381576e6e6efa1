// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// countBuf is the negative buffer of countingAlgorithm.
type countBuf struct {
	steps int
	busy  atomic.Bool
}

// countingAlgorithm counts Step calls per negative and checks the engine's
// concurrency guarantees while doing so.
type countingAlgorithm struct {
	multiplier int
	goal       int

	// jitter, if non-zero, sleeps up to this long in every Step.
	jitter time.Duration

	// failAt fails the step whose global sequence number equals it (1-based).
	failAt int64

	running    atomic.Int32
	steps      atomic.Int64
	combines   atomic.Int64
	violations atomic.Int64

	stepHook    func(n *Negative) error
	combineHook func(positive *Positive) error

	mu       sync.Mutex
	combined [][]int // per-Combine snapshot of step counts
}

func newCountingAlgorithm(multiplier, goal int) *countingAlgorithm {
	return &countingAlgorithm{multiplier: multiplier, goal: goal}
}

func (a *countingAlgorithm) Name() string                   { return "counting" }
func (a *countingAlgorithm) Multiplier(int) int             { return a.multiplier }
func (a *countingAlgorithm) TaskIterationGoal(int) int      { return a.goal }
func (a *countingAlgorithm) NewNegativeBuffer(_, _ int) any { return &countBuf{} }

// withJitter makes every Step sleep a random duration up to d.
func (a *countingAlgorithm) withJitter(d time.Duration) *countingAlgorithm {
	a.jitter = d
	return a
}

func (a *countingAlgorithm) Step(n *Negative) error {
	buf := n.Buffer.(*countBuf)
	if !buf.busy.CompareAndSwap(false, true) {
		a.violations.Add(1)
	}
	defer buf.busy.Store(false)

	a.running.Add(1)
	defer a.running.Add(-1)

	seq := a.steps.Add(1)
	if a.jitter > 0 {
		time.Sleep(rand.N(a.jitter))
	}
	if a.failAt > 0 && seq == a.failAt {
		return errors.New("injected step failure")
	}
	if a.stepHook != nil {
		if err := a.stepHook(n); err != nil {
			return err
		}
	}
	buf.steps++
	return nil
}

func (a *countingAlgorithm) Combine(negatives []*Negative, positive *Positive) error {
	if a.running.Load() != 0 {
		a.violations.Add(1)
	}
	a.combines.Add(1)
	if a.combineHook != nil {
		if err := a.combineHook(positive); err != nil {
			return err
		}
	}

	counts := make([]int, len(negatives))
	for i, n := range negatives {
		counts[i] = n.Buffer.(*countBuf).steps
		positive.Set(i%positive.Width(), 0, uint32(counts[i]))
	}
	a.mu.Lock()
	a.combined = append(a.combined, counts)
	a.mu.Unlock()
	return nil
}

// lastCombined returns the step counts seen by the most recent Combine.
func (a *countingAlgorithm) lastCombined() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.combined) == 0 {
		return nil
	}
	return a.combined[len(a.combined)-1]
}

// recordingListener records notifications as short strings.
type recordingListener struct {
	NopListener

	mu     sync.Mutex
	events []string
	errs   []error
	logs   []string
	ended  chan struct{}
	once   sync.Once
	onStep func(Progress)
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ended: make(chan struct{})}
}

func (l *recordingListener) add(ev string) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *recordingListener) RenderStarted(RenderInfo) { l.add("started") }
func (l *recordingListener) RenderPaused(RenderInfo)  { l.add("paused") }
func (l *recordingListener) RenderResumed(RenderInfo) { l.add("resumed") }

func (l *recordingListener) Progress(p Progress) {
	l.add("progress")
	if l.onStep != nil {
		l.onStep(p)
	}
}

func (l *recordingListener) RenderEnded(RenderInfo) {
	l.add("ended")
	l.once.Do(func() { close(l.ended) })
}

func (l *recordingListener) ErrorOccurred(_ RenderInfo, err error) {
	l.add("error")
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
	l.once.Do(func() { close(l.ended) })
}

func (l *recordingListener) AlgorithmSet(name string, _ *Parameters) { l.add("algorithm:" + name) }
func (l *recordingListener) ParametersSet(*Parameters)               { l.add("parameters") }
func (l *recordingListener) ParametersReset(*Parameters)             { l.add("reset") }

func (l *recordingListener) Log(msg string) {
	l.mu.Lock()
	l.logs = append(l.logs, msg)
	l.mu.Unlock()
}

// lifecycle returns a copy of the recorded events, excluding progress.
func (l *recordingListener) lifecycle() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, ev := range l.events {
		if ev != "progress" {
			out = append(out, ev)
		}
	}
	return out
}

func (l *recordingListener) count(ev string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.events {
		if e == ev {
			n++
		}
	}
	return n
}

func (l *recordingListener) errorList() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

// testFactory registers countingAlgorithm under "counting" with parameters
// multiplier and goal.
func testFactory() Factory {
	return Factory{
		Name:        "counting",
		Description: "counts steps",
		Defaults: func() *Parameters {
			return NewParameters("multiplier", "1", "goal", "2")
		},
		New: func(p *Parameters) (Algorithm, error) {
			var m, g int
			mv, _ := p.Get("multiplier")
			gv, _ := p.Get("goal")
			if _, err := fmt.Sscan(mv, &m); err != nil || m < 1 {
				return nil, &ParameterError{Name: "multiplier", Value: mv, Err: errors.New("must be a positive integer")}
			}
			if _, err := fmt.Sscan(gv, &g); err != nil || g < 1 {
				return nil, &ParameterError{Name: "goal", Value: gv, Err: errors.New("must be a positive integer")}
			}
			return newCountingAlgorithm(m, g), nil
		},
	}
}
