// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import "time"

// RenderInfo describes one render session.
type RenderInfo struct {
	// ID uniquely identifies the render.
	ID string

	Algorithm string
	Width     int
	Height    int

	// Workers is the pool size the render was partitioned for.
	Workers int

	// Multiplier is the number of negatives per worker.
	Multiplier int

	// IterationGoal is the number of increments per negative.
	IterationGoal int

	// Negatives is Workers * Multiplier.
	Negatives int

	StartedAt time.Time

	// Elapsed is set once the render has ended or aborted.
	Elapsed time.Duration
}

// Progress reports one completed increment that re-enqueued its task.
type Progress struct {
	// ID is the render ID.
	ID string

	// Negative is the index of the negative the increment ran on.
	Negative int

	// Iteration is the number of increments completed on that negative.
	Iteration int

	// Goal is the number of increments that develop the negative.
	Goal int

	// Developed is the number of developed negatives so far.
	Developed int

	// Total is the number of negatives in the render.
	Total int
}

// Listener receives engine notifications.
//
// Within one render the order is RenderStarted, then any number of Progress
// and RenderPaused/RenderResumed pairs, then exactly one of RenderEnded or
// ErrorOccurred. Nothing for that render follows the terminal notification.
//
// Methods are called from worker goroutines and from the goroutine calling
// the engine, one at a time per render. They may call Status and the getters
// but must not call Snapshot, Stop, Start or Close, which wait for the workers,
// nor Render, which waits for the previous render's terminal notification.
type Listener interface {
	RenderStarted(info RenderInfo)
	Progress(p Progress)
	RenderPaused(info RenderInfo)
	RenderResumed(info RenderInfo)
	RenderEnded(info RenderInfo)
	ErrorOccurred(info RenderInfo, err error)

	// AlgorithmSet reports a new algorithm and its default parameters.
	AlgorithmSet(name string, parameters *Parameters)
	ParametersSet(parameters *Parameters)
	ParametersReset(parameters *Parameters)

	// Log carries human-readable render details.
	Log(message string)
}

// NopListener ignores every notification. Embed it to implement only the
// methods you need.
type NopListener struct{}

func (NopListener) RenderStarted(RenderInfo)         {}
func (NopListener) Progress(Progress)                {}
func (NopListener) RenderPaused(RenderInfo)          {}
func (NopListener) RenderResumed(RenderInfo)         {}
func (NopListener) RenderEnded(RenderInfo)           {}
func (NopListener) ErrorOccurred(RenderInfo, error)  {}
func (NopListener) AlgorithmSet(string, *Parameters) {}
func (NopListener) ParametersSet(*Parameters)        {}
func (NopListener) ParametersReset(*Parameters)      {}
func (NopListener) Log(string)                       {}
