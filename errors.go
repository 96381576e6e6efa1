// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import (
	"errors"
	"fmt"

	"github.com/gogpu/neb/internal/params"
)

// Configuration errors. They are returned synchronously and leave the engine
// unchanged.
var (
	// ErrUnknownAlgorithm is returned for an identifier missing from the registry.
	ErrUnknownAlgorithm = errors.New("neb: unknown algorithm")

	// ErrInvalidParameter matches every malformed or out-of-range parameter,
	// including *ParameterError values.
	ErrInvalidParameter = params.ErrInvalid

	// ErrInvalidRaster is returned for a non-positive raster width or height.
	ErrInvalidRaster = errors.New("neb: raster size must be positive")

	// ErrNoAlgorithm is returned by RenderCurrent before SetAlgorithm.
	ErrNoAlgorithm = errors.New("neb: no algorithm set")
)

// Execution faults. They abort the render they occur in.
var (
	// ErrStepFailed matches every *StepError.
	ErrStepFailed = errors.New("neb: step failed")

	// ErrCombineFailed is wrapped by errors from Algorithm.Combine.
	ErrCombineFailed = errors.New("neb: combine failed")
)

// Protocol errors.
var (
	// ErrBusy is returned when a barrier operation (Snapshot, Stop, Start) is
	// in flight and the call cannot wait for it.
	ErrBusy = errors.New("neb: engine busy")

	// ErrRenderInProgress is returned by Render and the configuration setters
	// while a render is running.
	ErrRenderInProgress = errors.New("neb: render in progress")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("neb: engine closed")
)

// ParameterError describes one rejected algorithm parameter.
type ParameterError = params.Error

// StepError reports a failed Algorithm.Step.
type StepError struct {
	// Negative is the index of the negative the step ran on.
	Negative int

	// Iteration is the task iteration that failed (1-based).
	Iteration int

	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("neb: step failed on negative %d, iteration %d: %v", e.Negative, e.Iteration, e.Err)
}

// Unwrap makes errors.Is match both ErrStepFailed and the cause.
func (e *StepError) Unwrap() []error {
	return []error{ErrStepFailed, e.Err}
}
