// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

// Algorithm is the strategy an image-synthesis variant implements.
//
// The engine creates Multiplier(workers) negatives per worker, runs Step on each
// of them TaskIterationGoal(workers) times, and reduces them into the positive
// with Combine.
//
// Step is called concurrently on different negatives but never concurrently on
// the same one. Combine is never called while any Step of the same render is
// running. Combine must accept negatives that have had fewer than the goal
// number of steps, including none at all.
type Algorithm interface {
	// Name returns the registry identifier, e.g. "mbrot".
	Name() string

	// Multiplier returns how many negatives to create per worker. Must be >= 1.
	Multiplier(workers int) int

	// TaskIterationGoal returns how many increments develop one negative.
	// Must be >= 1.
	TaskIterationGoal(workers int) int

	// NewNegativeBuffer allocates the working storage of one negative.
	NewNegativeBuffer(width, height int) any

	// Step runs one bounded increment of work on n.
	Step(n *Negative) error

	// Combine reduces all negatives into the positive.
	Combine(negatives []*Negative, positive *Positive) error
}
