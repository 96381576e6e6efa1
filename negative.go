// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

// Keys the engine stores in every Negative's Data before the first Step.
const (
	// KeyIndex is the negative's position in the render, 0..Negatives-1 (int).
	KeyIndex = "index"

	// KeyResidueClass is index mod multiplier (int).
	KeyResidueClass = "residue_class"

	// KeyPartition is index / multiplier: which of the per-class negatives
	// this is, 0..workers-1 (int).
	KeyPartition = "partition"

	// KeyPartitions is the number of negatives per residue class (int).
	KeyPartitions = "partitions"

	// KeyWidth and KeyHeight hold the raster size (int).
	KeyWidth  = "width"
	KeyHeight = "height"
)

// Negative is one independently computable partition of a render.
//
// A negative is owned by whichever worker is running its task; the algorithm
// interprets Buffer and may keep any state it needs in Data.
type Negative struct {
	// Buffer is the storage returned by Algorithm.NewNegativeBuffer.
	Buffer any

	// Data holds engine-provided keys (see KeyIndex) and algorithm metadata.
	Data map[string]any

	index     int
	developed bool
}

func newNegative(buffer any, index int) *Negative {
	return &Negative{
		Buffer: buffer,
		Data:   make(map[string]any, 8),
		index:  index,
	}
}

// Index returns the negative's position in the render.
func (n *Negative) Index() int {
	return n.index
}

// Int returns Data[key] as an int, or def if absent or of another type.
func (n *Negative) Int(key string, def int) int {
	if v, ok := n.Data[key].(int); ok {
		return v
	}
	return def
}

// ResidueClass returns Data[KeyResidueClass].
func (n *Negative) ResidueClass() int {
	return n.Int(KeyResidueClass, 0)
}

// Task schedules the increments of one negative.
//
// A task is in the queue at most once at a time: it is re-enqueued only after
// its previous increment has completed, so no two workers step the same
// negative concurrently.
type Task struct {
	negative  *Negative
	algorithm Algorithm
	session   *session

	// iteration is the increment about to run (1-based); guarded by Engine.mu
	// once the task has been submitted.
	iteration int
	goal      int
}
