// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

// queue is an unbounded FIFO ring buffer.
//
// Thread safety: queue is NOT safe for concurrent use; Pool guards it with its mutex.
type queue[T any] struct {
	items []T
	head  int
	size  int
}

// push appends an item at the tail, growing the ring when full.
func (q *queue[T]) push(item T) {
	if q.size == len(q.items) {
		q.grow()
	}
	q.items[(q.head+q.size)%len(q.items)] = item
	q.size++
}

// pop removes the item at the head. It reports false if the queue is empty.
func (q *queue[T]) pop() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero // release reference for GC
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return item, true
}

// len returns the number of queued items.
func (q *queue[T]) len() int {
	return q.size
}

// filter keeps only the items for which keep returns true, preserving order.
// Returns the number of removed items.
func (q *queue[T]) filter(keep func(T) bool) int {
	if q.size == 0 {
		return 0
	}
	kept := make([]T, 0, len(q.items))
	for i := 0; i < q.size; i++ {
		item := q.items[(q.head+i)%len(q.items)]
		if keep(item) {
			kept = append(kept, item)
		}
	}
	removed := q.size - len(kept)
	q.items = kept[:cap(kept)]
	q.head = 0
	q.size = len(kept)
	return removed
}

// reset discards all items.
func (q *queue[T]) reset() {
	q.items = nil
	q.head = 0
	q.size = 0
}

// grow doubles the ring capacity (minimum 16), unwrapping the contents.
func (q *queue[T]) grow() {
	n := len(q.items) * 2
	if n < 16 {
		n = 16
	}
	items := make([]T, n)
	for i := 0; i < q.size; i++ {
		items[i] = q.items[(q.head+i)%len(q.items)]
	}
	q.items = items
	q.head = 0
}
