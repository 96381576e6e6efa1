// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bbrot

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/neb"
	"github.com/gogpu/neb/internal/palette"
)

func mustNew(t *testing.T, kv ...string) *BBrot {
	t.Helper()
	b, err := New(Defaults().Merge(neb.NewParameters(kv...)))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return b
}

// develop builds the negatives the engine would create for workers and runs
// steps increments on each of them.
func develop(t *testing.T, b *BBrot, workers, width, height, steps int) []*neb.Negative {
	t.Helper()
	mult := b.Multiplier(workers)
	negs := make([]*neb.Negative, workers*mult)
	for i := range negs {
		negs[i] = &neb.Negative{
			Buffer: b.NewNegativeBuffer(width, height),
			Data: map[string]any{
				neb.KeyIndex:        i,
				neb.KeyResidueClass: i % mult,
				neb.KeyPartition:    i / mult,
				neb.KeyPartitions:   workers,
			},
		}
	}
	for range steps {
		for _, n := range negs {
			if err := b.Step(n); err != nil {
				t.Fatalf("Step() = %v", err)
			}
		}
	}
	return negs
}

func combine(t *testing.T, b *BBrot, negs []*neb.Negative, width, height int) *neb.Positive {
	t.Helper()
	pos := neb.NewPositive(width, height)
	if err := b.Combine(negs, pos); err != nil {
		t.Fatalf("Combine() = %v", err)
	}
	return pos
}

func TestNewDefaults(t *testing.T) {
	b := mustNew(t)
	p := b.Parameters()
	if p.IterationLimit != 1000 || p.Samples != 200000 || p.ResidueClasses != 4 || p.Seed != 1 || p.Colour != "blue" {
		t.Errorf("Parameters() = %+v", p)
	}
	if b.Multiplier(2) != 4 || b.TaskIterationGoal(2) != Increments {
		t.Errorf("Multiplier/Goal = %d/%d", b.Multiplier(2), b.TaskIterationGoal(2))
	}
	if b.cols*b.rows < p.Samples {
		t.Errorf("strata grid %dx%d smaller than %d samples", b.cols, b.rows, p.Samples)
	}
}

func TestNewRejectsInvalid(t *testing.T) {
	for _, kv := range [][2]string{
		{"residue_classes", "0"},
		{"samples", "0"},
		{"colour", "cyan"},
		{"seed", "-3"},
		{"range_y", "-1"},
	} {
		_, err := New(Defaults().Merge(neb.NewParameters(kv[0], kv[1])))
		var perr *neb.ParameterError
		if !errors.As(err, &perr) || perr.Name != kv[0] {
			t.Errorf("New(%s=%s) = %v, want ParameterError for %s", kv[0], kv[1], err, kv[0])
		}
	}
}

func TestSampleSharesPartitionTheSamples(t *testing.T) {
	for _, tt := range []struct{ total, stride int }{
		{200000, 8}, {10, 3}, {5, 8}, {1, 1}, {7, 7},
	} {
		sum := 0
		for i := range tt.stride {
			sum += sampleCount(tt.total, i, tt.stride)
		}
		if sum != tt.total {
			t.Errorf("sampleCount shares of %d over %d sum to %d", tt.total, tt.stride, sum)
		}
	}
}

func TestPermutation(t *testing.T) {
	p := permutation(1000, 7)
	sorted := slices.Clone(p)
	slices.Sort(sorted)
	for i, v := range sorted {
		if int(v) != i {
			t.Fatalf("permutation is missing %d", i)
		}
	}
	if !slices.Equal(p, permutation(1000, 7)) {
		t.Error("permutation is not deterministic for a seed")
	}
	if slices.Equal(p, permutation(1000, 8)) {
		t.Error("different seeds produced the same permutation")
	}
}

func TestStepConsumesShareInIncrements(t *testing.T) {
	b := mustNew(t, "samples", "1000", "iteration_limit", "50", "residue_classes", "2")
	negs := develop(t, b, 3, 16, 16, 1)

	for i, n := range negs {
		share := sampleCount(1000, i, 6)
		want := (share + Increments - 1) / Increments
		if got := n.Int(keyCursor, -1); got != want {
			t.Errorf("negative %d after 1 increment: cursor %d, want %d", i, got, want)
		}
	}

	for range Increments - 1 {
		for _, n := range negs {
			_ = b.Step(n)
		}
	}
	for i, n := range negs {
		if got, want := n.Int(keyCursor, -1), sampleCount(1000, i, 6); got != want {
			t.Errorf("negative %d developed: cursor %d, want %d", i, got, want)
		}
	}
}

func TestCombineZeroProgressIsBlack(t *testing.T) {
	b := mustNew(t, "samples", "100")
	pos := combine(t, b, develop(t, b, 2, 8, 8, 0), 8, 8)
	for i, c := range pos.Pix() {
		if c != palette.Black {
			t.Fatalf("pixel %d = %#08x, want black", i, c)
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	args := []string{"samples", "3000", "iteration_limit", "200", "seed", "42"}
	first := combine(t, mustNew(t, args...), develop(t, mustNew(t, args...), 2, 20, 20, Increments), 20, 20)

	b := mustNew(t, args...)
	second := combine(t, b, develop(t, b, 2, 20, 20, Increments), 20, 20)
	if !slices.Equal(first.Pix(), second.Pix()) {
		t.Error("same seed produced different images")
	}

	lit := 0
	for _, c := range second.Pix() {
		if c != palette.Black {
			lit++
		}
	}
	if lit == 0 {
		t.Error("no orbit hits recorded")
	}
}

func TestInCardioid(t *testing.T) {
	for _, tt := range []struct {
		c    complex128
		want bool
	}{
		{0, true},
		{-0.5, true},
		{-1, true},
		{0.3, false},
		{complex(-0.75, 0.5), false},
		{2, false},
	} {
		if got := inCardioid(tt.c); got != tt.want {
			t.Errorf("inCardioid(%v) = %v, want %v", tt.c, got, tt.want)
		}
	}
}
