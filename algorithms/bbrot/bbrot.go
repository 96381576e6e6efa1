// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bbrot renders Buddhabrot images by stochastic orbit sampling.
//
// The sample space is a grid of strata covering the view. A seeded
// permutation shuffles the strata, and negative i draws the samples whose
// index is congruent to i modulo the number of negatives, so every negative
// covers the whole view with a disjoint share of the samples. Each increment
// processes 1/Increments of a negative's share.
package bbrot

import (
	"math"
	"math/rand/v2"

	"github.com/gogpu/neb"
	"github.com/gogpu/neb/internal/palette"
	"github.com/gogpu/neb/internal/params"
)

// Name is the registry identifier.
const Name = "bbrot"

// Increments is the number of increments that develop one negative.
const Increments = 16

// keyCursor is the Data key holding how many of the negative's samples are done.
const keyCursor = "bbrot.samples_done"

// Parameters are the decoded bbrot parameters.
type Parameters struct {
	MinX           float64 `param:"min_x"`
	MinY           float64 `param:"min_y"`
	RangeX         float64 `param:"range_x" validate:"gt=0"`
	RangeY         float64 `param:"range_y" validate:"gt=0"`
	IterationLimit int     `param:"iteration_limit" validate:"gte=1,lte=1000000"`
	Samples        int     `param:"samples" validate:"gte=1,lte=100000000"`
	Colour         string  `param:"colour" validate:"oneof=red green blue wheel"`
	ResidueClasses int     `param:"residue_classes" validate:"gte=1,lte=256"`
	Seed           uint64  `param:"seed"`
}

// Defaults returns the default parameters in display order.
func Defaults() *neb.Parameters {
	return neb.NewParameters(
		"min_x", "-2.0",
		"min_y", "-1.5",
		"range_x", "3.0",
		"range_y", "3.0",
		"iteration_limit", "1000",
		"samples", "200000",
		"colour", "blue",
		"residue_classes", "4",
		"seed", "1",
	)
}

// Factory registers bbrot with a neb.Registry.
func Factory() neb.Factory {
	return neb.Factory{
		Name:        Name,
		Description: "Buddhabrot orbit density, sampled in residue classes",
		Defaults:    Defaults,
		New: func(p *neb.Parameters) (neb.Algorithm, error) {
			b, err := New(p)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
	}
}

// BBrot is the orbit-density algorithm.
type BBrot struct {
	p     Parameters
	perm  []int32 // stratum visited by each sample index
	cols  int     // strata per row
	rows  int     // strata per column
	paint func(t float64) uint32
}

// New decodes and validates p.
func New(p *neb.Parameters) (*BBrot, error) {
	var dp Parameters
	if err := params.Decode(p, &dp); err != nil {
		return nil, err
	}

	cols := int(math.Ceil(math.Sqrt(float64(dp.Samples))))
	b := &BBrot{
		p:    dp,
		perm: permutation(dp.Samples, dp.Seed),
		cols: cols,
		rows: (dp.Samples + cols - 1) / cols,
	}
	if dp.Colour == "wheel" {
		wheel := palette.Wheel()
		b.paint = func(t float64) uint32 {
			if t == 0 {
				return palette.Black
			}
			return wheel[int(t*(palette.WheelSize-1))]
		}
	} else {
		shift, err := palette.ChannelShift(dp.Colour)
		if err != nil {
			return nil, &params.Error{Name: "colour", Value: dp.Colour, Err: err}
		}
		b.paint = func(t float64) uint32 {
			return palette.Mono(shift, palette.Intensity(t))
		}
	}
	return b, nil
}

// Parameters returns the decoded parameters.
func (b *BBrot) Parameters() Parameters {
	return b.p
}

// Name implements neb.Algorithm.
func (b *BBrot) Name() string { return Name }

// Multiplier implements neb.Algorithm.
func (b *BBrot) Multiplier(int) int { return b.p.ResidueClasses }

// TaskIterationGoal implements neb.Algorithm.
func (b *BBrot) TaskIterationGoal(int) int { return Increments }

// buffer accumulates orbit hits for one negative.
type buffer struct {
	width  int
	height int
	hits   []uint32
	orbit  []complex128
	rng    *rand.Rand
}

// NewNegativeBuffer implements neb.Algorithm. The generator is seeded when
// the negative runs its first increment, once its index is known.
func (b *BBrot) NewNegativeBuffer(width, height int) any {
	return &buffer{
		width:  width,
		height: height,
		hits:   make([]uint32, width*height),
		orbit:  make([]complex128, 0, min(b.p.IterationLimit, 4096)),
	}
}

// Step samples the next share of the negative's orbit seeds.
func (b *BBrot) Step(n *neb.Negative) error {
	buf := n.Buffer.(*buffer)
	index := n.Int(neb.KeyIndex, 0)
	stride := n.Int(neb.KeyPartitions, 1) * b.p.ResidueClasses
	if buf.rng == nil {
		buf.rng = rand.New(rand.NewPCG(b.p.Seed, uint64(index)))
	}

	share := sampleCount(b.p.Samples, index, stride)
	chunk := (share + Increments - 1) / Increments
	done := n.Int(keyCursor, 0)
	end := min(done+chunk, share)

	for j := done; j < end; j++ {
		k := index + j*stride
		b.trace(buf, b.seed(buf.rng, int(b.perm[k])))
	}
	n.Data[keyCursor] = end
	return nil
}

// Combine sums the hit grids and maps the density through a square root.
func (b *BBrot) Combine(negatives []*neb.Negative, positive *neb.Positive) error {
	w, h := positive.Width(), positive.Height()
	total := make([]uint64, w*h)
	var peak uint64

	for _, n := range negatives {
		buf := n.Buffer.(*buffer)
		for i, v := range buf.hits {
			total[i] += uint64(v)
			peak = max(peak, total[i])
		}
	}

	for i, v := range total {
		t := 0.0
		if peak > 0 {
			t = math.Sqrt(float64(v) / float64(peak))
		}
		positive.Set(i%w, i/w, b.paint(t))
	}
	return nil
}

// seed returns a point jittered uniformly within a stratum.
func (b *BBrot) seed(rng *rand.Rand, stratum int) complex128 {
	sx := float64(stratum%b.cols) + rng.Float64()
	sy := float64(stratum/b.cols) + rng.Float64()
	return complex(
		b.p.MinX+sx/float64(b.cols)*b.p.RangeX,
		b.p.MinY+sy/float64(b.rows)*b.p.RangeY,
	)
}

// trace iterates c and, if it escapes within the limit, records every orbit
// point inside the view.
func (b *BBrot) trace(buf *buffer, c complex128) {
	if inCardioid(c) {
		return
	}

	orbit := buf.orbit[:0]
	var z complex128
	escaped := false
	for range b.p.IterationLimit {
		z = z*z + c
		if re, im := real(z), imag(z); re*re+im*im > 4 {
			escaped = true
			break
		}
		orbit = append(orbit, z)
	}
	buf.orbit = orbit[:0]
	if !escaped {
		return
	}

	for _, z := range orbit {
		px := int((real(z) - b.p.MinX) / b.p.RangeX * float64(buf.width))
		py := int((imag(z) - b.p.MinY) / b.p.RangeY * float64(buf.height))
		if px < 0 || px >= buf.width || py < 0 || py >= buf.height {
			continue
		}
		buf.hits[py*buf.width+px]++
	}
}

// inCardioid reports whether c lies in the main cardioid or the period-2
// bulb, where orbits never escape.
func inCardioid(c complex128) bool {
	x, y := real(c), imag(c)
	q := (x-0.25)*(x-0.25) + y*y
	if q*(q+(x-0.25)) <= 0.25*y*y {
		return true
	}
	return (x+1)*(x+1)+y*y <= 1.0/16
}

// sampleCount returns how many of total sample indices are congruent to
// index modulo stride.
func sampleCount(total, index, stride int) int {
	if index >= total {
		return 0
	}
	return (total - index + stride - 1) / stride
}

// permutation returns a seeded Fisher-Yates shuffle of 0..n-1.
func permutation(n int, seed uint64) []int32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	p := make([]int32, n)
	for i := range p {
		p[i] = int32(i)
	}
	rng.Shuffle(n, func(i, j int) { p[i], p[j] = p[j], p[i] })
	return p
}
