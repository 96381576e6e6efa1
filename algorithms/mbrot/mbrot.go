// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mbrot renders escape-time Mandelbrot and Multibrot sets.
//
// The aa parameter is the negative multiplier: every residue class samples
// the whole raster at its own sub-pixel offset, and Combine averages the
// samples of a pixel. Within a class the rows are interleaved across the
// per-class negatives, and each increment computes one band of a negative's
// rows.
package mbrot

import (
	"math"

	"github.com/gogpu/neb"
	"github.com/gogpu/neb/internal/palette"
	"github.com/gogpu/neb/internal/params"
)

// Name is the registry identifier.
const Name = "mbrot"

// Bands is the number of increments that develop one negative.
const Bands = 8

// keyCursor is the Data key holding how many of the negative's rows are done.
const keyCursor = "mbrot.rows_done"

// Parameters are the decoded mbrot parameters.
type Parameters struct {
	MinX           float64 `param:"min_x"`
	MinY           float64 `param:"min_y"`
	RangeX         float64 `param:"range_x" validate:"gt=0"`
	RangeY         float64 `param:"range_y" validate:"gt=0"`
	IterationLimit int     `param:"iteration_limit" validate:"gte=1,lte=65534"`
	EscapeDistance float64 `param:"escape_distance" validate:"gt=0"`
	Degree         int     `param:"degree" validate:"gte=2,lte=32"`
	Colour         string  `param:"colour" validate:"oneof=red green blue wheel"`
	AA             int     `param:"aa" validate:"gte=1,lte=64"`
}

// Defaults returns the default parameters in display order.
func Defaults() *neb.Parameters {
	return neb.NewParameters(
		"min_x", "-2.0",
		"min_y", "-1.5",
		"range_x", "3.0",
		"range_y", "3.0",
		"iteration_limit", "100",
		"escape_distance", "2.0",
		"degree", "2",
		"colour", "blue",
		"aa", "1",
	)
}

// Factory registers mbrot with a neb.Registry.
func Factory() neb.Factory {
	return neb.Factory{
		Name:        Name,
		Description: "escape-time Mandelbrot/Multibrot with supersampling",
		Defaults:    Defaults,
		New: func(p *neb.Parameters) (neb.Algorithm, error) {
			m, err := New(p)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

// MBrot is the escape-time algorithm.
type MBrot struct {
	p       Parameters
	escape2 float64
	paint   func(avg float64) uint32
}

// New decodes and validates p.
func New(p *neb.Parameters) (*MBrot, error) {
	var dp Parameters
	if err := params.Decode(p, &dp); err != nil {
		return nil, err
	}

	m := &MBrot{
		p:       dp,
		escape2: dp.EscapeDistance * dp.EscapeDistance,
	}
	limit := float64(dp.IterationLimit)
	if dp.Colour == "wheel" {
		wheel := palette.Wheel()
		m.paint = func(avg float64) uint32 {
			return wheel[int(avg*18)%palette.WheelSize]
		}
	} else {
		shift, err := palette.ChannelShift(dp.Colour)
		if err != nil {
			return nil, &params.Error{Name: "colour", Value: dp.Colour, Err: err}
		}
		m.paint = func(avg float64) uint32 {
			return palette.Mono(shift, palette.Intensity(math.Sqrt(avg/limit)))
		}
	}
	return m, nil
}

// Parameters returns the decoded parameters.
func (m *MBrot) Parameters() Parameters {
	return m.p
}

// Name implements neb.Algorithm.
func (m *MBrot) Name() string { return Name }

// Multiplier implements neb.Algorithm: one negative per sub-pixel sample.
func (m *MBrot) Multiplier(int) int { return m.p.AA }

// TaskIterationGoal implements neb.Algorithm.
func (m *MBrot) TaskIterationGoal(int) int { return Bands }

// buffer holds one escape count per pixel. Zero means not computed yet,
// otherwise the value is the escape iteration plus one, with
// IterationLimit+1 for points that never escaped.
type buffer struct {
	width  int
	height int
	escape []uint16
}

// NewNegativeBuffer implements neb.Algorithm.
func (m *MBrot) NewNegativeBuffer(width, height int) any {
	return &buffer{
		width:  width,
		height: height,
		escape: make([]uint16, width*height),
	}
}

// Step computes the next band of the negative's rows.
func (m *MBrot) Step(n *neb.Negative) error {
	buf := n.Buffer.(*buffer)
	partition := n.Int(neb.KeyPartition, 0)
	partitions := n.Int(neb.KeyPartitions, 1)
	ox, oy := m.offset(n.ResidueClass())

	rows := rowCount(buf.height, partition, partitions)
	band := (rows + Bands - 1) / Bands
	done := n.Int(keyCursor, 0)
	end := min(done+band, rows)

	for r := done; r < end; r++ {
		py := partition + r*partitions
		cy := m.p.MinY + (float64(py)+oy)/float64(buf.height)*m.p.RangeY
		row := buf.escape[py*buf.width : (py+1)*buf.width]
		for px := range row {
			cx := m.p.MinX + (float64(px)+ox)/float64(buf.width)*m.p.RangeX
			row[px] = uint16(m.iterate(complex(cx, cy)) + 1)
		}
	}
	n.Data[keyCursor] = end
	return nil
}

// Combine averages the samples of every pixel into the positive. Pixels with
// no computed sample are transparent.
func (m *MBrot) Combine(negatives []*neb.Negative, positive *neb.Positive) error {
	aa := m.p.AA
	partitions := len(negatives) / aa
	limit := float64(m.p.IterationLimit)
	w, h := positive.Width(), positive.Height()

	for py := range h {
		base := (py % partitions) * aa
		for px := range w {
			var sum float64
			var samples, inside int
			for r := range aa {
				buf := negatives[base+r].Buffer.(*buffer)
				v := buf.escape[py*buf.width+px]
				if v == 0 {
					continue
				}
				samples++
				count := float64(v - 1)
				if count >= limit {
					inside++
				}
				sum += count
			}

			switch {
			case samples == 0:
				positive.Set(px, py, palette.Transparent)
			case inside == samples:
				positive.Set(px, py, palette.Black)
			default:
				positive.Set(px, py, m.paint(sum/float64(samples)))
			}
		}
	}
	return nil
}

// iterate returns the iteration at which c escapes, or IterationLimit.
func (m *MBrot) iterate(c complex128) int {
	var z complex128
	for i := range m.p.IterationLimit {
		z = pow(z, m.p.Degree) + c
		if re, im := real(z), imag(z); re*re+im*im > m.escape2 {
			return i
		}
	}
	return m.p.IterationLimit
}

// offset returns the sub-pixel sample position of a residue class, laid out
// on a k x k grid with k = ceil(sqrt(aa)).
func (m *MBrot) offset(class int) (float64, float64) {
	k := int(math.Ceil(math.Sqrt(float64(m.p.AA))))
	return (float64(class%k) + 0.5) / float64(k), (float64(class/k) + 0.5) / float64(k)
}

// rowCount returns how many of height rows fall into partition.
func rowCount(height, partition, partitions int) int {
	if partition >= height {
		return 0
	}
	return (height - partition + partitions - 1) / partitions
}

func pow(z complex128, d int) complex128 {
	r := z
	for range d - 1 {
		r *= z
	}
	return r
}
