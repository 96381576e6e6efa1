// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/gogpu/neb/internal/palette"
)

// Positive is the output image of a render: a grid of packed 0xAARRGGBB colours.
//
// The positive is written only by Algorithm.Combine. Each combine writes a
// fresh copy, so a *Positive handed out by the engine stays unchanged while
// the render continues. Clone it before drawing on it.
type Positive struct {
	width  int
	height int
	pix    []uint32 // row-major, one packed colour per pixel
}

// NewPositive creates a transparent positive with the given dimensions.
func NewPositive(width, height int) *Positive {
	return &Positive{
		width:  width,
		height: height,
		pix:    make([]uint32, width*height),
	}
}

// Width returns the width of the positive.
func (p *Positive) Width() int {
	return p.width
}

// Height returns the height of the positive.
func (p *Positive) Height() int {
	return p.height
}

// Pix returns the raw packed pixel data, row-major.
func (p *Positive) Pix() []uint32 {
	return p.pix
}

// Set sets the packed colour of a single pixel. Out-of-range writes are ignored.
func (p *Positive) Set(x, y int, argb uint32) {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return
	}
	p.pix[y*p.width+x] = argb
}

// ARGB returns the packed colour of a single pixel, or transparent if out of range.
func (p *Positive) ARGB(x, y int) uint32 {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return palette.Transparent
	}
	return p.pix[y*p.width+x]
}

// Clear fills the entire positive with a packed colour.
func (p *Positive) Clear(argb uint32) {
	for i := range p.pix {
		p.pix[i] = argb
	}
}

// Clone returns a deep copy.
func (p *Positive) Clone() *Positive {
	c := NewPositive(p.width, p.height)
	copy(c.pix, p.pix)
	return c
}

// ToImage converts the positive to an image.NRGBA.
func (p *Positive) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.width, p.height))
	for i, c := range p.pix {
		a, r, g, b := palette.Unpack(c)
		j := i * 4
		img.Pix[j+0] = r
		img.Pix[j+1] = g
		img.Pix[j+2] = b
		img.Pix[j+3] = a
	}
	return img
}

// SavePNG saves the positive to a PNG file.
func (p *Positive) SavePNG(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	return png.Encode(f, p.ToImage())
}

// At implements the image.Image interface.
func (p *Positive) At(x, y int) color.Color {
	a, r, g, b := palette.Unpack(p.ARGB(x, y))
	return color.NRGBA{R: r, G: g, B: b, A: a}
}

// Bounds implements the image.Image interface.
func (p *Positive) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.width, p.height)
}

// ColorModel implements the image.Image interface.
func (p *Positive) ColorModel() color.Model {
	return color.NRGBAModel
}
