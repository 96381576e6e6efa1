// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package palette provides packed ARGB colour helpers shared by the neb algorithms.
//
// Colours are packed as 0xAARRGGBB in a uint32, the layout of a Positive.
package palette

import (
	"fmt"
	"math"
)

// Transparent is fully transparent black.
const Transparent uint32 = 0

// Black is opaque black.
const Black uint32 = 0xFF000000

// Pack packs non-premultiplied components into 0xAARRGGBB.
func Pack(a, r, g, b uint8) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// Unpack splits 0xAARRGGBB into its components.
func Unpack(c uint32) (a, r, g, b uint8) {
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// Channel shifts for the single-channel colour modes.
const (
	ShiftRed   = 16
	ShiftGreen = 8
	ShiftBlue  = 0
)

// ChannelShift maps a colour name to its bit shift within a packed colour.
func ChannelShift(name string) (int, error) {
	switch name {
	case "red":
		return ShiftRed, nil
	case "green":
		return ShiftGreen, nil
	case "blue":
		return ShiftBlue, nil
	default:
		return 0, fmt.Errorf("palette: unknown channel %q", name)
	}
}

// Mono returns an opaque colour with intensity v in the channel at shift.
func Mono(shift int, v uint8) uint32 {
	return Black | uint32(v)<<uint(shift)
}

// Intensity maps t in [0, 1] to a channel byte, clamping out-of-range input.
func Intensity(t float64) uint8 {
	return uint8(clamp255(t * 255))
}

// HSL creates an opaque colour from hue (degrees), saturation and lightness in [0, 1].
func HSL(h, s, l float64) uint32 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	h /= 360

	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h*6, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 1.0/6:
		r, g, b = c, x, 0
	case h < 2.0/6:
		r, g, b = x, c, 0
	case h < 3.0/6:
		r, g, b = 0, c, x
	case h < 4.0/6:
		r, g, b = 0, x, c
	case h < 5.0/6:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return Pack(255, Intensity(r+m), Intensity(g+m), Intensity(b+m))
}

// WheelSize is the number of entries in a colour wheel (255 steps per sextant).
const WheelSize = 255 * 6

// Wheel returns a fully saturated hue ramp of WheelSize opaque colours,
// starting at red.
func Wheel() []uint32 {
	wheel := make([]uint32, WheelSize)
	for i := range wheel {
		wheel[i] = HSL(float64(i)*360/WheelSize, 1, 0.5)
	}
	return wheel
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
