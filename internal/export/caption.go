// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package export

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// captionBackground is the band drawn behind caption text.
var captionBackground = color.NRGBA{A: 0xA0}

var regular = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// Caption returns a copy of img with text drawn on a translucent band along
// the bottom edge. The font size follows the image height and is clamped to
// [8, 32] pixels; text that does not fit is clipped.
func Caption(img image.Image, text string) (*image.NRGBA, error) {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	if text == "" {
		return dst, nil
	}

	f, err := regular()
	if err != nil {
		return nil, fmt.Errorf("export: caption font: %w", err)
	}
	size := min(max(float64(b.Dy())/24, 8), 32)
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("export: caption face: %w", err)
	}
	defer face.Close()

	m := face.Metrics()
	pad := int(size / 4)
	lineHeight := (m.Ascent + m.Descent).Ceil()
	band := image.Rect(0, max(dst.Bounds().Dy()-lineHeight-2*pad, 0), dst.Bounds().Dx(), dst.Bounds().Dy())
	draw.Draw(dst, band, image.NewUniform(captionBackground), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(pad, band.Min.Y+pad+m.Ascent.Ceil()),
	}
	d.DrawString(text)
	return dst, nil
}
