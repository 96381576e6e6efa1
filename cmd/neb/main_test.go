// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/gogpu/neb"
)

// run executes the root command with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// smallRender are flags for a quick render.
func smallRender(out string, extra ...string) []string {
	args := []string{
		"render",
		"--width", "16", "--height", "16",
		"--workers", "2",
		"--param", "iteration_limit=20",
		"--output", out,
	}
	return append(args, extra...)
}

func decodeFile(t *testing.T, path string, decode func(r *os.File) (image.Image, error)) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := decode(f)
	require.NoError(t, err)
	return img
}

func TestAlgorithmsCmd(t *testing.T) {
	stdout, _, err := run(t, "algorithms")
	require.NoError(t, err)

	assert.Contains(t, stdout, "mbrot\t")
	assert.Contains(t, stdout, "bbrot\t")
	assert.Contains(t, stdout, "    aa=1\n")
	assert.Contains(t, stdout, "    residue_classes=4\n")
}

func TestRenderCmd_WritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")

	stdout, stderr, err := run(t, smallRender(out)...)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Wrote "+out)
	assert.Contains(t, stderr, "Rendering mbrot at 16x16 on 2 workers")
	assert.Contains(t, stderr, "finished in")

	img := decodeFile(t, out, func(f *os.File) (image.Image, error) { return png.Decode(f) })
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	for y := range 16 {
		for x := range 16 {
			_, _, _, a := img.At(x, y).RGBA()
			require.Equal(t, uint32(0xFFFF), a, "pixel (%d, %d) is not opaque", x, y)
		}
	}
}

func TestRenderCmd_BMPScaled(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.img")

	_, _, err := run(t, smallRender(out, "--format", "bmp", "--scale", "0.5", "--algorithm", "bbrot",
		"--param", "samples=500")...)
	require.NoError(t, err)

	img := decodeFile(t, out, func(f *os.File) (image.Image, error) { return bmp.Decode(f) })
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
}

func TestRenderCmd_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "from-config.png")
	cfg := filepath.Join(dir, "render.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
width: 12
height: 10
workers: 1
algorithm: mbrot
parameters:
  iteration_limit: "10"
  colour: wheel
output: `+out+`
`), 0o600))

	// --height overrides the file.
	_, _, err := run(t, "render", "--config", cfg, "--height", "6")
	require.NoError(t, err)

	img := decodeFile(t, out, func(f *os.File) (image.Image, error) { return png.Decode(f) })
	assert.Equal(t, image.Rect(0, 0, 12, 6), img.Bounds())
}

func TestRenderCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		is   error
		msg  string
	}{
		{
			name: "unknown parameter",
			args: smallRender(filepath.Join(dir, "a.png"), "--param", "bogus=1"),
			is:   neb.ErrInvalidParameter,
		},
		{
			name: "invalid parameter value",
			args: smallRender(filepath.Join(dir, "b.png"), "--param", "aa=0"),
			is:   neb.ErrInvalidParameter,
		},
		{
			name: "malformed parameter",
			args: smallRender(filepath.Join(dir, "c.png"), "--param", "novalue"),
			is:   neb.ErrInvalidParameter,
		},
		{
			name: "unknown algorithm",
			args: smallRender(filepath.Join(dir, "d.png"), "--algorithm", "julia"),
			is:   neb.ErrUnknownAlgorithm,
		},
		{
			name: "no output",
			args: []string{"render", "--width", "4", "--height", "4"},
			msg:  "no output file",
		},
		{
			name: "unknown extension",
			args: smallRender(filepath.Join(dir, "e.gif")),
			msg:  "unknown image format",
		},
		{
			name: "invalid size",
			args: smallRender(filepath.Join(dir, "f.png"), "--width", "0"),
			msg:  "width",
		},
		{
			name: "invalid log level",
			args: append([]string{"--log-level", "loud"}, smallRender(filepath.Join(dir, "g.png"))...),
			msg:  "invalid --log-level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestRenderCmd_SnapshotInterval(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")

	_, _, err := run(t, smallRender(out, "--snapshot-interval", "1ms", "--param", "aa=4")...)
	require.NoError(t, err)

	img := decodeFile(t, out, func(f *os.File) (image.Image, error) { return png.Decode(f) })
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
}

func TestRenderCmd_Caption(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")

	_, _, err := run(t, "render", "--width", "96", "--height", "48", "--workers", "1",
		"--param", "iteration_limit=10", "--caption", "--output", out)
	require.NoError(t, err)

	img := decodeFile(t, out, func(f *os.File) (image.Image, error) { return png.Decode(f) })
	assert.Equal(t, image.Rect(0, 0, 96, 48), img.Bounds())
}
