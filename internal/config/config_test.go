// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
width: 320
height: 200
workers: 6
algorithm: bbrot
parameters:
  samples: "5000"
  colour: wheel
output: out.tiff
format: tiff
scale: 0.5
snapshot_interval: 1500ms
`))
	require.NoError(t, err)

	assert.Equal(t, Config{
		Width:            320,
		Height:           200,
		Workers:          6,
		Algorithm:        "bbrot",
		Parameters:       map[string]string{"samples": "5000", "colour": "wheel"},
		Output:           "out.tiff",
		Format:           "tiff",
		Scale:            0.5,
		SnapshotInterval: 1500 * time.Millisecond,
	}, c)
}

func TestParseKeepsDefaults(t *testing.T) {
	c, err := Parse([]byte("algorithm: mbrot\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	c, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "colour: red\n", "colour"},
		{"bad width", "width: 0\n", "width"},
		{"negative workers", "workers: -1\n", "workers"},
		{"empty algorithm", "algorithm: \"\"\n", "algorithm"},
		{"bad format", "format: gif\n", "format"},
		{"bad scale", "scale: 0\n", "scale"},
		{"bad interval", "snapshot_interval: soon\n", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("width: 100\nheight: 50\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, c.Width)
	assert.Equal(t, 50, c.Height)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
