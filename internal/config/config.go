// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads neb render configuration files.
//
// A configuration file is YAML:
//
//	width: 1024
//	height: 768
//	workers: 8
//	algorithm: mbrot
//	parameters:
//	  aa: "4"
//	  colour: wheel
//	output: mandelbrot.png
//	scale: 0.5
//	caption: true
//	snapshot_interval: 2s
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config describes one render.
type Config struct {
	// Width and Height are the raster size.
	Width  int `yaml:"width" validate:"gte=1,lte=65536"`
	Height int `yaml:"height" validate:"gte=1,lte=65536"`

	// Workers is the pool size; 0 selects GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0,lte=4096"`

	// Algorithm is the registry identifier.
	Algorithm string `yaml:"algorithm" validate:"required"`

	// Parameters override the algorithm defaults.
	Parameters map[string]string `yaml:"parameters"`

	// Output is the final image path; empty disables writing.
	Output string `yaml:"output"`

	// Format overrides the format implied by Output's extension.
	Format string `yaml:"format" validate:"omitempty,oneof=png bmp tif tiff"`

	// Scale resamples the written images.
	Scale float64 `yaml:"scale" validate:"gt=0,lte=16"`

	// Caption draws the algorithm and progress on written images.
	Caption bool `yaml:"caption"`

	// SnapshotInterval, if positive, writes a snapshot to Output at this
	// interval while rendering.
	SnapshotInterval time.Duration `yaml:"snapshot_interval" validate:"gte=0"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Width:     640,
		Height:    640,
		Algorithm: "mbrot",
		Scale:     1,
	}
}

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		return name
	})
	return v
})

// Validate checks field ranges.
func (c Config) Validate() error {
	err := validate().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("config: parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Load reads and parses a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return Default(), fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}
