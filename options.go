// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Default raster size used by RenderCurrent until SetRasterSize is called.
const (
	DefaultWidth  = 640
	DefaultHeight = 640
)

// Option configures an Engine during creation.
//
// Example:
//
//	e, err := neb.New(
//	    neb.WithWorkers(8),
//	    neb.WithRegistry(algorithms.Registry()),
//	)
type Option func(*options)

// options holds optional configuration for Engine creation.
type options struct {
	workers        int
	width          int
	height         int
	listener       Listener
	logger         *slog.Logger
	registry       *Registry
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
}

// defaultOptions returns the default engine options.
func defaultOptions() options {
	return options{
		workers: 0, // GOMAXPROCS
		width:   DefaultWidth,
		height:  DefaultHeight,
	}
}

// WithWorkers sets the pool size. Zero or negative selects GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithRasterSize sets the initial raster size used by RenderCurrent.
func WithRasterSize(width, height int) Option {
	return func(o *options) {
		o.width = width
		o.height = height
	}
}

// WithListener sets the notification listener.
func WithListener(l Listener) Option {
	return func(o *options) {
		o.listener = l
	}
}

// WithLogger sets the engine logger. Defaults to Logger() at creation time.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegistry sets the registry SetAlgorithm resolves identifiers against.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithRegisterer registers the engine's Prometheus collectors with r.
// Without it the collectors are kept but not exported.
//
// Two engines sharing a registry need distinct labels, e.g.
// prometheus.WrapRegistererWith(prometheus.Labels{"engine": name}, reg).
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}
