// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package neb distributes iterative image synthesis over a pool of workers.
//
// # Overview
//
// A render is split into negatives: independent accumulation buffers that an
// Algorithm develops one increment at a time. Every negative has a Task that
// is re-enqueued after each increment until it reaches its iteration goal.
// Once every negative is developed the algorithm combines them into the
// Positive, the final ARGB image.
//
// At any point the engine can be paused between increments, which makes the
// negatives consistent, and combined into a preview:
//
//	e, _ := neb.New(neb.WithRegistry(algorithms.Registry()))
//	defer e.Close()
//
//	_ = e.SetAlgorithm("mbrot")
//	_ = e.RenderCurrent(ctx)
//
//	preview, _ := e.Snapshot(ctx) // pause, combine, resume
//	_ = e.Wait(ctx)
//
// # Partitioning
//
// For a pool of W workers an algorithm with multiplier M gets W*M negatives.
// Negative i is in residue class i mod M and partition i / M. Algorithms read
// these, and the raster size, from Negative.Data.
//
// # Concurrency
//
// A negative is stepped by one worker at a time. Combine never overlaps a
// Step: Snapshot waits for every worker to park before combining, and the
// final combine runs after the last increment. Stop parks the workers until
// Start; queued tasks are kept.
//
// # Notifications
//
// A Listener receives RenderStarted, Progress, RenderPaused/RenderResumed
// pairs and exactly one of RenderEnded or ErrorOccurred for each render.
//
// # Observability
//
// The engine logs through log/slog (see SetLogger), exports Prometheus
// collectors (see WithRegisterer) and traces the public operations with
// OpenTelemetry (see WithTracerProvider).
package neb

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
