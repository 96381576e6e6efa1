// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package algorithms bundles the built-in neb algorithms.
package algorithms

import (
	"github.com/gogpu/neb"
	"github.com/gogpu/neb/algorithms/bbrot"
	"github.com/gogpu/neb/algorithms/mbrot"
)

// Factories returns the built-in algorithm factories.
func Factories() []neb.Factory {
	return []neb.Factory{
		mbrot.Factory(),
		bbrot.Factory(),
	}
}

// Registry returns a new registry holding every built-in algorithm.
func Registry() *neb.Registry {
	return neb.NewRegistry(Factories()...)
}
