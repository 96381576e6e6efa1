// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/neb/internal/params"
)

// Parameters is an ordered set of named string parameters.
type Parameters = params.Set

// NewParameters creates a parameter set from alternating name, value arguments.
func NewParameters(kv ...string) *Parameters {
	return params.New(kv...)
}

// ParseParameters builds a parameter set from "name=value" strings.
func ParseParameters(pairs []string) (*Parameters, error) {
	return params.Parse(pairs)
}

// Factory builds one algorithm variant from its parameters.
type Factory struct {
	// Name is the identifier SetAlgorithm resolves, e.g. "mbrot".
	Name string

	// Description is a one-line summary for listings.
	Description string

	// Defaults returns a fresh copy of the default parameters, in display order.
	Defaults func() *Parameters

	// New validates a complete parameter set and builds the algorithm.
	// Failures should be *ParameterError values.
	New func(p *Parameters) (Algorithm, error)
}

// Registry maps algorithm identifiers to factories.
//
// Thread safety: Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     []string
}

// NewRegistry creates a registry holding the given factories.
// It panics if a factory is incomplete or two share a name.
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a factory.
func (r *Registry) Register(f Factory) error {
	if f.Name == "" || f.Defaults == nil || f.New == nil {
		return errors.New("neb: incomplete algorithm factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[f.Name]; ok {
		return fmt.Errorf("neb: algorithm %q already registered", f.Name)
	}
	r.factories[f.Name] = f
	r.names = append(r.names, f.Name)
	return nil
}

// Lookup returns the factory for name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		return Factory{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return f, nil
}

// Names returns the registered identifiers in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// New builds the named algorithm from its defaults overridden by overrides.
// It returns the algorithm and the complete parameter set it was built from.
// Names absent from the defaults are rejected.
func (r *Registry) New(name string, overrides *Parameters) (Algorithm, *Parameters, error) {
	f, err := r.Lookup(name)
	if err != nil {
		return nil, nil, err
	}

	defaults := f.Defaults()
	if unknown := overrides.Unknown(defaults); len(unknown) > 0 {
		v, _ := overrides.Get(unknown[0])
		return nil, nil, &ParameterError{Name: unknown[0], Value: v, Err: fmt.Errorf("not a parameter of %s", name)}
	}

	merged := defaults.Merge(overrides)
	alg, err := f.New(merged.Clone())
	if err != nil {
		return nil, nil, err
	}
	return alg, merged, nil
}
