// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package params implements ordered named-parameter sets for neb algorithms.
//
// A Set maps parameter names to string values and remembers insertion order,
// so defaults list in the order the algorithm declared them. Algorithms decode
// a Set into a typed struct with Decode, which also runs struct-tag validation.
package params

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalid is the sentinel every parameter error matches with errors.Is.
var ErrInvalid = errors.New("neb: invalid parameter")

// Error describes one rejected parameter.
type Error struct {
	Name  string
	Value string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("neb: parameter %s=%q: %v", e.Name, e.Value, e.Err)
}

// Unwrap makes errors.Is match both ErrInvalid and the cause.
func (e *Error) Unwrap() []error {
	return []error{ErrInvalid, e.Err}
}

// Set is an ordered collection of name/value pairs.
//
// Thread safety: Set is NOT safe for concurrent mutation. Clone before sharing.
type Set struct {
	keys   []string
	values map[string]string
}

// New creates a set from alternating name, value arguments.
// A trailing name without a value is ignored.
func New(kv ...string) *Set {
	s := &Set{values: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		s.Put(kv[i], kv[i+1])
	}
	return s
}

// FromMap creates a set from a map. Keys are ordered lexically.
func FromMap(m map[string]string) *Set {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := &Set{values: make(map[string]string, len(m))}
	for _, k := range keys {
		s.Put(k, m[k])
	}
	return s
}

// Parse builds a set from "name=value" strings.
func Parse(pairs []string) (*Set, error) {
	s := New()
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, &Error{Name: pair, Err: errors.New("expected name=value")}
		}
		s.Put(name, strings.TrimSpace(value))
	}
	return s, nil
}

// Put sets a value, appending the name if it is new.
func (s *Set) Put(name, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[name]; !ok {
		s.keys = append(s.keys, name)
	}
	s.values[name] = value
}

// Get returns the value for name.
func (s *Set) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[name]
	return v, ok
}

// Keys returns the parameter names in insertion order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Len returns the number of parameters.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := New()
	if s == nil {
		return c
	}
	for _, k := range s.keys {
		c.Put(k, s.values[k])
	}
	return c
}

// Merge returns a copy of s overridden by the values in other.
// Names only present in other are appended in other's order.
func (s *Set) Merge(other *Set) *Set {
	m := s.Clone()
	if other == nil {
		return m
	}
	for _, k := range other.keys {
		m.Put(k, other.values[k])
	}
	return m
}

// Map returns the parameters as a plain map.
func (s *Set) Map() map[string]string {
	m := make(map[string]string, s.Len())
	if s == nil {
		return m
	}
	for k, v := range s.values {
		m[k] = v
	}
	return m
}

// String formats the set as "name=value" pairs separated by spaces.
func (s *Set) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	for i, k := range s.keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.values[k])
	}
	return b.String()
}

// Unknown returns the names in s that are absent from known, in order.
func (s *Set) Unknown(known *Set) []string {
	var names []string
	for _, k := range s.Keys() {
		if _, ok := known.Get(k); !ok {
			names = append(names, k)
		}
	}
	return names
}
