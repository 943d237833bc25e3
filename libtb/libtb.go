// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package libtb holds small helpers shared by the tracebench packages.
package libtb // import "github.com/tracerbench/tracebench/libtb"

import (
	"cmp"
	"slices"
)

// Void allows to use maps as sets without memory allocation for the values.
// From the "Go Programming Language":
//
//	The struct type with no fields is called the empty struct, written struct{}. It has size zero
//	and carries no information but may be useful nonetheless. Some Go programmers
//	use it instead of bool as the value type of a map that represents a set, to emphasize
//	that only the keys are significant, but the space saving is marginal and the syntax more
//	cumbersome, so we generally avoid it.
type Void struct{}

// Set is a convenience alias for a map with a `Void` key.
type Set[T comparable] map[T]Void

// Add inserts item into the set.
func (s Set[T]) Add(item T) {
	s[item] = Void{}
}

// Has reports whether item is part of the set.
func (s Set[T]) Has(item T) bool {
	_, ok := s[item]
	return ok
}

// SliceToSet creates a set from a slice, deduplicating it.
func SliceToSet[T comparable](s []T) Set[T] {
	set := make(Set[T], len(s))
	for _, item := range s {
		set[item] = Void{}
	}
	return set
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// MapSlice returns a new slice by mapping given function over the input slice.
func MapSlice[T, V any](in []T, mapf func(T) V) []V {
	ret := make([]V, len(in))
	for idx := range in {
		ret[idx] = mapf(in[idx])
	}
	return ret
}

// FirstSeen returns the items of s in order of first appearance, without duplicates.
func FirstSeen[T comparable](s []T) []T {
	seen := make(Set[T], len(s))
	out := make([]T, 0, len(s))
	for _, item := range s {
		if seen.Has(item) {
			continue
		}
		seen.Add(item)
		out = append(out, item)
	}
	return out
}
