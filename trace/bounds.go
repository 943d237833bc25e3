// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import "fmt"

// Bounds is the [Min, Max] microsecond span covered by a set of events.
// The zero value is the empty span.
type Bounds struct {
	min, max int64
	set      bool
}

// Empty reports whether no event contributed to b.
func (b Bounds) Empty() bool {
	return !b.set
}

// Min returns the earliest start, 0 for empty bounds.
func (b Bounds) Min() int64 {
	return b.min
}

// Max returns the latest end, 0 for empty bounds.
func (b Bounds) Max() int64 {
	return b.max
}

// Duration returns Max-Min.
func (b Bounds) Duration() int64 {
	return b.max - b.min
}

// Contains reports whether ts lies within b.
func (b Bounds) Contains(ts int64) bool {
	return b.set && ts >= b.min && ts <= b.max
}

// Union returns the smallest bounds covering b and o.
func (b Bounds) Union(o Bounds) Bounds {
	switch {
	case !o.set:
		return b
	case !b.set:
		return o
	}
	return Bounds{min: min(b.min, o.min), max: max(b.max, o.max), set: true}
}

func (b Bounds) extend(start, end int64) Bounds {
	return b.Union(Bounds{min: start, max: end, set: true})
}

func (b Bounds) String() string {
	if !b.set {
		return "[empty]"
	}
	return fmt.Sprintf("[%d, %d]", b.min, b.max)
}
