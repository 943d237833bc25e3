// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package traceevent defines a single record of the Chrome Trace Event Format
// and validates records decoded from JSON.
package traceevent // import "github.com/tracerbench/tracebench/traceevent"

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Phase is the one letter event type of the trace event format.
type Phase string

const (
	PhaseBegin    Phase = "B"
	PhaseEnd      Phase = "E"
	PhaseComplete Phase = "X"
	PhaseInstant  Phase = "I"
	// PhaseInstantLegacy is the lowercase instant letter older Chrome versions emit.
	PhaseInstantLegacy Phase = "i"
	PhaseMetadata      Phase = "M"
	PhaseCounter       Phase = "C"
	PhaseMark          Phase = "R"
)

// IsInstant reports whether p is either spelling of an instant event.
func (p Phase) IsInstant() bool {
	return p == PhaseInstant || p == PhaseInstantLegacy
}

// Event is one trace event. Timestamps and durations are in microseconds.
type Event struct {
	Name string `json:"name"`
	Cat  string `json:"cat,omitempty"`
	Ph   Phase  `json:"ph"`
	Ts   int64  `json:"ts"`
	// Dur is set for complete events.
	Dur  *int64         `json:"dur,omitempty"`
	Pid  int64          `json:"pid"`
	Tid  int64          `json:"tid"`
	Args map[string]any `json:"args,omitempty"`
}

// End returns Ts+Dur, or Ts for events without a duration.
func (e *Event) End() int64 {
	if e.Dur == nil {
		return e.Ts
	}
	return e.Ts + *e.Dur
}

// Duration returns Dur, or 0 when absent.
func (e *Event) Duration() int64 {
	if e.Dur == nil {
		return 0
	}
	return *e.Dur
}

// Arg walks the nested args objects along path.
func (e *Event) Arg(path ...string) (any, bool) {
	var cur any = e.Args
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringArg returns the string at path, or "" if absent or not a string.
func (e *Event) StringArg(path ...string) string {
	v, _ := e.Arg(path...)
	s, _ := v.(string)
	return s
}

// IntArg returns the number at path truncated to int64.
func (e *Event) IntArg(path ...string) (int64, bool) {
	v, ok := e.Arg(path...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// EventParseError describes a malformed event at Index in its source stream.
type EventParseError struct {
	Index  int
	Reason string
}

func (e *EventParseError) Error() string {
	return fmt.Sprintf("trace event %d: %s", e.Index, e.Reason)
}

// rawEvent mirrors the JSON keys. Pointers distinguish absent from zero.
type rawEvent struct {
	Name *string        `json:"name"`
	Cat  string         `json:"cat"`
	Ph   *string        `json:"ph"`
	Ts   *float64       `json:"ts"`
	Dur  *float64       `json:"dur"`
	Pid  *float64       `json:"pid"`
	Tid  *float64       `json:"tid"`
	Args map[string]any `json:"args"`
}

// Parse decodes and validates the JSON object raw found at index.
func Parse(index int, raw json.RawMessage) (Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, &EventParseError{Index: index, Reason: "not a JSON object"}
	}

	var re rawEvent
	if err := json.Unmarshal(trimmed, &re); err != nil {
		return Event{}, &EventParseError{Index: index, Reason: err.Error()}
	}

	switch {
	case re.Name == nil:
		return Event{}, &EventParseError{Index: index, Reason: "missing name"}
	case re.Ph == nil || *re.Ph == "":
		return Event{}, &EventParseError{Index: index, Reason: "missing ph"}
	case re.Pid == nil:
		return Event{}, &EventParseError{Index: index, Reason: "missing pid"}
	case re.Tid == nil:
		return Event{}, &EventParseError{Index: index, Reason: "missing tid"}
	case re.Ts == nil && Phase(*re.Ph) != PhaseMetadata:
		return Event{}, &EventParseError{Index: index, Reason: "missing ts"}
	}

	ev := Event{
		Name: *re.Name,
		Cat:  re.Cat,
		Ph:   Phase(*re.Ph),
		Pid:  int64(*re.Pid),
		Tid:  int64(*re.Tid),
		Args: re.Args,
	}
	if re.Ts != nil {
		ev.Ts = int64(math.Round(*re.Ts))
	}
	if re.Dur != nil {
		dur := int64(math.Round(*re.Dur))
		ev.Dur = &dur
	}
	if err := ev.Validate(index); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks the numeric invariants of an event built in memory.
func (e *Event) Validate(index int) error {
	if e.Name == "" && e.Ph != PhaseMetadata {
		return &EventParseError{Index: index, Reason: "missing name"}
	}
	if e.Ph == "" {
		return &EventParseError{Index: index, Reason: "missing ph"}
	}
	if e.Ts < 0 {
		return &EventParseError{Index: index,
			Reason: fmt.Sprintf("negative timestamp %d", e.Ts)}
	}
	if e.Dur != nil && *e.Dur < 0 {
		return &EventParseError{Index: index,
			Reason: fmt.Sprintf("negative duration %d", *e.Dur)}
	}
	return nil
}
