// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package phases measures labelled spans of a run between marker events.
package phases // import "github.com/tracerbench/tracebench/phases"

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/metrics"
	"github.com/tracerbench/tracebench/samples"
	"github.com/tracerbench/tracebench/trace"
	"github.com/tracerbench/tracebench/traceevent"
)

// Marker names the events delimiting one phase.
type Marker struct {
	Label string `yaml:"label" json:"label"`
	// Start is the name of the event opening the phase.
	Start string `yaml:"start" json:"start"`
	// End optionally names the event closing the phase. Without it the phase
	// runs until the next marker's start event, or until the end of the trace.
	End string `yaml:"end,omitempty" json:"end,omitempty"`
}

// MissingMarkerWarning reports a phase that was left out because one of its
// marker events does not occur in the trace.
type MissingMarkerWarning struct {
	Label string
	Event string
}

func (w *MissingMarkerWarning) Error() string {
	return fmt.Sprintf("phase %s: marker event %s not found", w.Label, w.Event)
}

// Extract measures every marker's phase in tr, in marker order. Phases whose
// events are missing are omitted and reported as warnings.
func Extract(tr *trace.Trace, markers []Marker) ([]samples.PhaseSample,
	[]*MissingMarkerWarning) {
	var (
		out      = make([]samples.PhaseSample, 0, len(markers))
		warnings []*MissingMarkerWarning
	)
	bounds, _ := tr.Bounds()

	missing := func(label, event string) {
		w := &MissingMarkerWarning{Label: label, Event: event}
		log.Warnf("Trace %s: %v", tr.Name, w)
		metrics.Add(metrics.IDMissingMarkers, 1)
		warnings = append(warnings, w)
	}

	for i, m := range markers {
		start, ok := tr.FindEvent(m.Start)
		if !ok {
			missing(m.Label, m.Start)
			continue
		}

		var end int64
		if m.End != "" {
			from := start.Ts
			if m.End == m.Start {
				// The end is the next occurrence of the start event.
				from++
			}
			endEv, ok := tr.FindEventFrom(m.End, from)
			if !ok {
				missing(m.Label, m.End)
				continue
			}
			end = endEv.End()
		} else if next, ok := nextStart(tr, markers[i+1:], start); ok {
			end = next.Ts
		} else {
			end = bounds.Max()
		}

		out = append(out, samples.PhaseSample{Phase: m.Label, Duration: end - start.Ts})
	}
	return out, warnings
}

// nextStart returns the start event of the first following marker present
// in tr at or after start.
func nextStart(tr *trace.Trace, rest []Marker, start *traceevent.Event) (*traceevent.Event, bool) {
	for _, m := range rest {
		if ev, ok := tr.FindEventFrom(m.Start, start.Ts); ok {
			return ev, true
		}
	}
	return nil, false
}
