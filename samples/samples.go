// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package samples holds the per-run timings shared by the analysis and
// statistics packages. All durations are in microseconds.
package samples // import "github.com/tracerbench/tracebench/samples"

import "strings"

const (
	// MetricDuration names the whole-trace duration metric.
	MetricDuration = "duration"
	// MetricJS names the script time metric.
	MetricJS = "js"
	// ModulePrefix starts the name of every per-module metric.
	ModulePrefix = "module:"
)

// IsReservedLabel reports whether label would clash with the name of a
// built-in metric when used as a phase label.
func IsReservedLabel(label string) bool {
	return label == MetricDuration || label == MetricJS ||
		strings.HasPrefix(label, ModulePrefix)
}

// PhaseSample is the duration of one labelled phase in one run.
type PhaseSample struct {
	Phase    string `json:"phase"`
	Duration int64  `json:"duration"`
}

// Sample is the outcome of one run.
type Sample struct {
	// Trace names the trace the sample was computed from.
	Trace string `json:"trace,omitempty"`
	// Duration is the span of the whole trace.
	Duration int64 `json:"duration"`
	// JS is the time spent running script.
	JS int64 `json:"js"`
	// Phases in marker order.
	Phases []PhaseSample `json:"phases"`
	// Modules is the script time attributed to each module.
	Modules map[string]int64 `json:"modules,omitempty"`
}

// Phase returns the duration of label and whether the run recorded it.
func (s *Sample) Phase(label string) (int64, bool) {
	for _, p := range s.Phases {
		if p.Phase == label {
			return p.Duration, true
		}
	}
	return 0, false
}

// PhaseLabels returns the labels of s in order.
func (s *Sample) PhaseLabels() []string {
	labels := make([]string, len(s.Phases))
	for i, p := range s.Phases {
		labels[i] = p.Phase
	}
	return labels
}

// Durations returns the total duration of every sample.
func Durations(ss []Sample) []float64 {
	out := make([]float64, len(ss))
	for i := range ss {
		out[i] = float64(ss[i].Duration)
	}
	return out
}

// ScriptTimes returns the script time of every sample.
func ScriptTimes(ss []Sample) []float64 {
	out := make([]float64, len(ss))
	for i := range ss {
		out[i] = float64(ss[i].JS)
	}
	return out
}

// PhaseDurations returns the durations of label from the samples that
// recorded it.
func PhaseDurations(ss []Sample, label string) []float64 {
	out := make([]float64, 0, len(ss))
	for i := range ss {
		if d, ok := ss[i].Phase(label); ok {
			out = append(out, float64(d))
		}
	}
	return out
}

// ModuleTimes returns the script time of module from the samples that
// attributed time to it.
func ModuleTimes(ss []Sample, module string) []float64 {
	out := make([]float64, 0, len(ss))
	for i := range ss {
		if d, ok := ss[i].Modules[module]; ok {
			out = append(out, float64(d))
		}
	}
	return out
}
