// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package stats compares the control and experiment samples of a benchmark
// metric by metric.
package stats // import "github.com/tracerbench/tracebench/stats"

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/perf/benchmath"
	"gonum.org/v1/gonum/stat"

	"github.com/tracerbench/tracebench/libtb"
	"github.com/tracerbench/tracebench/metrics"
	"github.com/tracerbench/tracebench/samples"
)

// Names of the metrics every comparison starts with.
const (
	MetricDuration = samples.MetricDuration
	MetricJS       = samples.MetricJS
)

// ErrNoSamples is returned when one of the populations is empty.
var ErrNoSamples = errors.New("no samples")

// Options configures Compare. The zero value selects the defaults.
type Options struct {
	// Alpha is the significance level. Defaults to 0.05.
	Alpha float64
	// MinSamples is the smallest population that is tested. Defaults to 2.
	MinSamples int
	// Quantile is the compared quantile. Defaults to the median.
	Quantile float64
	// Confidence is the level of the reported median intervals.
	// Defaults to 0.95.
	Confidence float64
	// Modules adds one metric per module seen in both populations.
	Modules bool
}

func (o Options) withDefaults() Options {
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = 0.05
	}
	if o.MinSamples <= 0 {
		o.MinSamples = 2
	}
	if o.Quantile <= 0 || o.Quantile > 1 {
		o.Quantile = 0.5
	}
	if o.Confidence <= 0 || o.Confidence >= 1 {
		o.Confidence = 0.95
	}
	return o
}

// Interval is a confidence interval around a median.
type Interval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// StatRecord is the comparison of one metric.
type StatRecord struct {
	Name               string    `json:"name"`
	ControlQuantile    float64   `json:"controlQuantile"`
	ExperimentQuantile float64   `json:"experimentQuantile"`
	Delta              float64   `json:"delta"`
	DeltaPercent       float64   `json:"deltaPercent"`
	PValue             float64   `json:"pValue"`
	Significant        bool      `json:"significant"`
	ControlN           int       `json:"controlN"`
	ExperimentN        int       `json:"experimentN"`
	ControlCI          *Interval `json:"controlCI,omitempty"`
	ExperimentCI       *Interval `json:"experimentCI,omitempty"`
}

func (r *StatRecord) String() string {
	verdict := "not significant"
	if r.Significant {
		verdict = "significant"
	}
	return fmt.Sprintf("%s: %.0f -> %.0f (%+.0f, %+.1f%%, p=%.3f, %s)",
		r.Name, r.ControlQuantile, r.ExperimentQuantile,
		r.Delta, r.DeltaPercent, r.PValue, verdict)
}

// InsufficientSampleError reports a metric with too few samples to test.
type InsufficientSampleError struct {
	Metric     string
	Control    int
	Experiment int
	Min        int
}

func (e *InsufficientSampleError) Error() string {
	return fmt.Sprintf("metric %s: %d control and %d experiment samples, need at least %d of each",
		e.Metric, e.Control, e.Experiment, e.Min)
}

// Comparison is the outcome of Compare.
type Comparison struct {
	Records []StatRecord `json:"records"`
	// OnlyInControl lists phase labels missing from the experiment.
	OnlyInControl []string `json:"onlyInControl,omitempty"`
	// OnlyInExperiment lists phase labels missing from the control.
	OnlyInExperiment []string                   `json:"onlyInExperiment,omitempty"`
	Insufficient     []*InsufficientSampleError `json:"-"`
	Alpha            float64                    `json:"alpha"`
}

// Record returns the record named name.
func (c *Comparison) Record(name string) (*StatRecord, bool) {
	for i := range c.Records {
		if c.Records[i].Name == name {
			return &c.Records[i], true
		}
	}
	return nil, false
}

// Significant returns the significant records in order.
func (c *Comparison) Significant() []StatRecord {
	return c.filter(func(r *StatRecord) bool { return r.Significant })
}

// Regressions returns the significant records where the experiment is slower.
func (c *Comparison) Regressions() []StatRecord {
	return c.filter(func(r *StatRecord) bool { return r.Significant && r.Delta > 0 })
}

// Improvements returns the significant records where the experiment is faster.
func (c *Comparison) Improvements() []StatRecord {
	return c.filter(func(r *StatRecord) bool { return r.Significant && r.Delta < 0 })
}

func (c *Comparison) filter(keep func(*StatRecord) bool) []StatRecord {
	var out []StatRecord
	for i := range c.Records {
		if keep(&c.Records[i]) {
			out = append(out, c.Records[i])
		}
	}
	return out
}

// Summary returns the message shown once a report has been written to path.
func (c *Comparison) Summary(path string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Success! A detailed report and JSON file are available at %s.", path)
	sig := c.Significant()
	if len(sig) == 0 {
		sb.WriteString("\nNo statistically significant differences were found.")
		return sb.String()
	}
	names := libtb.MapSlice(sig, func(r StatRecord) string { return r.Name })
	fmt.Fprintf(&sb, "\nStatistically significant results were found for %s.",
		strings.Join(names, ", "))
	return sb.String()
}

// Compare computes one StatRecord per metric. Neither population is modified.
func Compare(control, experiment []samples.Sample, opts Options) (*Comparison, error) {
	if len(control) == 0 {
		return nil, fmt.Errorf("%w: the control population is empty, check that its traces were recorded",
			ErrNoSamples)
	}
	if len(experiment) == 0 {
		return nil, fmt.Errorf("%w: the experiment population is empty, check that its traces were recorded",
			ErrNoSamples)
	}
	opts = opts.withDefaults()

	controlLabels := phaseLabels(control)
	experimentLabels := phaseLabels(experiment)
	for _, label := range slices.Concat(controlLabels, experimentLabels) {
		if samples.IsReservedLabel(label) {
			return nil, fmt.Errorf("phase label %q clashes with a built-in metric name", label)
		}
	}

	cmp := &Comparison{Alpha: opts.Alpha}
	cmp.add(opts, MetricDuration, samples.Durations(control), samples.Durations(experiment))
	cmp.add(opts, MetricJS, samples.ScriptTimes(control), samples.ScriptTimes(experiment))

	inControl := libtb.SliceToSet(controlLabels)
	inExperiment := libtb.SliceToSet(experimentLabels)
	for _, label := range controlLabels {
		if !inExperiment.Has(label) {
			cmp.OnlyInControl = append(cmp.OnlyInControl, label)
			continue
		}
		cmp.add(opts, label, samples.PhaseDurations(control, label),
			samples.PhaseDurations(experiment, label))
	}
	for _, label := range experimentLabels {
		if !inControl.Has(label) {
			cmp.OnlyInExperiment = append(cmp.OnlyInExperiment, label)
		}
	}

	if opts.Modules {
		experimentModules := libtb.SliceToSet(moduleNames(experiment))
		for _, module := range moduleNames(control) {
			if !experimentModules.Has(module) {
				continue
			}
			cmp.add(opts, samples.ModulePrefix+module, samples.ModuleTimes(control, module),
				samples.ModuleTimes(experiment, module))
		}
	}

	significant := len(cmp.Significant())
	metrics.Add(metrics.IDComparisons, metrics.MetricValue(len(cmp.Records)))
	metrics.Add(metrics.IDSignificantMetrics, metrics.MetricValue(significant))
	log.Debugf("Compared %d metrics, %d significant", len(cmp.Records), significant)
	return cmp, nil
}

func (c *Comparison) add(opts Options, name string, control, experiment []float64) {
	// The slices come from samples helpers and are private to this call.
	slices.Sort(control)
	slices.Sort(experiment)

	thresholds := &benchmath.Thresholds{CompareAlpha: opts.Alpha}
	rec := StatRecord{
		Name:        name,
		PValue:      1,
		ControlN:    len(control),
		ExperimentN: len(experiment),
	}
	if len(control) > 0 {
		rec.ControlQuantile = stat.Quantile(opts.Quantile, stat.Empirical, control, nil)
	}
	if len(experiment) > 0 {
		rec.ExperimentQuantile = stat.Quantile(opts.Quantile, stat.Empirical, experiment, nil)
	}
	rec.Delta = rec.ExperimentQuantile - rec.ControlQuantile
	if rec.ControlQuantile != 0 {
		rec.DeltaPercent = rec.Delta / rec.ControlQuantile * 100
	}

	if len(control) < opts.MinSamples || len(experiment) < opts.MinSamples {
		err := &InsufficientSampleError{
			Metric:     name,
			Control:    len(control),
			Experiment: len(experiment),
			Min:        opts.MinSamples,
		}
		log.Warn(err)
		c.Insufficient = append(c.Insufficient, err)
		c.Records = append(c.Records, rec)
		return
	}

	s1 := benchmath.NewSample(control, thresholds)
	s2 := benchmath.NewSample(experiment, thresholds)
	rec.ControlCI = interval(benchmath.AssumeNothing.Summary(s1, opts.Confidence))
	rec.ExperimentCI = interval(benchmath.AssumeNothing.Summary(s2, opts.Confidence))

	res := benchmath.AssumeNothing.Compare(s1, s2)
	if !math.IsNaN(res.P) {
		rec.PValue = res.P
	}
	rec.Significant = rec.PValue < opts.Alpha
	c.Records = append(c.Records, rec)
}

// interval returns nil when the sample is too small for a finite interval.
func interval(s benchmath.Summary) *Interval {
	if !isFinite(s.Lo) || !isFinite(s.Hi) {
		return nil
	}
	return &Interval{Lo: s.Lo, Hi: s.Hi}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func phaseLabels(ss []samples.Sample) []string {
	var labels []string
	for i := range ss {
		labels = append(labels, ss[i].PhaseLabels()...)
	}
	return libtb.FirstSeen(labels)
}

func moduleNames(ss []samples.Sample) []string {
	set := libtb.Set[string]{}
	for i := range ss {
		for name := range ss[i].Modules {
			set.Add(name)
		}
	}
	return libtb.SortedKeys(set)
}
