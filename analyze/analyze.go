// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package analyze computes one Sample per captured run and collects the
// samples of a control and an experiment set.
package analyze // import "github.com/tracerbench/tracebench/analyze"

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/ingest"
	"github.com/tracerbench/tracebench/jsmodule"
	"github.com/tracerbench/tracebench/libtb"
	"github.com/tracerbench/tracebench/phases"
	"github.com/tracerbench/tracebench/samples"
	"github.com/tracerbench/tracebench/trace"
)

// ErrNoUsableRuns is returned when a set has no run with a usable trace.
var ErrNoUsableRuns = errors.New("no usable runs")

// Config controls the analysis of runs.
type Config struct {
	// Markers delimit the phases to measure.
	Markers []phases.Marker
	// Resolver attributes script time to modules. Optional.
	Resolver *jsmodule.Resolver
	// Ingest is applied when reading trace files.
	Ingest ingest.Options
	// Parallelism bounds the number of traces parsed at once. 0 means
	// one per CPU.
	Parallelism int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("invalid parallelism %d", c.Parallelism)
	}
	if len(c.Markers) > 0 {
		return phases.Validate(c.Markers)
	}
	return nil
}

// Analysis is the result of one run.
type Analysis struct {
	Sample samples.Sample
	// Warnings are non-fatal problems such as missing markers and frames
	// that could not be resolved.
	Warnings []error
}

// Run computes the sample of one trace. An empty trace yields
// *trace.EmptyTraceError.
func Run(ctx context.Context, tr *trace.Trace, cfg Config) (*Analysis, error) {
	bounds, err := tr.Bounds()
	if err != nil {
		return nil, err
	}

	res := &Analysis{Sample: samples.Sample{
		Trace:    tr.Name,
		Duration: bounds.Duration(),
	}}

	var outermost []interval
	for _, th := range tr.Threads() {
		total, top := mergeIntervals(scriptIntervals(th))
		res.Sample.JS += total
		outermost = append(outermost, top...)
	}

	if cfg.Resolver != nil {
		res.Sample.Modules, res.Warnings = attributeModules(ctx, cfg.Resolver, outermost)
	}

	if len(cfg.Markers) > 0 {
		ph, warnings := phases.Extract(tr, cfg.Markers)
		res.Sample.Phases = ph
		for _, w := range warnings {
			res.Warnings = append(res.Warnings, w)
		}
	}
	return res, nil
}

// attributeModules charges each outermost script interval to the module its
// frame resolves to. Each url is warned about once.
func attributeModules(ctx context.Context, r *jsmodule.Resolver,
	intervals []interval) (map[string]int64, []error) {
	modules := map[string]int64{}
	warned := libtb.Set[string]{}
	var warnings []error

	for _, iv := range intervals {
		frame, ok := frameOf(iv)
		if !ok {
			continue
		}
		name, err := r.Resolve(ctx, frame)
		if err != nil && !warned.Has(frame.URL) {
			warned.Add(frame.URL)
			log.Debugf("%v", err)
			warnings = append(warnings, err)
		}
		modules[name] += iv.end - iv.start
	}
	return modules, warnings
}

// frameOf reads the script position of an event. Trace events number lines
// and columns from 1.
func frameOf(iv interval) (jsmodule.CallFrame, bool) {
	ev := iv.event
	url := ev.StringArg("data", "url")
	if url == "" {
		return jsmodule.CallFrame{}, false
	}
	line, _ := ev.IntArg("data", "lineNumber")
	col, _ := ev.IntArg("data", "columnNumber")
	return jsmodule.CallFrame{
		URL:          url,
		LineNumber:   int(max(line-1, 0)),
		ColumnNumber: int(max(col-1, 0)),
		FunctionName: ev.StringArg("data", "functionName"),
		ScriptID:     ev.StringArg("data", "scriptId"),
	}, true
}
