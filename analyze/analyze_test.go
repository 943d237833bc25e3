// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package analyze

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracerbench/tracebench/jsmodule"
	"github.com/tracerbench/tracebench/phases"
	"github.com/tracerbench/tracebench/samples"
	"github.com/tracerbench/tracebench/trace"
	"github.com/tracerbench/tracebench/traceevent"
)

const appBundle = `
      const a = 'b';
      const d = 'd';
      define("foo-bar",["exports"],function(e) {
        const something = 'woot';
        function barbar() {
          return 'bar';
        }
      });
`

func complete(name string, tid, ts, d int64, url string) traceevent.Event {
	ev := traceevent.Event{Name: name, Ph: traceevent.PhaseComplete, Pid: 1, Tid: tid,
		Ts: ts, Dur: &d}
	if url != "" {
		ev.Args = map[string]any{"data": map[string]any{
			"url": url, "lineNumber": float64(6), "columnNumber": float64(18),
		}}
	}
	return ev
}

func instant(name string, ts int64) traceevent.Event {
	return traceevent.Event{Name: name, Ph: traceevent.PhaseInstant, Pid: 1, Tid: 1, Ts: ts}
}

func sampleTrace() *trace.Trace {
	return trace.Build([]traceevent.Event{
		instant("navigationStart", 90),
		complete("EvaluateScript", 1, 100, 50, "https://cdn/app.js"),
		complete("FunctionCall", 1, 120, 10, "https://cdn/app.js"),
		complete("FunctionCall", 1, 140, 30, "https://cdn/app.js"),
		{Name: "v8.compile", Ph: traceevent.PhaseBegin, Pid: 1, Tid: 1, Ts: 200},
		{Name: "v8.compile", Ph: traceevent.PhaseEnd, Pid: 1, Tid: 1, Ts: 220},
		{Name: "Layout", Ph: traceevent.PhaseBegin, Pid: 1, Tid: 1, Ts: 230},
		{Name: "Layout", Ph: traceevent.PhaseEnd, Pid: 1, Tid: 1, Ts: 240},
		instant("domInteractive", 250),
		instant("loadEventEnd", 300),
		complete("FunctionCall", 2, 110, 5, "https://cdn/missing.js"),
		complete("FunctionCall", 2, 112, 1, "https://cdn/missing.js"),
	}, trace.WithName("control-0.json"))
}

func TestRun(t *testing.T) {
	cache, err := jsmodule.NewCache(0)
	require.NoError(t, err)
	cfg := Config{
		Markers: []phases.Marker{
			{Label: "boot", Start: "navigationStart"},
			{Label: "interactive", Start: "domInteractive"},
			{Label: "hydrated", Start: "appHydrated"},
		},
		Resolver: jsmodule.NewResolver(cache,
			jsmodule.MapSource{"https://cdn/app.js": appBundle}),
	}

	res, err := Run(context.Background(), sampleTrace(), cfg)
	require.NoError(t, err)

	assert.Equal(t, samples.Sample{
		Trace:    "control-0.json",
		Duration: 210,
		JS:       95,
		Phases: []samples.PhaseSample{
			{Phase: "boot", Duration: 160},
			{Phase: "interactive", Duration: 50},
		},
		Modules: map[string]int64{"foo-bar": 50, jsmodule.UnknownModule: 5},
	}, res.Sample)

	require.Len(t, res.Warnings, 2)
	var resolveWarn *jsmodule.ModuleResolutionWarning
	require.ErrorAs(t, res.Warnings[0], &resolveWarn)
	assert.Equal(t, "https://cdn/missing.js", resolveWarn.URL)
	var markerWarn *phases.MissingMarkerWarning
	require.ErrorAs(t, res.Warnings[1], &markerWarn)
	assert.Equal(t, "hydrated", markerWarn.Label)
}

func TestRunWithoutResolver(t *testing.T) {
	res, err := Run(context.Background(), sampleTrace(), Config{})
	require.NoError(t, err)
	assert.Equal(t, int64(95), res.Sample.JS)
	assert.Nil(t, res.Sample.Modules)
	assert.Nil(t, res.Sample.Phases)
	assert.Empty(t, res.Warnings)
}

func TestRunEmptyTrace(t *testing.T) {
	_, err := Run(context.Background(), trace.Build(nil), Config{})
	var emptyErr *trace.EmptyTraceError
	assert.ErrorAs(t, err, &emptyErr)
}

func TestMergeIntervals(t *testing.T) {
	tests := map[string]struct {
		in        []interval
		total     int64
		outermost int
	}{
		"empty":    {},
		"disjoint": {in: []interval{{start: 0, end: 10}, {start: 20, end: 25}}, total: 15, outermost: 2},
		"nested":   {in: []interval{{start: 0, end: 10}, {start: 2, end: 4}}, total: 10, outermost: 1},
		"overlap":  {in: []interval{{start: 0, end: 10}, {start: 5, end: 15}}, total: 15, outermost: 1},
		"adjacent": {in: []interval{{start: 0, end: 10}, {start: 10, end: 12}}, total: 12, outermost: 2},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			total, outermost := mergeIntervals(tc.in)
			assert.Equal(t, tc.total, total)
			assert.Len(t, outermost, tc.outermost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Parallelism: -1}).Validate())
	assert.Error(t, (&Config{Markers: []phases.Marker{{Label: "a"}}}).Validate())
}
