// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tracerbench/tracebench/jsmodule"
	"github.com/tracerbench/tracebench/metrics"
	"github.com/tracerbench/tracebench/traceevent"
)

// writeTrace stores a two event trace spanning duration microseconds.
func writeTrace(t *testing.T, dir, name string, duration int) string {
	t.Helper()
	content := fmt.Sprintf(`{"traceEvents":[`+
		`{"name":"navigationStart","ph":"I","ts":1000,"pid":1,"tid":1},`+
		`{"name":"FunctionCall","ph":"X","ts":1000,"dur":%d,"pid":1,"tid":1}]}`, duration)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeRaw(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	for i, d := range []int{100, 110, 120} {
		writeTrace(t, dir, fmt.Sprintf("control-%d-trace.json", i), d)
		writeTrace(t, dir, fmt.Sprintf("experiment-%d-trace.json", i), d*2)
	}
	writeRaw(t, dir, "experiment-3-trace.json", `[]`)
	writeRaw(t, dir, "notes.txt", "ignored")
	writeRaw(t, dir, "control-har.har",
		`{"log":{"pages":[{"id":"p","_traceEvents":[`+
			`{"name":"FunctionCall","ph":"X","ts":5,"dur":130,"pid":1,"tid":1}]}]}}`)

	control, experiment, err := SplitTraceDir(dir)
	require.NoError(t, err)
	require.Len(t, control.Paths, 4)
	require.Len(t, experiment.Paths, 4)

	res, err := Runs(context.Background(), control, experiment, Config{Parallelism: 2})
	require.NoError(t, err)

	var got []int64
	for _, s := range res.Control {
		got = append(got, s.Duration)
	}
	assert.Equal(t, []int64{100, 110, 120, 130}, got)

	got = nil
	for _, s := range res.Experiment {
		got = append(got, s.JS)
	}
	assert.Equal(t, []int64{200, 220, 240}, got)

	require.Len(t, res.Unusable, 1)
	assert.Equal(t, Experiment, res.Unusable[0].Set)
	assert.Equal(t, filepath.Join(dir, "experiment-3-trace.json"), res.Unusable[0].Path)
}

func TestRunsNoUsableRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	control := RunSet{Name: Control, URL: "http://localhost:8000/control",
		Paths: []string{writeRaw(t, dir, "c.json", `[]`)}}
	experiment := RunSet{Name: Experiment,
		Paths: []string{writeTrace(t, dir, "e.json", 10)}}

	_, err := Runs(context.Background(), control, experiment, Config{})
	require.ErrorIs(t, err, ErrNoUsableRuns)
	assert.Contains(t, err.Error(),
		"could not sample from provided url: http://localhost:8000/control")
}

func TestRunsStrictParseError(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	control := RunSet{Name: Control}
	for i := range 5 {
		control.Paths = append(control.Paths,
			writeTrace(t, dir, fmt.Sprintf("c%d.json", i), 100+i))
	}
	broken := writeRaw(t, dir, "cbad.json", `[{"name":"a","ph":"B","pid":1,"tid":1}]`)
	control.Paths = append(control.Paths, broken)
	experiment := RunSet{Name: Experiment, Paths: []string{writeTrace(t, dir, "e.json", 10)}}

	res, err := Runs(context.Background(), control, experiment, Config{})
	require.NoError(t, err)
	assert.Len(t, res.Control, 5)
	assert.Len(t, res.Experiment, 1)

	require.Len(t, res.Unusable, 1)
	assert.Equal(t, Control, res.Unusable[0].Set)
	assert.Equal(t, broken, res.Unusable[0].Path)
	var parseErr *traceevent.EventParseError
	assert.ErrorAs(t, res.Unusable[0].Err, &parseErr)
}

func TestRunsOnlyBrokenRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	control := RunSet{Name: Control, Paths: []string{writeTrace(t, dir, "c.json", 10)}}
	experiment := RunSet{Name: Experiment, URL: "http://localhost:8000/experiment",
		Paths: []string{writeRaw(t, dir, "e.json", `[{"name":"a"}]`)}}

	_, err := Runs(context.Background(), control, experiment, Config{})
	require.ErrorIs(t, err, ErrNoUsableRuns)
	assert.Contains(t, err.Error(), "http://localhost:8000/experiment")
}

func TestRunsCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	control := RunSet{Name: Control, Paths: []string{writeTrace(t, dir, "c.json", 10)}}
	experiment := RunSet{Name: Experiment, Paths: []string{writeTrace(t, dir, "e.json", 10)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Runs(ctx, control, experiment, Config{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListTraces(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "b.json.gz", "")
	writeRaw(t, dir, "a.har", "")
	writeRaw(t, dir, "c.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.json"), 0o750))

	set, err := ListTraces(dir, Control)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.har"), filepath.Join(dir, "b.json.gz")},
		set.Paths)

	_, err = ListTraces(filepath.Join(dir, "missing"), Control)
	assert.Error(t, err)
}

func TestRunsReportModuleCacheMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	const content = `{"traceEvents":[{"name":"FunctionCall","ph":"X","ts":1000,"dur":%d,` +
		`"pid":1,"tid":1,"args":{"data":{"url":"https://cdn/app.js","lineNumber":6,"columnNumber":18}}}]}`
	control := RunSet{Name: Control}
	experiment := RunSet{Name: Experiment}
	for i := range 3 {
		control.Paths = append(control.Paths,
			writeRaw(t, dir, fmt.Sprintf("c%d.json", i), fmt.Sprintf(content, 10+i)))
		experiment.Paths = append(experiment.Paths,
			writeRaw(t, dir, fmt.Sprintf("e%d.json", i), fmt.Sprintf(content, 20+i)))
	}

	cache, err := jsmodule.NewCache(0)
	require.NoError(t, err)
	cfg := Config{Resolver: jsmodule.NewResolver(cache,
		jsmodule.MapSource{"https://cdn/app.js": appBundle})}

	before := metrics.Snapshot()
	res, err := Runs(context.Background(), control, experiment, cfg)
	require.NoError(t, err)
	for _, s := range res.Control {
		assert.Contains(t, s.Modules, "foo-bar")
	}

	// The bundle is parsed once and the counters are flushed by Runs.
	after := metrics.Snapshot()
	assert.Equal(t, before[metrics.IDModuleCacheMiss]+1, after[metrics.IDModuleCacheMiss])
	assert.Zero(t, cache.ReportMetrics())
}
