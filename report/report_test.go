// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracerbench/tracebench/analyze"
	"github.com/tracerbench/tracebench/samples"
	"github.com/tracerbench/tracebench/stats"
)

func TestParseFidelity(t *testing.T) {
	tests := map[string]struct {
		in   string
		want int
		err  bool
	}{
		"test":     {in: "test", want: 2},
		"low":      {in: "low", want: 10},
		"medium":   {in: "Medium", want: 20},
		"high":     {in: " high ", want: 30},
		"number":   {in: "7", want: 7},
		"zero":     {in: "0", err: true},
		"negative": {in: "-3", err: true},
		"unknown":  {in: "extreme", err: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseFidelity(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func sampleSet(durations ...int64) []samples.Sample {
	out := make([]samples.Sample, len(durations))
	for i, d := range durations {
		out[i] = samples.Sample{
			Duration: d,
			JS:       d / 2,
			Phases:   []samples.PhaseSample{{Phase: "boot", Duration: d / 4}},
		}
	}
	return out
}

func newReport(t *testing.T) *Report {
	t.Helper()
	control := analyze.RunSet{Name: analyze.Control, URL: "http://localhost/a"}
	experiment := analyze.RunSet{Name: analyze.Experiment, URL: "http://localhost/b"}
	s := &analyze.Samples{
		Control:    sampleSet(100, 104, 108, 112),
		Experiment: sampleSet(200, 204, 208, 212),
		Unusable: []analyze.UnusableRun{
			{Set: analyze.Experiment, Path: "runs/experiment-3.json", Err: errors.New("trace has no events")},
		},
		Warnings: []error{errors.New("phase paint: marker event firstPaint not found")},
	}
	cmp, err := stats.Compare(s.Control, s.Experiment, stats.Options{})
	require.NoError(t, err)
	return New(control, experiment, s, cmp, 4)
}

func TestNew(t *testing.T) {
	r := newReport(t)

	assert.NotEqual(t, [16]byte{}, [16]byte(r.ID))
	assert.Equal(t, 4, r.Fidelity)
	require.Len(t, r.Sets, 2)

	control, ok := r.Set(analyze.Control)
	require.True(t, ok)
	assert.Equal(t, "http://localhost/a", control.URL)
	assert.Len(t, control.Samples, 4)
	assert.Empty(t, control.Unusable)

	experiment, ok := r.Set(analyze.Experiment)
	require.True(t, ok)
	assert.Equal(t, []string{"runs/experiment-3.json: trace has no events"}, experiment.Unusable)

	assert.Equal(t, []string{"phase paint: marker event firstPaint not found"}, r.Warnings)

	_, ok = r.Set("other")
	assert.False(t, ok)
}

func TestEncodeDecode(t *testing.T) {
	r := newReport(t)

	var buf bytes.Buffer
	require.NoError(t, r.Encode(&buf))
	assert.Contains(t, buf.String(), `"set": "control"`)
	assert.Contains(t, buf.String(), `"name": "duration"`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.True(t, r.Created.Equal(got.Created))
	assert.Equal(t, r.Sets, got.Sets)
	assert.Equal(t, r.Comparison.Records, got.Comparison.Records)

	_, err = Decode(strings.NewReader(`{"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`))
	assert.ErrorContains(t, err, "has no comparison")
	_, err = Decode(strings.NewReader(`[`))
	assert.ErrorContains(t, err, "failed to decode report")
}

func TestWriteTable(t *testing.T) {
	r := newReport(t)

	var buf bytes.Buffer
	require.NoError(t, r.WriteTable(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "METRIC"))
	assert.True(t, strings.HasPrefix(lines[1], "duration"))
	assert.Contains(t, lines[1], "104µs")
	assert.Contains(t, lines[1], "204µs")
	assert.True(t, strings.HasPrefix(lines[3], "boot"))
}
