// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracerbench/tracebench/analyze"
	"github.com/tracerbench/tracebench/ingest"
	"github.com/tracerbench/tracebench/phases"
	"github.com/tracerbench/tracebench/traceevent"
)

func TestMarkerFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "markers.yaml")
	require.NoError(t, os.WriteFile(file, []byte("- label: boot\n  start: navigationStart\n"), 0o600))

	tests := map[string]struct {
		flags markerFlags
		want  []phases.Marker
		err   bool
	}{
		"none": {},
		"inline": {
			flags: markerFlags{inline: "boot:navigationStart"},
			want:  []phases.Marker{{Label: "boot", Start: "navigationStart"}},
		},
		"file": {
			flags: markerFlags{file: file},
			want:  []phases.Marker{{Label: "boot", Start: "navigationStart"}},
		},
		"both": {
			flags: markerFlags{inline: "boot:navigationStart", file: file},
			err:   true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := tc.flags.load()
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLimitRuns(t *testing.T) {
	set := analyze.RunSet{Name: analyze.Control, Paths: []string{"a", "b", "c"}}
	assert.Equal(t, []string{"a", "b"}, limitRuns(set, 2).Paths)
	assert.Equal(t, []string{"a", "b", "c"}, limitRuns(set, 10).Paths)
}

func TestCompareRunSets(t *testing.T) {
	tests := map[string]struct {
		cmd compareCmd
		err bool
	}{
		"nothing":         {err: true},
		"dir and control": {cmd: compareCmd{dir: "x", controlDir: "y"}, err: true},
		"control only":    {cmd: compareCmd{controlDir: "y"}, err: true},
		"missing dir":     {cmd: compareCmd{dir: filepath.Join(t.TempDir(), "none")}, err: true},
		"dir":             {cmd: compareCmd{dir: t.TempDir(), controlURL: "http://a"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			control, _, err := tc.cmd.runSets()
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, analyze.Control, control.Name)
			assert.Equal(t, tc.cmd.controlURL, control.URL)
		})
	}
}

func TestSaveEventsReadBack(t *testing.T) {
	dur := int64(5)
	events := []traceevent.Event{
		{Name: "navigationStart", Ph: traceevent.PhaseInstant, Ts: 10, Pid: 1, Tid: 2},
		{Name: "FunctionCall", Ph: traceevent.PhaseComplete, Ts: 12, Dur: &dur, Pid: 1, Tid: 2,
			Args: map[string]any{"data": map[string]any{"url": "http://a/app.js"}}},
	}
	path := filepath.Join(t.TempDir(), "control-0-trace.json")
	require.NoError(t, saveEvents(path, events))

	res, err := ingest.File(path, ingest.Options{})
	require.NoError(t, err)
	assert.Equal(t, events, res.Events)
}
