// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracerbench/tracebench/traceevent"
)

const (
	goodA = `{"name":"navigationStart","cat":"blink.user_timing","ph":"I","ts":10,"pid":1,"tid":1}`
	goodB = `{"name":"FunctionCall","cat":"devtools.timeline","ph":"X","ts":20,"dur":5,"pid":1,"tid":1}`
	bad   = `{"name":"broken","ph":"B","pid":1,"tid":1}`
)

func names(events []traceevent.Event) []string {
	out := make([]string, 0, len(events))
	for i := range events {
		out = append(out, events[i].Name)
	}
	return out
}

func TestRead(t *testing.T) {
	tests := map[string]struct {
		input   string
		lenient bool
		names   []string
		skipped int
		errMsg  string
	}{
		"array form": {
			input: "[" + goodA + "," + goodB + "]",
			names: []string{"navigationStart", "FunctionCall"},
		},
		"object form": {
			input: `{"metadata":{"source":"DevTools"},"traceEvents":[` + goodA + `],"other":[1]}`,
			names: []string{"navigationStart"},
		},
		"missing closing bracket": {
			input: "[" + goodA + "," + goodB + ",\n",
			names: []string{"navigationStart", "FunctionCall"},
		},
		"strict rejects malformed": {
			input:  "[" + goodA + "," + bad + "," + goodB + "]",
			errMsg: "trace event 1: missing ts",
		},
		"lenient skips malformed": {
			input:   "[" + goodA + "," + bad + `,"junk",` + goodB + "]",
			lenient: true,
			names:   []string{"navigationStart", "FunctionCall"},
			skipped: 2,
		},
		"lenient accepts event cut in half": {
			input:   "[" + goodA + `,{"name":"cut`,
			lenient: true,
			names:   []string{"navigationStart"},
		},
		"object without traceEvents": {
			input:  `{"foo":[]}`,
			errMsg: "object has no traceEvents field",
		},
		"scalar": {
			input:  `42`,
			errMsg: "expected a JSON array or object",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := Read(strings.NewReader(tc.input), Options{Lenient: tc.lenient})
			if tc.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.names, names(res.Events))
			assert.Equal(t, tc.skipped, res.Skipped)
		})
	}
}

func TestReadStrictErrorType(t *testing.T) {
	_, err := Read(strings.NewReader("["+bad+"]"), Options{})
	var parseErr *traceevent.EventParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 0, parseErr.Index)
}

func TestCompressedFile(t *testing.T) {
	payload := []byte("[" + goodA + "," + goodB + "]")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zst := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	dir := t.TempDir()
	files := map[string][]byte{
		"plain.json":    payload,
		"trace.json.gz": gz.Bytes(),
		"trace.json.zs": zst,
	}
	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, data, 0o600))
			res, err := File(path, Options{})
			require.NoError(t, err)
			assert.Equal(t, []string{"navigationStart", "FunctionCall"}, names(res.Events))
		})
	}
}

func TestFileMissing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope.json"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
