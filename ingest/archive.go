// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// harDocument is the subset of HAR 1.2 that carries trace events. Events
// live in the custom _traceEvents field of the log and of each page.
type harDocument struct {
	Log *struct {
		TraceEvents []json.RawMessage `json:"_traceEvents"`
		Pages       []struct {
			ID          string            `json:"id"`
			TraceEvents []json.RawMessage `json:"_traceEvents"`
		} `json:"pages"`
	} `json:"log"`
}

var errNoHARLog = errors.New("archive has no log object")

// ArchiveFile reads a HAR archive from path, compressed or not.
func ArchiveFile(path string, opts Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return archive(f, path, opts)
}

// Archive reads a HAR archive. Log level events come first, then the
// events of each page in document order.
func Archive(r io.Reader, opts Options) (Result, error) {
	return archive(r, "archive", opts)
}

func archive(r io.Reader, source string, opts Options) (Result, error) {
	plain, done, err := decompress(r)
	if err != nil {
		return Result{}, err
	}
	defer done()

	var doc harDocument
	if err = json.NewDecoder(plain).Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("failed to decode %s: %w", source, err)
	}
	if doc.Log == nil {
		return Result{}, fmt.Errorf("%s: %w", source, errNoHARLog)
	}

	c := newCollector(source, opts)
	if err = c.addAll(doc.Log.TraceEvents); err != nil {
		return Result{}, err
	}
	for _, page := range doc.Log.Pages {
		if err = c.addAll(page.TraceEvents); err != nil {
			return Result{}, fmt.Errorf("page %q: %w", page.ID, err)
		}
	}
	return c.finish(), nil
}
