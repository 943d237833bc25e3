// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest turns the three raw trace encodings (a Trace Event Format
// file, a HAR archive carrying trace events and a live DevTools feed) into
// one ordered slice of validated events.
package ingest // import "github.com/tracerbench/tracebench/ingest"

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/metrics"
	"github.com/tracerbench/tracebench/traceevent"
)

// Options controls how malformed events are handled.
type Options struct {
	// Lenient skips malformed events instead of failing the whole parse.
	Lenient bool
}

// Result is the outcome shared by all ingestion sources.
type Result struct {
	// Events in source order.
	Events []traceevent.Event
	// Skipped counts malformed events dropped in lenient mode.
	Skipped int
}

// collector validates raw events one at a time and applies Options.
type collector struct {
	opts   Options
	source string
	index  int
	result Result
}

func newCollector(source string, opts Options) *collector {
	return &collector{opts: opts, source: source}
}

func (c *collector) add(raw json.RawMessage) error {
	idx := c.index
	c.index++

	ev, err := traceevent.Parse(idx, raw)
	if err != nil {
		if !c.opts.Lenient {
			return err
		}
		log.Warnf("Skipping malformed event in %s: %v", c.source, err)
		c.result.Skipped++
		return nil
	}
	c.result.Events = append(c.result.Events, ev)
	return nil
}

func (c *collector) addAll(raws []json.RawMessage) error {
	for _, raw := range raws {
		if err := c.add(raw); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) finish() Result {
	metrics.Add(metrics.IDTraceEventsParsed, metrics.MetricValue(len(c.result.Events)))
	metrics.Add(metrics.IDTraceEventsSkipped, metrics.MetricValue(c.result.Skipped))
	log.Debugf("Ingested %d events from %s (%d skipped)",
		len(c.result.Events), c.source, c.result.Skipped)
	return c.result
}

// File reads a trace event file, compressed or not.
func File(path string, opts Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return read(f, path, opts)
}

// Read reads a trace in either the JSON array form or the object form with
// a traceEvents field.
func Read(r io.Reader, opts Options) (Result, error) {
	return read(r, "stream", opts)
}

func read(r io.Reader, source string, opts Options) (Result, error) {
	plain, done, err := decompress(r)
	if err != nil {
		return Result{}, err
	}
	defer done()

	c := newCollector(source, opts)
	dec := json.NewDecoder(plain)
	tok, err := dec.Token()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", source, err)
	}

	switch tok {
	case json.Delim('['):
		if err = c.readArray(dec); err != nil {
			return Result{}, err
		}
	case json.Delim('{'):
		if err = c.readObject(dec); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("%s: expected a JSON array or object, got %v", source, tok)
	}
	return c.finish(), nil
}

// readArray consumes array elements after the opening bracket. A missing
// closing bracket is accepted: Chrome leaves it out when a capture is cut.
func (c *collector) readArray(dec *json.Decoder) error {
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			if c.opts.Lenient && errors.Is(err, io.ErrUnexpectedEOF) {
				log.Warnf("Trace %s is truncated after %d events", c.source, c.index)
				return nil
			}
			return fmt.Errorf("failed to decode event %d of %s: %w", c.index, c.source, err)
		}
		if err := c.add(raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read end of %s: %w", c.source, err)
	}
	return nil
}

func (c *collector) readObject(dec *json.Decoder) error {
	found := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", c.source, err)
		}
		key, _ := tok.(string)
		if key != "traceEvents" {
			var skip json.RawMessage
			if err = dec.Decode(&skip); err != nil {
				return fmt.Errorf("failed to read field %q of %s: %w", key, c.source, err)
			}
			continue
		}
		found = true
		if tok, err = dec.Token(); err != nil {
			return fmt.Errorf("failed to read traceEvents of %s: %w", c.source, err)
		}
		if tok != json.Delim('[') {
			return fmt.Errorf("%s: traceEvents is not an array", c.source)
		}
		if err = c.readArray(dec); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("%s: object has no traceEvents field", c.source)
	}
	return nil
}
