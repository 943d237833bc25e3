// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package report defines the persisted outcome of a benchmark comparison.
package report // import "github.com/tracerbench/tracebench/report"

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/tracerbench/tracebench/analyze"
	"github.com/tracerbench/tracebench/metrics"
	"github.com/tracerbench/tracebench/samples"
	"github.com/tracerbench/tracebench/stats"
)

var fidelityLookup = map[string]int{
	"test":   2,
	"low":    10,
	"medium": 20,
	"high":   30,
}

// ParseFidelity converts a fidelity name or a positive run count into a
// number of runs per set.
func ParseFidelity(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, ok := fidelityLookup[s]; ok {
		return n, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid fidelity %q: expected test, low, medium, high or a positive number", s)
	}
	return n, nil
}

// Set is one side of the comparison.
type Set struct {
	Name    string           `json:"set"`
	URL     string           `json:"url,omitempty"`
	Samples []samples.Sample `json:"samples"`
	// Unusable lists the traces left out, with the reason.
	Unusable []string `json:"unusable,omitempty"`
}

// Report is written by the compare command.
type Report struct {
	ID           uuid.UUID         `json:"id"`
	Created      time.Time         `json:"created"`
	Fidelity     int               `json:"fidelity,omitempty"`
	Sets         []Set             `json:"sets"`
	Comparison   *stats.Comparison `json:"comparison"`
	Warnings     []string          `json:"warnings,omitempty"`
	Insufficient []string          `json:"insufficient,omitempty"`
	// Counters holds the non-zero tracebench counters at report time.
	Counters map[string]int64 `json:"counters,omitempty"`
}

// New assembles a report from the analyzed runs and their comparison.
func New(control, experiment analyze.RunSet, s *analyze.Samples,
	cmp *stats.Comparison, fidelity int) *Report {
	r := &Report{
		ID:         uuid.New(),
		Created:    time.Now().UTC(),
		Fidelity:   fidelity,
		Comparison: cmp,
		Counters:   make(map[string]int64),
	}
	for _, set := range []struct {
		rs      analyze.RunSet
		samples []samples.Sample
	}{
		{control, s.Control},
		{experiment, s.Experiment},
	} {
		out := Set{Name: set.rs.Name, URL: set.rs.URL, Samples: set.samples}
		for _, u := range s.Unusable {
			if u.Set == set.rs.Name {
				out.Unusable = append(out.Unusable, fmt.Sprintf("%s: %v", u.Path, u.Err))
			}
		}
		r.Sets = append(r.Sets, out)
	}
	for _, w := range s.Warnings {
		r.Warnings = append(r.Warnings, w.Error())
	}
	for _, e := range cmp.Insufficient {
		r.Insufficient = append(r.Insufficient, e.Error())
	}
	for id, value := range metrics.Snapshot() {
		if value != 0 {
			r.Counters[metrics.NameOf(id)] = int64(value)
		}
	}
	return r
}

// Set returns the set named name.
func (r *Report) Set(name string) (*Set, bool) {
	for i := range r.Sets {
		if r.Sets[i].Name == name {
			return &r.Sets[i], true
		}
	}
	return nil, false
}

// Encode writes r as indented JSON.
func (r *Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Decode reads a report written by Encode.
func Decode(rd io.Reader) (*Report, error) {
	var r Report
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if r.Comparison == nil {
		return nil, fmt.Errorf("report %s has no comparison", r.ID)
	}
	return &r, nil
}

// WriteTable prints one row per compared metric.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "METRIC\tCONTROL\tEXPERIMENT\tDELTA\tSIGNIFICANT\n")
	for _, rec := range r.Comparison.Records {
		fmt.Fprintf(tw, "%s\t%.0fµs\t%.0fµs\t%+.0fµs (%+.1f%%)\t%t\n",
			rec.Name, rec.ControlQuantile, rec.ExperimentQuantile,
			rec.Delta, rec.DeltaPercent, rec.Significant)
	}
	return tw.Flush()
}
