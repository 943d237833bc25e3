// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package analyze

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tracerbench/tracebench/ingest"
	"github.com/tracerbench/tracebench/metrics"
	"github.com/tracerbench/tracebench/samples"
	"github.com/tracerbench/tracebench/trace"
)

const (
	Control    = "control"
	Experiment = "experiment"
)

// RunSet lists the captured traces of one side of a comparison.
type RunSet struct {
	// Name is Control or Experiment.
	Name string
	// URL is the page the traces were captured from, used in messages.
	URL string
	// Paths of trace files, HAR archives end in ".har".
	Paths []string
}

// UnusableRun is a run left out of the comparison.
type UnusableRun struct {
	Set  string
	Path string
	Err  error
}

// Samples is the analysis of a control and an experiment set.
type Samples struct {
	Control    []samples.Sample
	Experiment []samples.Sample
	Unusable   []UnusableRun
	Warnings   []error
}

type runResult struct {
	analysis *Analysis
	unusable error
}

// Runs parses and analyzes every trace of both sets concurrently. Sample
// order follows path order. A run whose trace cannot be read, parsed or is
// empty is reported in Unusable and does not affect the other runs; a set
// without any usable run fails with ErrNoUsableRuns. Cancelling ctx aborts
// all runs.
func Runs(ctx context.Context, control, experiment RunSet, cfg Config) (*Samples, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	limit := cfg.Parallelism
	if limit == 0 {
		limit = runtime.NumCPU()
	}

	sets := []RunSet{control, experiment}
	results := make([][]runResult, len(sets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for si, set := range sets {
		results[si] = make([]runResult, len(set.Paths))
		for pi, path := range set.Paths {
			g.Go(func() error {
				res, err := File(gctx, path, cfg)
				if err != nil {
					if errors.Is(err, context.Canceled) ||
						errors.Is(err, context.DeadlineExceeded) {
						return fmt.Errorf("%s run %s: %w", set.Name, path, err)
					}
					results[si][pi].unusable = err
					return nil
				}
				results[si][pi].analysis = res
				return nil
			})
		}
	}
	err := g.Wait()
	if cfg.Resolver != nil {
		cfg.Resolver.ReportMetrics()
	}
	if err != nil {
		return nil, err
	}

	out := &Samples{}
	for si, set := range sets {
		var usable []samples.Sample
		for pi, r := range results[si] {
			if r.unusable != nil {
				log.Warnf("Ignoring %s run %s: %v", set.Name, set.Paths[pi], r.unusable)
				metrics.Add(metrics.IDUnusableRuns, 1)
				out.Unusable = append(out.Unusable,
					UnusableRun{Set: set.Name, Path: set.Paths[pi], Err: r.unusable})
				continue
			}
			usable = append(usable, r.analysis.Sample)
			out.Warnings = append(out.Warnings, r.analysis.Warnings...)
		}
		if len(usable) == 0 {
			return nil, fmt.Errorf("%w: could not sample from provided url: %s",
				ErrNoUsableRuns, set.source())
		}
		if si == 0 {
			out.Control = usable
		} else {
			out.Experiment = usable
		}
	}
	return out, nil
}

func (s RunSet) source() string {
	if s.URL != "" {
		return s.URL
	}
	if len(s.Paths) > 0 {
		return filepath.Dir(s.Paths[0])
	}
	return s.Name
}

// File reads, builds and analyzes one trace file. HAR archives are
// recognized by their extension.
func File(ctx context.Context, path string, cfg Config) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	read := ingest.File
	if isArchive(path) {
		read = ingest.ArchiveFile
	}
	res, err := read(path, cfg.Ingest)
	if err != nil {
		return nil, err
	}
	tr := trace.Build(res.Events, trace.WithName(filepath.Base(path)))
	return Run(ctx, tr, cfg)
}

// traceSuffixes are the file names recognized as captured traces.
var traceSuffixes = []string{".json", ".json.gz", ".json.zst", ".har", ".har.gz", ".har.zst"}

func isArchive(name string) bool {
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".zst")
	return strings.HasSuffix(name, ".har")
}

func isTraceFile(name string) bool {
	return slices.ContainsFunc(traceSuffixes, func(s string) bool {
		return strings.HasSuffix(name, s)
	})
}

// SplitTraceDir returns the control and experiment traces of dir, told
// apart by their "control" and "experiment" file name prefixes, sorted by
// name.
func SplitTraceDir(dir string) (control, experiment RunSet, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return RunSet{}, RunSet{}, err
	}
	control = RunSet{Name: Control}
	experiment = RunSet{Name: Experiment}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isTraceFile(name) {
			continue
		}
		switch {
		case strings.HasPrefix(name, Control):
			control.Paths = append(control.Paths, filepath.Join(dir, name))
		case strings.HasPrefix(name, Experiment):
			experiment.Paths = append(experiment.Paths, filepath.Join(dir, name))
		}
	}
	return control, experiment, nil
}

// ListTraces returns the trace files of dir sorted by name.
func ListTraces(dir, name string) (RunSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return RunSet{}, err
	}
	set := RunSet{Name: name}
	for _, e := range entries {
		if !e.IsDir() && isTraceFile(e.Name()) {
			set.Paths = append(set.Paths, filepath.Join(dir, e.Name()))
		}
	}
	return set, nil
}
