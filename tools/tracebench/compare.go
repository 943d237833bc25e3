// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/analyze"
	"github.com/tracerbench/tracebench/ingest"
	"github.com/tracerbench/tracebench/report"
	"github.com/tracerbench/tracebench/stats"
)

type compareCmd struct {
	g       *globalFlags
	markers markerFlags

	// User-specified command line arguments.
	dir           string
	controlDir    string
	experimentDir string
	controlURL    string
	experimentURL string
	fidelity      string
	output        string
	lenient       bool
	parallelism   int
	alpha         float64
	minSamples    int
	modules       bool
}

func newCompareCmd(g *globalFlags) *ffcli.Command {
	cmd := compareCmd{g: g}
	set := flag.NewFlagSet("compare", flag.ExitOnError)
	cmd.markers.register(set)
	set.StringVar(&cmd.dir, "dir", "",
		"Directory holding control-* and experiment-* traces")
	set.StringVar(&cmd.controlDir, "control-dir", "", "Directory holding the control traces")
	set.StringVar(&cmd.experimentDir, "experiment-dir", "",
		"Directory holding the experiment traces")
	set.StringVar(&cmd.controlURL, "control-url", "", "Page the control traces were captured from")
	set.StringVar(&cmd.experimentURL, "experiment-url", "",
		"Page the experiment traces were captured from")
	set.StringVar(&cmd.fidelity, "fidelity", "low",
		"Runs used per set: test, low, medium, high or a number")
	set.StringVar(&cmd.output, "output", "tracebench-report",
		"Report path without the .json extension")
	set.BoolVar(&cmd.lenient, "lenient", false, "Skip malformed trace events")
	set.IntVar(&cmd.parallelism, "parallelism", 0, "Traces parsed at once, 0 for one per CPU")
	set.Float64Var(&cmd.alpha, "alpha", 0.05, "Significance level")
	set.IntVar(&cmd.minSamples, "min-samples", 2, "Smallest population that is tested")
	set.BoolVar(&cmd.modules, "modules", false, "Also compare the script time of every module")
	return &ffcli.Command{
		Name:       "compare",
		ShortUsage: "compare [flags]",
		ShortHelp:  "Compare the traces of a control and an experiment",
		FlagSet:    set,
		Options:    subcommandOptions,
		Exec:       cmd.exec,
	}
}

func (cmd *compareCmd) runSets() (control, experiment analyze.RunSet, err error) {
	switch {
	case cmd.dir != "" && (cmd.controlDir != "" || cmd.experimentDir != ""):
		return control, experiment,
			errors.New("please pass either `-dir` or `-control-dir` and `-experiment-dir`")
	case cmd.dir != "":
		control, experiment, err = analyze.SplitTraceDir(cmd.dir)
	case cmd.controlDir != "" && cmd.experimentDir != "":
		if control, err = analyze.ListTraces(cmd.controlDir, analyze.Control); err != nil {
			return control, experiment, err
		}
		experiment, err = analyze.ListTraces(cmd.experimentDir, analyze.Experiment)
	default:
		return control, experiment,
			errors.New("please pass `-dir` or both `-control-dir` and `-experiment-dir`")
	}
	control.URL = cmd.controlURL
	experiment.URL = cmd.experimentURL
	return control, experiment, err
}

// limitRuns keeps at most fidelity runs of a set.
func limitRuns(set analyze.RunSet, fidelity int) analyze.RunSet {
	if len(set.Paths) < fidelity {
		log.Warnf("Only %d %s traces available, %d requested", len(set.Paths), set.Name, fidelity)
		return set
	}
	set.Paths = set.Paths[:fidelity]
	return set
}

func (cmd *compareCmd) exec(ctx context.Context, _ []string) error {
	fidelity, err := report.ParseFidelity(cmd.fidelity)
	if err != nil {
		return err
	}
	markers, err := cmd.markers.load()
	if err != nil {
		return err
	}
	control, experiment, err := cmd.runSets()
	if err != nil {
		return err
	}
	control = limitRuns(control, fidelity)
	experiment = limitRuns(experiment, fidelity)

	resolver, err := cmd.g.resolver(ctx)
	if err != nil {
		return err
	}
	cfg := analyze.Config{
		Markers:     markers,
		Resolver:    resolver,
		Ingest:      ingest.Options{Lenient: cmd.lenient},
		Parallelism: cmd.parallelism,
	}
	runs, err := analyze.Runs(ctx, control, experiment, cfg)
	if err != nil {
		return err
	}
	for _, w := range runs.Warnings {
		log.Warn(w)
	}

	cmp, err := stats.Compare(runs.Control, runs.Experiment, stats.Options{
		Alpha:      cmd.alpha,
		MinSamples: cmd.minSamples,
		Modules:    cmd.modules && resolver != nil,
	})
	if err != nil {
		return err
	}

	rep := report.New(control, experiment, runs, cmp, fidelity)
	path := cmd.output + ".json"
	if err = writeReport(rep, path); err != nil {
		return err
	}
	if err = rep.WriteTable(os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\n%s\n", cmp.Summary(path))
	return nil
}

func writeReport(rep *report.Report, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err = rep.Encode(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
