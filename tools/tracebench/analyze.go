// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/analyze"
	"github.com/tracerbench/tracebench/ingest"
	"github.com/tracerbench/tracebench/samples"
	"github.com/tracerbench/tracebench/trace"
	"github.com/tracerbench/tracebench/traceevent"
)

// traceCategories are requested from the browser for live captures.
var traceCategories = []string{
	"devtools.timeline",
	"v8",
	"v8.execute",
	"blink.user_timing",
	"loading",
	"__metadata",
}

type analyzeCmd struct {
	g       *globalFlags
	markers markerFlags

	// User-specified command line arguments.
	live     string
	duration time.Duration
	save     string
	lenient  bool
}

func newAnalyzeCmd(g *globalFlags) *ffcli.Command {
	cmd := analyzeCmd{g: g}
	set := flag.NewFlagSet("analyze", flag.ExitOnError)
	cmd.markers.register(set)
	set.StringVar(&cmd.live, "live", "",
		"DevTools websocket url of a page to trace instead of reading files")
	set.DurationVar(&cmd.duration, "duration", 5*time.Second, "Length of a live capture")
	set.StringVar(&cmd.save, "save", "", "Write the events of a live capture to this file")
	set.BoolVar(&cmd.lenient, "lenient", false, "Skip malformed trace events")
	return &ffcli.Command{
		Name:       "analyze",
		ShortUsage: "analyze [flags] [trace ...]",
		ShortHelp:  "Print the sample of each trace as JSON",
		FlagSet:    set,
		Options:    subcommandOptions,
		Exec:       cmd.exec,
	}
}

func (cmd *analyzeCmd) exec(ctx context.Context, args []string) error {
	if (cmd.live == "") == (len(args) == 0) {
		return errors.New("please pass either trace files or `-live` (but not both)")
	}
	markers, err := cmd.markers.load()
	if err != nil {
		return err
	}
	resolver, err := cmd.g.resolver(ctx)
	if err != nil {
		return err
	}
	cfg := analyze.Config{
		Markers:  markers,
		Resolver: resolver,
		Ingest:   ingest.Options{Lenient: cmd.lenient},
	}
	if err = cfg.Validate(); err != nil {
		return err
	}

	var out []samples.Sample
	if cmd.live != "" {
		res, err := cmd.capture(ctx)
		if err != nil {
			return err
		}
		s, err := analyzeEvents(ctx, res.Events, "live", cfg)
		if err != nil {
			return err
		}
		out = append(out, s)
	}
	for _, path := range args {
		res, err := analyze.File(ctx, path, cfg)
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			log.Warn(w)
		}
		out = append(out, res.Sample)
	}
	if resolver != nil {
		resolver.ReportMetrics()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func analyzeEvents(ctx context.Context, events []traceevent.Event, name string,
	cfg analyze.Config) (samples.Sample, error) {
	tr, err := trace.BuildNonEmpty(events, trace.WithName(name))
	if err != nil {
		return samples.Sample{}, err
	}
	res, err := analyze.Run(ctx, tr, cfg)
	if err != nil {
		return samples.Sample{}, err
	}
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	return res.Sample, nil
}

type protocolCommand struct {
	ID     int            `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// capture records a trace of the page behind the DevTools websocket.
func (cmd *analyzeCmd) capture(ctx context.Context) (ingest.Result, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cmd.live, nil)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("failed to connect to %s: %w", cmd.live, err)
	}
	defer conn.Close()

	err = conn.WriteJSON(protocolCommand{
		ID:     1,
		Method: "Tracing.start",
		Params: map[string]any{
			"transferMode": "ReportEvents",
			"traceConfig":  map[string]any{"includedCategories": traceCategories},
		},
	})
	if err != nil {
		return ingest.Result{}, fmt.Errorf("failed to start tracing: %w", err)
	}
	log.Infof("Tracing %s for %v", cmd.live, cmd.duration)

	select {
	case <-ctx.Done():
		return ingest.Result{}, ctx.Err()
	case <-time.After(cmd.duration):
	}

	if err = conn.WriteJSON(protocolCommand{ID: 2, Method: "Tracing.end"}); err != nil {
		return ingest.Result{}, fmt.Errorf("failed to end tracing: %w", err)
	}
	res, err := ingest.Live(ctx, conn, ingest.Options{Lenient: cmd.lenient})
	if err != nil {
		return ingest.Result{}, err
	}
	if cmd.save != "" {
		if err = saveEvents(cmd.save, res.Events); err != nil {
			return ingest.Result{}, err
		}
	}
	return res, nil
}

// saveEvents writes events in the object form read back by ingest.File.
func saveEvents(path string, events []traceevent.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = json.NewEncoder(f).Encode(struct {
		TraceEvents []traceevent.Event `json:"traceEvents"`
	}{events})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
