// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/jsmodule"
)

type resolveCmd struct {
	g *globalFlags

	// User-specified command line arguments.
	url        string
	line       int
	column     int
	boundaries bool
}

func newResolveCmd(g *globalFlags) *ffcli.Command {
	cmd := resolveCmd{g: g}
	set := flag.NewFlagSet("resolve", flag.ExitOnError)
	set.StringVar(&cmd.url, "url", "", "Url of the script")
	set.IntVar(&cmd.line, "line", 0, "0-based line of the frame")
	set.IntVar(&cmd.column, "column", 0, "0-based column of the frame")
	set.BoolVar(&cmd.boundaries, "boundaries", false,
		"List the module boundaries of the script instead")
	return &ffcli.Command{
		Name:       "resolve",
		ShortUsage: "resolve -url <url> [flags]",
		ShortHelp:  "Resolve a script position to the module defining it",
		FlagSet:    set,
		Options:    subcommandOptions,
		Exec:       cmd.exec,
	}
}

func (cmd *resolveCmd) exec(ctx context.Context, _ []string) error {
	if cmd.url == "" {
		return errors.New("please pass `-url`")
	}
	if cmd.line < 0 || cmd.column < 0 {
		return errors.New("`-line` and `-column` must not be negative")
	}
	provider, err := cmd.g.provider(ctx)
	if err != nil {
		return err
	}
	if provider == nil {
		return errors.New("please pass `-sources` or `-store-bucket`")
	}

	if cmd.boundaries {
		source, err := provider.Source(ctx, cmd.url)
		if err != nil {
			return err
		}
		file := jsmodule.NewParsedFile(cmd.url, source)
		log.Debugf("Script %s binds define to %q", cmd.url,
			jsmodule.FindMangledDefine(source))
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "MODULE\tSTART\tEND\n")
		for _, b := range file.Boundaries() {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", b.Name, b.Start, b.End)
		}
		return tw.Flush()
	}

	resolver, err := cmd.g.resolver(ctx)
	if err != nil {
		return err
	}
	name, err := resolver.Resolve(ctx, jsmodule.CallFrame{
		URL:          cmd.url,
		LineNumber:   cmd.line,
		ColumnNumber: cmd.column,
	})
	if err != nil {
		log.Warn(err)
	}
	resolver.ReportMetrics()
	fmt.Println(name)
	return nil
}
