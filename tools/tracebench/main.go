// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// tracebench analyzes browser performance traces and compares a control
// against an experiment run by run.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/tracerbench/tracebench/jsmodule"
	"github.com/tracerbench/tracebench/sourcestore"
)

const (
	verboseHelp   = "Enable verbose logging and debugging capabilities."
	bucketHelp    = "S3 bucket holding the source store. Without it sources are read from -sources."
	endpointHelp  = "Custom S3 endpoint, e.g. a MinIO server."
	regionHelp    = "Region of the source store bucket."
	cacheHelp     = "Local directory caching source store objects."
	sourcesHelp   = "Directory with script sources named after the last element of their url."
	cacheSizeHelp = "Number of parsed script files kept in memory."
)

// globalFlags are shared by all subcommands.
type globalFlags struct {
	verbose   bool
	bucket    string
	endpoint  string
	region    string
	cacheDir  string
	sources   string
	cacheSize uint
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&g.verbose, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&g.verbose, "verbose", false, verboseHelp)
	fs.StringVar(&g.bucket, "store-bucket", "", bucketHelp)
	fs.StringVar(&g.endpoint, "store-endpoint", "", endpointHelp)
	fs.StringVar(&g.region, "store-region", "us-east-1", regionHelp)
	fs.StringVar(&g.cacheDir, "store-cache", "sourcecache", cacheHelp)
	fs.StringVar(&g.sources, "sources", "", sourcesHelp)
	fs.UintVar(&g.cacheSize, "module-cache-size", 256, cacheSizeHelp)
	fs.String("config", "", "Path to a config file with one flag per line.")
}

func (g *globalFlags) setupLogging() {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{})
	if g.verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// openStore returns the S3 backed source store.
func (g *globalFlags) openStore(ctx context.Context) (*sourcestore.Store, error) {
	if g.bucket == "" {
		return nil, errors.New("please pass -store-bucket")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(g.region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if g.endpoint != "" {
			o.BaseEndpoint = aws.String(g.endpoint)
			o.UsePathStyle = true
		}
	})
	return sourcestore.New(client, g.bucket, g.cacheDir)
}

// provider returns the configured source provider, nil when there is none.
func (g *globalFlags) provider(ctx context.Context) (jsmodule.SourceProvider, error) {
	switch {
	case g.bucket != "":
		store, err := g.openStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open source store: %w", err)
		}
		return store, nil
	case g.sources != "":
		return jsmodule.DirSource{Dir: g.sources}, nil
	}
	return nil, nil
}

// resolver builds the module resolver from the configured source provider.
// It returns nil when no provider is configured.
func (g *globalFlags) resolver(ctx context.Context) (*jsmodule.Resolver, error) {
	provider, err := g.provider(ctx)
	if err != nil || provider == nil {
		return nil, err
	}
	cache, err := jsmodule.NewCache(uint32(g.cacheSize))
	if err != nil {
		return nil, err
	}
	return jsmodule.NewResolver(cache, provider), nil
}

func main() {
	g := &globalFlags{}
	fs := flag.NewFlagSet("tracebench", flag.ExitOnError)
	g.register(fs)

	root := &ffcli.Command{
		Name:       "tracebench",
		ShortUsage: "tracebench [flags] <subcommand> [flags]",
		ShortHelp:  "Tool for analyzing and comparing browser performance traces",
		FlagSet:    fs,
		Options: []ff.Option{
			ff.WithEnvVarPrefix("TRACEBENCH"),
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ff.PlainParser),
			ff.WithAllowMissingConfigFile(true),
		},
		Subcommands: []*ffcli.Command{
			newCompareCmd(g),
			newAnalyzeCmd(g),
			newResolveCmd(g),
			newStoreCmd(g),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		unix.SIGINT, unix.SIGTERM)
	defer stop()

	if err := root.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("%v", err)
	}
	g.setupLogging()

	if err := root.Run(ctx); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Fatalf("%v", err)
		}
	}
}
