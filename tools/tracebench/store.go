// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"slices"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/libtb"
	"github.com/tracerbench/tracebench/sourcestore"
)

func newStoreCmd(g *globalFlags) *ffcli.Command {
	return &ffcli.Command{
		Name:       "store",
		ShortUsage: "store <subcommand> [flags]",
		ShortHelp:  "Manage the script source store",
		Subcommands: []*ffcli.Command{
			newStoreInsertCmd(g),
			newStoreUploadCmd(g),
			newStoreListCmd(g),
			newStoreCleanCmd(g),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

// openAnyStore opens the remote store when a bucket is configured and a
// purely local one otherwise.
func (g *globalFlags) openAnyStore(ctx context.Context) (*sourcestore.Store, error) {
	if g.bucket != "" {
		return g.openStore(ctx)
	}
	return sourcestore.New(nil, "", g.cacheDir)
}

type storeInsertCmd struct {
	g *globalFlags

	// User-specified command line arguments.
	url    string
	path   string
	upload bool
}

func newStoreInsertCmd(g *globalFlags) *ffcli.Command {
	cmd := storeInsertCmd{g: g}
	set := flag.NewFlagSet("insert", flag.ExitOnError)
	set.StringVar(&cmd.url, "url", "", "Url the script is served from")
	set.StringVar(&cmd.path, "path", "", "Local copy of the script")
	set.BoolVar(&cmd.upload, "upload", false, "Upload the script after inserting it")
	return &ffcli.Command{
		Name:       "insert",
		ShortUsage: "insert -url <url> -path <file> [flags]",
		ShortHelp:  "Insert a script into the local cache",
		FlagSet:    set,
		Options:    subcommandOptions,
		Exec:       cmd.exec,
	}
}

func (cmd *storeInsertCmd) exec(ctx context.Context, _ []string) error {
	if cmd.url == "" || cmd.path == "" {
		return errors.New("please pass both `-url` and `-path`")
	}
	store, err := cmd.g.openAnyStore(ctx)
	if err != nil {
		return err
	}
	id, isNew, err := store.InsertFileLocally(cmd.url, cmd.path)
	if err != nil {
		return err
	}
	log.Infof("Stored %s as %s (new: %t)", cmd.url, id, isNew)
	if cmd.upload {
		return store.Upload(ctx, cmd.url)
	}
	return nil
}

type storeUploadCmd struct {
	g *globalFlags
}

func newStoreUploadCmd(g *globalFlags) *ffcli.Command {
	cmd := storeUploadCmd{g: g}
	return &ffcli.Command{
		Name:       "upload",
		ShortUsage: "upload <url> ...",
		ShortHelp:  "Upload cached scripts to the remote storage",
		FlagSet:    flag.NewFlagSet("upload", flag.ExitOnError),
		Exec:       cmd.exec,
	}
}

func (cmd *storeUploadCmd) exec(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return errors.New("please pass at least one url")
	}
	store, err := cmd.g.openStore(ctx)
	if err != nil {
		return err
	}
	for _, url := range urls {
		if err = store.Upload(ctx, url); err != nil {
			return fmt.Errorf("failed to upload %s: %w", url, err)
		}
		log.Infof("Uploaded %s", url)
	}
	return nil
}

type storeListCmd struct {
	g *globalFlags

	// User-specified command line arguments.
	remote bool
}

func newStoreListCmd(g *globalFlags) *ffcli.Command {
	cmd := storeListCmd{g: g}
	set := flag.NewFlagSet("list", flag.ExitOnError)
	set.BoolVar(&cmd.remote, "remote", false, "List the remote storage instead of the local cache")
	return &ffcli.Command{
		Name:       "list",
		ShortUsage: "list [flags]",
		ShortHelp:  "List the stored script bundles",
		FlagSet:    set,
		Options:    subcommandOptions,
		Exec:       cmd.exec,
	}
}

func (cmd *storeListCmd) exec(ctx context.Context, _ []string) error {
	if !cmd.remote {
		store, err := cmd.g.openAnyStore(ctx)
		if err != nil {
			return err
		}
		local, err := store.ListLocal()
		if err != nil {
			return err
		}
		for _, id := range sortedIDs(local) {
			fmt.Println(id)
		}
		return nil
	}

	store, err := cmd.g.openStore(ctx)
	if err != nil {
		return err
	}
	remote, err := store.ListRemote(ctx)
	if err != nil {
		return err
	}
	for _, id := range sortedIDs(remote) {
		key, err := sourcestore.IDFromString(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", id, remote[key].Format(time.RFC3339))
	}
	return nil
}

func sortedIDs[V any](m map[sourcestore.ID]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id.String())
	}
	slices.Sort(ids)
	return ids
}

type storeCleanCmd struct {
	g *globalFlags

	// User-specified command line arguments.
	temp, remote, dry bool
	minAge            uint64
}

func newStoreCleanCmd(g *globalFlags) *ffcli.Command {
	cmd := storeCleanCmd{g: g}
	set := flag.NewFlagSet("clean", flag.ExitOnError)
	set.BoolVar(&cmd.temp, "temp", true, "Delete lingering temporary files in the local cache")
	set.BoolVar(&cmd.remote, "remote", false,
		"Delete old bundles from the remote storage and the local cache")
	set.BoolVar(&cmd.dry, "dry-run", false, "Perform a dry-run (don't actually delete)")
	set.Uint64Var(&cmd.minAge, "min-age", 6*30,
		"Minimum bundle age to remove from remote, in days (default: 6 months)")
	return &ffcli.Command{
		Name:       "clean",
		ShortUsage: "clean [flags]",
		ShortHelp:  "Remove temporary files and old bundles",
		FlagSet:    set,
		Options:    subcommandOptions,
		Exec:       cmd.exec,
	}
}

func (cmd *storeCleanCmd) exec(ctx context.Context, _ []string) error {
	store, err := cmd.g.openAnyStore(ctx)
	if err != nil {
		return err
	}
	if cmd.temp && !cmd.dry {
		if err = store.RemoveLocalTempFiles(); err != nil {
			return fmt.Errorf("failed to delete temp files: %w", err)
		}
	}
	if !cmd.remote {
		return nil
	}
	if cmd.g.bucket == "" {
		return errors.New("please pass -store-bucket to clean the remote storage")
	}

	remote, err := store.ListRemote(ctx)
	if err != nil {
		return fmt.Errorf("failed to receive remote bundle list: %w", err)
	}
	local, err := store.ListLocal()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-time.Duration(cmd.minAge) * 24 * time.Hour)
	old := libtb.Set[sourcestore.ID]{}
	for id, modified := range remote {
		if modified.Before(cutoff) {
			old.Add(id)
		}
	}
	for id := range old {
		log.Infof("Deleting bundle %s", id)
		if cmd.dry {
			continue
		}
		if err = store.RemoveRemote(ctx, id); err != nil {
			return err
		}
		if local.Has(id) {
			if err = store.RemoveLocal(id); err != nil {
				return err
			}
		}
	}
	return nil
}
