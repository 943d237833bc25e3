// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"flag"

	"github.com/peterbourgon/ff/v3"

	"github.com/tracerbench/tracebench/phases"
)

// subcommandOptions lets subcommand flags be set from the environment too.
var subcommandOptions = []ff.Option{ff.WithEnvVarPrefix("TRACEBENCH")}

// markerFlags selects the phase markers either inline or from a file.
type markerFlags struct {
	inline string
	file   string
}

func (m *markerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&m.inline, "markers", "",
		"Phase markers as label:startEvent[:endEvent], separated by commas")
	fs.StringVar(&m.file, "markers-file", "", "YAML or JSON file listing the phase markers")
}

// load returns nil markers when none were requested.
func (m *markerFlags) load() ([]phases.Marker, error) {
	switch {
	case m.inline != "" && m.file != "":
		return nil, errors.New("please pass either `-markers` or `-markers-file` (but not both)")
	case m.inline != "":
		return phases.ParseMarkers(m.inline)
	case m.file != "":
		return phases.LoadMarkers(m.file)
	}
	return nil, nil
}
