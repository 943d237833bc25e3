// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package phases

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tracerbench/tracebench/libtb"
	"github.com/tracerbench/tracebench/samples"
)

// markerFile is the document form of a marker list. A bare list is
// accepted as well.
type markerFile struct {
	Markers []Marker `yaml:"markers"`
}

// LoadMarkers reads a YAML or JSON marker list from path.
func LoadMarkers(path string) ([]Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	markers, err := decodeMarkers(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse markers in %s: %w", path, err)
	}
	return markers, nil
}

func decodeMarkers(data []byte) ([]Marker, error) {
	var list []Marker
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc markerFile
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return nil, err
		}
		list = doc.Markers
	}
	if err := Validate(list); err != nil {
		return nil, err
	}
	return list, nil
}

// ParseMarkers parses the compact form "label:start[:end],...". An entry
// without a colon uses the start event name as its label.
func ParseMarkers(s string) ([]Marker, error) {
	var markers []Marker
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		var m Marker
		switch len(parts) {
		case 1:
			m = Marker{Label: parts[0], Start: parts[0]}
		case 2:
			m = Marker{Label: parts[0], Start: parts[1]}
		case 3:
			m = Marker{Label: parts[0], Start: parts[1], End: parts[2]}
		default:
			return nil, fmt.Errorf("invalid marker %q", entry)
		}
		markers = append(markers, m)
	}
	if err := Validate(markers); err != nil {
		return nil, err
	}
	return markers, nil
}

// Validate checks that every marker has a label and a start event and that
// labels are unique and do not collide with the built-in metric names.
func Validate(markers []Marker) error {
	if len(markers) == 0 {
		return errors.New("no markers")
	}
	seen := libtb.Set[string]{}
	for i, m := range markers {
		if m.Label == "" || m.Start == "" {
			return fmt.Errorf("marker %d needs a label and a start event", i)
		}
		if samples.IsReservedLabel(m.Label) {
			return fmt.Errorf("marker label %q is reserved for a built-in metric", m.Label)
		}
		if seen.Has(m.Label) {
			return fmt.Errorf("duplicate marker label %q", m.Label)
		}
		seen.Add(m.Label)
	}
	return nil
}
