// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	//go:embed metrics.json
	metricsJSON []byte

	meter    = otel.Meter("github.com/tracerbench/tracebench")
	counters = map[MetricID]metric.Int64Counter{}
	names    = map[MetricID]string{}

	// totals mirrors every counter so values are readable without an exporter.
	totals [IDMax]atomic.Int64
)

func init() {
	for _, md := range GetDefinitions() {
		names[md.ID] = md.Name
		if md.Obsolete {
			continue
		}
		switch typ := md.Type; typ {
		case MetricTypeCounter:
			counter, err := meter.Int64Counter(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Counter: %v", err)
				continue
			}
			counters[md.ID] = counter
		default:
			panic(fmt.Sprintf("Unknown metric type: %v", typ))
		}
	}
}

// Add records value for the metric id.
func Add(id MetricID, value MetricValue) {
	if id <= IDInvalid || id >= IDMax {
		log.Errorf("Metric value %d out of range [%d,%d]- needs investigation",
			id, IDInvalid+1, IDMax-1)
		return
	}
	if value == 0 {
		return
	}
	counter, ok := counters[id]
	if !ok {
		log.Warnf("Invalid metric id %d, skipping", id)
		return
	}
	totals[id].Add(int64(value))
	counter.Add(context.Background(), int64(value))
}

// AddSlice records a batch of metrics.
func AddSlice(newMetrics []Metric) {
	for _, m := range newMetrics {
		Add(m.ID, m.Value)
	}
}

// Snapshot returns the non-zero totals recorded since process start.
func Snapshot() Summary {
	summary := make(Summary)
	for id := MetricID(IDInvalid + 1); id < IDMax; id++ {
		if v := totals[id].Load(); v != 0 {
			summary[id] = MetricValue(v)
		}
	}
	return summary
}

// GetDefinitions returns the metric definitions from the embedded metrics.json file.
func GetDefinitions() []MetricDefinition {
	var defs []MetricDefinition

	dec := json.NewDecoder(bytes.NewReader(metricsJSON))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&defs); err != nil {
		panic(fmt.Sprintf("extracting definitions from metrics.json: %v", err))
	}
	return defs
}

// NameOf returns the exported metric name for id, or "" if id is unknown.
func NameOf(id MetricID) string {
	return names[id]
}
