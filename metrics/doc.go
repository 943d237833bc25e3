// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics counts what the analysis pipeline did: events ingested and
skipped, module cache activity, unresolved frames, missing phase markers,
unusable runs and comparisons.

Every metric is declared in metrics.json and exported as an OpenTelemetry
Int64Counter through the global meter provider. The same values are also kept
as in-process totals so a command can print them without an exporter:

	metrics.Add(metrics.IDTraceEventsParsed, metrics.MetricValue(len(events)))
	...
	for id, v := range metrics.Snapshot() { ... }

To add a metric append an entry to metrics.json and run go generate.
*/
package metrics // import "github.com/tracerbench/tracebench/metrics"
