// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package analyze

import (
	"cmp"
	"slices"

	"github.com/tracerbench/tracebench/libtb"
	"github.com/tracerbench/tracebench/trace"
	"github.com/tracerbench/tracebench/traceevent"
)

// scriptEvents are the trace events during which V8 compiles or runs script.
var scriptEvents = libtb.SliceToSet([]string{
	"EvaluateScript",
	"v8.evaluateModule",
	"FunctionCall",
	"v8.compile",
	"v8.compileModule",
	"RunMicrotasks",
})

// interval is a span of script execution on one thread.
type interval struct {
	start, end int64
	event      *traceevent.Event
}

// scriptIntervals collects the script spans of th from complete events and
// from matched begin/end pairs.
func scriptIntervals(th *trace.Thread) []interval {
	var (
		out  []interval
		open []*traceevent.Event
	)
	events := th.Events()
	for i := range events {
		ev := &events[i]
		switch ev.Ph {
		case traceevent.PhaseComplete:
			if scriptEvents.Has(ev.Name) {
				out = append(out, interval{start: ev.Ts, end: ev.End(), event: ev})
			}
		case traceevent.PhaseBegin:
			open = append(open, ev)
		case traceevent.PhaseEnd:
			if len(open) == 0 {
				continue
			}
			begin := open[len(open)-1]
			open = open[:len(open)-1]
			if scriptEvents.Has(begin.Name) {
				out = append(out, interval{start: begin.Ts, end: ev.Ts, event: begin})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b interval) int {
		return cmp.Compare(a.start, b.start)
	})
	return out
}

// mergeIntervals sums the union of sorted intervals and returns the
// outermost ones, those not nested in an earlier interval.
func mergeIntervals(sorted []interval) (total int64, outermost []interval) {
	var curStart, curEnd int64
	active := false
	for _, iv := range sorted {
		if active && iv.start < curEnd {
			curEnd = max(curEnd, iv.end)
			continue
		}
		if active {
			total += curEnd - curStart
		}
		curStart, curEnd, active = iv.start, iv.end, true
		outermost = append(outermost, iv)
	}
	if active {
		total += curEnd - curStart
	}
	return total, outermost
}
