// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace builds the process/thread hierarchy of one run's trace events.
package trace // import "github.com/tracerbench/tracebench/trace"

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"github.com/tracerbench/tracebench/libtb"
	"github.com/tracerbench/tracebench/traceevent"
)

const (
	metaThreadName  = "thread_name"
	metaProcessName = "process_name"

	// RendererMainThread is the name Chrome gives the renderer main thread.
	RendererMainThread = "CrRendererMain"
)

// EmptyTraceError is returned when a trace has no timed events.
type EmptyTraceError struct {
	Name string
}

func (e *EmptyTraceError) Error() string {
	if e.Name == "" {
		return "trace has no events"
	}
	return fmt.Sprintf("trace %s has no events", e.Name)
}

// Thread holds the events of one thread ordered by timestamp.
type Thread struct {
	ID   int64
	Pid  int64
	Name string

	events []traceevent.Event
	bounds Bounds
}

// Events returns the thread's events sorted by timestamp. Events with equal
// timestamps keep their arrival order. The slice must not be modified.
func (t *Thread) Events() []traceevent.Event {
	return t.events
}

func (t *Thread) Bounds() Bounds {
	return t.bounds
}

func (t *Thread) Len() int {
	return len(t.events)
}

// Process groups the threads of one process id.
type Process struct {
	ID   int64
	Name string

	threads map[int64]*Thread
	bounds  Bounds
}

// Threads returns the threads sorted by id.
func (p *Process) Threads() []*Thread {
	out := make([]*Thread, 0, len(p.threads))
	for _, tid := range libtb.SortedKeys(p.threads) {
		out = append(out, p.threads[tid])
	}
	return out
}

func (p *Process) Thread(tid int64) (*Thread, bool) {
	t, ok := p.threads[tid]
	return t, ok
}

func (p *Process) Bounds() Bounds {
	return p.bounds
}

// Trace is the immutable model of one run.
type Trace struct {
	Name string

	processes map[int64]*Process
	bounds    Bounds
	len       int
}

// Option customizes Build.
type Option func(*Trace)

// WithName labels the trace, usually with the file it was read from.
func WithName(name string) Option {
	return func(tr *Trace) {
		tr.Name = name
	}
}

// Build groups events by process and thread, sorts each thread by timestamp
// and computes bounds at every level. Metadata events name processes and
// threads but do not become part of any thread or bounds.
func Build(events []traceevent.Event, opts ...Option) *Trace {
	tr := &Trace{processes: make(map[int64]*Process)}
	for _, opt := range opts {
		opt(tr)
	}

	var meta []*traceevent.Event
	for i := range events {
		ev := &events[i]
		if ev.Ph == traceevent.PhaseMetadata {
			meta = append(meta, ev)
			continue
		}
		th := tr.thread(ev.Pid, ev.Tid)
		th.events = append(th.events, *ev)
		tr.len++
	}

	for _, ev := range meta {
		switch ev.Name {
		case metaThreadName:
			tr.thread(ev.Pid, ev.Tid).Name = ev.StringArg("name")
		case metaProcessName:
			tr.process(ev.Pid).Name = ev.StringArg("name")
		}
	}

	for _, proc := range tr.processes {
		for _, th := range proc.threads {
			slices.SortStableFunc(th.events, func(a, b traceevent.Event) int {
				return cmp.Compare(a.Ts, b.Ts)
			})
			for i := range th.events {
				th.bounds = th.bounds.extend(th.events[i].Ts, th.events[i].End())
			}
			proc.bounds = proc.bounds.Union(th.bounds)
		}
		tr.bounds = tr.bounds.Union(proc.bounds)
	}
	return tr
}

// BuildNonEmpty is Build for callers that need at least one timed event.
func BuildNonEmpty(events []traceevent.Event, opts ...Option) (*Trace, error) {
	tr := Build(events, opts...)
	if _, err := tr.Bounds(); err != nil {
		return nil, err
	}
	return tr, nil
}

func (tr *Trace) process(pid int64) *Process {
	proc, ok := tr.processes[pid]
	if !ok {
		proc = &Process{ID: pid, threads: make(map[int64]*Thread)}
		tr.processes[pid] = proc
	}
	return proc
}

func (tr *Trace) thread(pid, tid int64) *Thread {
	proc := tr.process(pid)
	th, ok := proc.threads[tid]
	if !ok {
		th = &Thread{ID: tid, Pid: pid}
		proc.threads[tid] = th
	}
	return th
}

// Bounds returns the span of all events, or *EmptyTraceError.
func (tr *Trace) Bounds() (Bounds, error) {
	if tr.bounds.Empty() {
		return Bounds{}, &EmptyTraceError{Name: tr.Name}
	}
	return tr.bounds, nil
}

// Len returns the number of timed events.
func (tr *Trace) Len() int {
	return tr.len
}

// Processes returns the processes sorted by id.
func (tr *Trace) Processes() []*Process {
	out := make([]*Process, 0, len(tr.processes))
	for _, pid := range libtb.SortedKeys(tr.processes) {
		out = append(out, tr.processes[pid])
	}
	return out
}

func (tr *Trace) Process(pid int64) (*Process, bool) {
	p, ok := tr.processes[pid]
	return p, ok
}

// Threads returns every thread ordered by process id, then thread id.
func (tr *Trace) Threads() []*Thread {
	var out []*Thread
	for _, proc := range tr.Processes() {
		out = append(out, proc.Threads()...)
	}
	return out
}

// Thread looks up tid in the lowest numbered process that has it.
func (tr *Trace) Thread(tid int64) (*Thread, bool) {
	for _, proc := range tr.Processes() {
		if th, ok := proc.threads[tid]; ok {
			return th, true
		}
	}
	return nil, false
}

// Events iterates over all timed events, thread by thread.
func (tr *Trace) Events() iter.Seq[*traceevent.Event] {
	return func(yield func(*traceevent.Event) bool) {
		for _, th := range tr.Threads() {
			for i := range th.events {
				if !yield(&th.events[i]) {
					return
				}
			}
		}
	}
}

// FindEvent returns the earliest event called name.
func (tr *Trace) FindEvent(name string) (*traceevent.Event, bool) {
	return tr.FindEventFrom(name, 0)
}

// FindEventFrom returns the earliest event called name with Ts >= from.
// Ties go to the lowest process and thread id.
func (tr *Trace) FindEventFrom(name string, from int64) (*traceevent.Event, bool) {
	var found *traceevent.Event
	for _, th := range tr.Threads() {
		start, _ := slices.BinarySearchFunc(th.events, from,
			func(ev traceevent.Event, ts int64) int { return cmp.Compare(ev.Ts, ts) })
		for i := start; i < len(th.events); i++ {
			ev := &th.events[i]
			if found != nil && ev.Ts >= found.Ts {
				break
			}
			if ev.Name == name {
				found = ev
				break
			}
		}
	}
	return found, found != nil
}

// MainThread returns the renderer main thread. Without thread name metadata
// the thread with the most events is returned. It is nil for empty traces.
func (tr *Trace) MainThread() *Thread {
	var named, busiest *Thread
	for _, th := range tr.Threads() {
		if th.Name == RendererMainThread && (named == nil || th.Len() > named.Len()) {
			named = th
		}
		if th.Len() > 0 && (busiest == nil || th.Len() > busiest.Len()) {
			busiest = th
		}
	}
	if named != nil {
		return named
	}
	return busiest
}
