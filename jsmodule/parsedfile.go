// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jsmodule

import (
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/tracerbench/tracebench/libtb/xsync"
)

// CallFrame identifies a position in a script. Line and column are 0-based
// as reported by the DevTools protocol.
type CallFrame struct {
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
	FunctionName string `json:"functionName,omitempty"`
	ScriptID     string `json:"scriptId,omitempty"`
}

// ModuleBoundary is the region of a bundle that belongs to one module.
type ModuleBoundary struct {
	Name  string
	Start int
	End   int
}

type index struct {
	boundaries []ModuleBoundary
	lineStarts []int
}

// ParsedFile is one bundle's source text with a lazily built module index.
// It is safe for concurrent use.
type ParsedFile struct {
	URL    string
	source string

	index xsync.Once[index]
	scans atomic.Int32
}

// NewParsedFile wraps source. No scanning happens until the first lookup.
func NewParsedFile(url, source string) *ParsedFile {
	return &ParsedFile{URL: url, source: source}
}

// Source returns the text the file was created from.
func (f *ParsedFile) Source() string {
	return f.source
}

// Scans returns how often the module index was built. It never exceeds 1.
func (f *ParsedFile) Scans() int {
	return int(f.scans.Load())
}

func (f *ParsedFile) getIndex() *index {
	// The init function cannot fail.
	idx, _ := f.index.GetOrInit(func() (index, error) {
		f.scans.Add(1)
		return index{
			boundaries: scanBoundaries(f.source),
			lineStarts: lineStarts(f.source),
		}, nil
	})
	return idx
}

// Boundaries returns the module regions ordered by start offset.
func (f *ParsedFile) Boundaries() []ModuleBoundary {
	return slices.Clone(f.getIndex().boundaries)
}

// ModuleNameFor returns the module whose region contains frame, or
// UnknownModule.
func (f *ParsedFile) ModuleNameFor(frame CallFrame) string {
	idx := f.getIndex()
	offset, ok := idx.offset(frame.LineNumber, frame.ColumnNumber)
	if !ok {
		log.Debugf("Frame %s:%d:%d lies outside of %d lines", f.URL,
			frame.LineNumber, frame.ColumnNumber, len(idx.lineStarts))
		return UnknownModule
	}

	// Last boundary starting at or before offset.
	i := sort.Search(len(idx.boundaries), func(i int) bool {
		return idx.boundaries[i].Start > offset
	}) - 1
	if i < 0 || offset >= idx.boundaries[i].End {
		return UnknownModule
	}
	return idx.boundaries[i].Name
}

func (idx *index) offset(line, column int) (int, bool) {
	if line < 0 || column < 0 || line >= len(idx.lineStarts) {
		return 0, false
	}
	return idx.lineStarts[line] + column, true
}

func lineStarts(source string) []int {
	starts := make([]int, 1, strings.Count(source, "\n")+1)
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// scanBoundaries splits source at every registration call of the loader.
// Each region runs until the next call's region starts, the last one to the
// end of the text.
func scanBoundaries(source string) []ModuleBoundary {
	ident := FindMangledDefine(source)

	var out []ModuleBoundary
	offset := 0
	for offset < len(source) {
		moduleIdx, callIdx := findCallSite(source[offset:], ident)
		if moduleIdx == -1 {
			break
		}
		start := offset + moduleIdx
		if n := len(out); n > 0 {
			out[n-1].End = start
		}
		argsAt := offset + callIdx + len(ident)
		out = append(out, ModuleBoundary{
			Name:  moduleName(source[argsAt:]),
			Start: start,
			End:   len(source),
		})
		offset = argsAt
	}
	return out
}

// moduleName reads the name of a registration call from its argument list.
// Anonymous registrations yield UnknownModule.
func moduleName(args string) string {
	pos := skipSpaceForward(args, 0)
	if pos >= len(args) || args[pos] != '(' {
		return UnknownModule
	}
	pos = skipSpaceForward(args, pos+1)
	if pos >= len(args) || !strings.ContainsRune("\"'`", rune(args[pos])) {
		return UnknownModule
	}
	name, ok := firstStringLiteral(args[pos:])
	if !ok || name == "" {
		return UnknownModule
	}
	return name
}
