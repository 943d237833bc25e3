// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jsmodule

import (
	"regexp"
	"strings"
)

const (
	// DefaultDefine is the loader identifier when no renamed one is found.
	DefaultDefine = "define"
	// UnknownModule is reported for frames outside any module region.
	UnknownModule = "unknown"
)

// mangledDefine matches `<ident> = <expr>.define` where ident is not itself
// a property access.
var mangledDefine = regexp.MustCompile(
	`(?:^|[^\w$.])([A-Za-z_$][\w$]*)\s*=\s*[A-Za-z_$][\w$.]*\.define\b`)

// FindMangledDefine returns the identifier a minifier bound the loader's
// define function to, or DefaultDefine.
func FindMangledDefine(source string) string {
	m := mangledDefine.FindStringSubmatch(source)
	if m == nil {
		return DefaultDefine
	}
	return m[1]
}

// GetModuleIndex returns the offset at which the first registration call of
// ident begins its module region: the last non-whitespace character of the
// statement preceding the call, or 0 when nothing precedes it. It returns -1
// when source has no registration call.
func GetModuleIndex(source, ident string) int {
	idx, _ := findCallSite(source, ident)
	return idx
}

// findCallSite returns the module index as GetModuleIndex does together
// with the offset of ident at the call site.
func findCallSite(source, ident string) (moduleIdx, callIdx int) {
	if ident == "" {
		return -1, -1
	}
	from := 0
	for {
		rel := strings.Index(source[from:], ident)
		if rel < 0 {
			return -1, -1
		}
		call := from + rel
		from = call + len(ident)

		if !followedByParen(source, from) {
			continue
		}
		if idx, ok := statementStart(source, call); ok {
			return idx, call
		}
	}
}

func followedByParen(source string, pos int) bool {
	pos = skipSpaceForward(source, pos)
	return pos < len(source) && source[pos] == '('
}

// statementStart checks that the call at pos starts a statement or an
// element of a comma separated sequence and returns the index of the end of
// the previous one. A call on a new line after a closing parenthesis counts
// as well.
func statementStart(source string, pos int) (int, bool) {
	prev := skipSpaceBackward(source, pos-1)
	if prev < 0 {
		return 0, true
	}
	switch source[prev] {
	case ';', '{', '}', ',':
	case ')':
		if !strings.Contains(source[prev+1:pos], "\n") {
			return 0, false
		}
		return prev, true
	default:
		return 0, false
	}
	end := skipSpaceBackward(source, prev-1)
	if end < 0 {
		return 0, true
	}
	return end, true
}

func skipSpaceForward(s string, pos int) int {
	for pos < len(s) && isSpace(s[pos]) {
		pos++
	}
	return pos
}

func skipSpaceBackward(s string, pos int) int {
	for pos >= 0 && isSpace(s[pos]) {
		pos--
	}
	return pos
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// firstStringLiteral returns the contents of the first quoted string in s.
func firstStringLiteral(s string) (string, bool) {
	start := strings.IndexAny(s, "\"'`")
	if start < 0 {
		return "", false
	}
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return s[start+1 : i], true
		}
	}
	return "", false
}
