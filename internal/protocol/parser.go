// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/Jeff9497/200Model8Dev/internal/model"
)

// DirectivePrefix introduces the canonical directive form.
const DirectivePrefix = "TOOL_REQUEST:"

// Directive is a tool request found in a model reply.
type Directive struct {
	// Tool is the name as written by the model (aliases are not resolved here).
	Tool string `json:"toolName"`
	// Query is the text after the separator.
	Query string `json:"query"`
	// Canonical reports whether the TOOL_REQUEST: prefix was present.
	Canonical bool `json:"canonical"`
}

// Pre-compiled patterns. Pattern A matches anywhere; pattern B is anchored at
// a line start and limited to catalog names. Pattern B is applied to the
// normalised head of a line only, so the query keeps the model's spelling.
var (
	canonicalRegex = regexp.MustCompile(`TOOL_REQUEST:\s*([^|]+)\s*\|\s*(.+)`)
	bareHeadRegex  = buildBareHeadRegex(model.ToolNamesWithAliases())
	stripRegex     = regexp.MustCompile(`TOOL_REQUEST:.*\n?`)
)

// maxBareHead bounds how far into a line the separator is looked for.
const maxBareHead = 128

func buildBareHeadRegex(names []string) *regexp.Regexp {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = regexp.QuoteMeta(name)
	}
	return regexp.MustCompile(`^(` + strings.Join(quoted, "|") + `)\s*\|$`)
}

// Parse scans reply for a tool directive. The first match wins.
func Parse(reply string) (Directive, bool) {
	d, _, ok := locate(reply)
	return d, ok
}

// StripDirective removes the directive Parse finds (with its newline) and
// trims the result. A TOOL_REQUEST: line without a separator is removed as
// well. Replies without a directive are only trimmed.
func StripDirective(reply string) string {
	_, loc, ok := locate(reply)
	if !ok {
		l := stripRegex.FindStringIndex(reply)
		if l == nil {
			return strings.TrimSpace(reply)
		}
		loc = [2]int{l[0], l[1]}
	}
	return strings.TrimSpace(reply[:loc[0]] + reply[loc[1]:])
}

// locate returns the first directive and the byte span it occupies,
// including the trailing newline.
func locate(reply string) (Directive, [2]int, bool) {
	if m := canonicalRegex.FindStringSubmatchIndex(reply); m != nil {
		end := m[1]
		if end < len(reply) && reply[end] == '\n' {
			end++
		}
		return Directive{
			Tool:      normalizeName(reply[m[2]:m[3]]),
			Query:     strings.TrimSpace(reply[m[4]:m[5]]),
			Canonical: true,
		}, [2]int{m[0], end}, true
	}

	for start := 0; start < len(reply); {
		lineEnd, next := len(reply), len(reply)
		if i := strings.IndexByte(reply[start:], '\n'); i >= 0 {
			lineEnd, next = start+i, start+i+1
		}
		if d, ok := parseBareLine(reply[start:lineEnd]); ok {
			return d, [2]int{start, next}, true
		}
		start = next
	}
	return Directive{}, [2]int{}, false
}

// parseBareLine matches "name | query" at the start of line. Models sometimes
// emit full-width letters or separators in the head, so each candidate head
// is compatibility-normalised before matching.
func parseBareLine(line string) (Directive, bool) {
	for i, r := range line {
		if i > maxBareHead {
			break
		}
		if r != '|' && norm.NFKC.String(string(r)) != "|" {
			continue
		}
		cut := i + utf8.RuneLen(r)
		m := bareHeadRegex.FindStringSubmatch(norm.NFKC.String(line[:cut]))
		if m == nil {
			continue
		}
		query := strings.TrimSpace(line[cut:])
		if query == "" {
			return Directive{}, false
		}
		return Directive{Tool: m[1], Query: query}, true
	}
	return Directive{}, false
}

// Format renders the canonical directive line.
func Format(tool, query string) string {
	return DirectivePrefix + " " + strings.TrimSpace(tool) + " | " + strings.TrimSpace(query)
}

func normalizeName(name string) string {
	return strings.TrimSpace(norm.NFKC.String(name))
}
