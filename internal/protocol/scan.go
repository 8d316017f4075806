// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package protocol

import (
	"html"
	"regexp"
	"strings"
)

var attrRe = regexp.MustCompile(`([A-Za-z_:][-A-Za-z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

const (
	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"
)

// Span is one element occurrence recovered by ScanElements.
type Span struct {
	// Attrs holds attribute values keyed by lower-cased name. Values have
	// entity references decoded.
	Attrs map[string]string
	// Body is the raw text between the opening tag and the span boundary.
	Body string
}

// Label returns the name attribute, else the id attribute, else "".
func (s Span) Label() string {
	if v := s.Attrs["name"]; v != "" {
		return v
	}
	return s.Attrs["id"]
}

// ScanElements recovers <tag ...> occurrences from text that need not be
// well-formed. Names match case-insensitively. A span runs from the end of
// its opening tag to the earliest of: the matching close tag, the next
// opening of the same tag, any of the stop markers, or the end of input.
// CDATA sections are skipped while looking for the boundary.
func ScanElements(src, tag string, stops ...string) []Span {
	lower := asciiLower(src)
	open := "<" + asciiLower(tag)
	closeTag := "</" + asciiLower(tag) + ">"

	lowerStops := make([]string, 0, len(stops))
	for _, s := range stops {
		lowerStops = append(lowerStops, asciiLower(s))
	}

	var spans []Span
	pos := 0
	for {
		start := indexOpenTag(lower, open, pos)
		if start < 0 {
			return spans
		}
		gt := strings.IndexByte(lower[start:], '>')
		if gt < 0 {
			return spans
		}
		attrText := src[start+len(open) : start+gt]
		bodyStart := start + gt + 1

		if strings.HasSuffix(strings.TrimSpace(attrText), "/") {
			spans = append(spans, Span{Attrs: parseAttrs(attrText)})
			pos = bodyStart
			continue
		}

		end, next := spanEnd(lower, bodyStart, open, closeTag, lowerStops)
		spans = append(spans, Span{Attrs: parseAttrs(attrText), Body: src[bodyStart:end]})
		pos = next
	}
}

// spanEnd returns the boundary of a body starting at from and the offset
// where scanning resumes. Only a close tag is consumed.
func spanEnd(lower string, from int, open, closeTag string, stops []string) (end, next int) {
	pos := from
	for {
		end, consumed := len(lower), 0

		if i := strings.Index(lower[pos:], closeTag); i >= 0 {
			end, consumed = pos+i, len(closeTag)
		}
		if i := indexOpenTag(lower, open, pos); i >= 0 && i < end {
			end, consumed = i, 0
		}
		for _, stop := range stops {
			if i := strings.Index(lower[pos:], stop); i >= 0 && pos+i < end {
				end, consumed = pos+i, 0
			}
		}

		cd := strings.Index(lower[pos:], asciiLower(cdataOpen))
		if cd < 0 || pos+cd >= end {
			return end, end + consumed
		}
		afterOpen := pos + cd + len(cdataOpen)
		closeAt := strings.Index(lower[afterOpen:], cdataClose)
		if closeAt < 0 {
			return len(lower), len(lower)
		}
		pos = afterOpen + closeAt + len(cdataClose)
	}
}

// indexOpenTag finds the next "<tag" that is followed by whitespace, '>' or
// '/', so that <test does not match <tests.
func indexOpenTag(lower, open string, from int) int {
	for from <= len(lower) {
		i := strings.Index(lower[from:], open)
		if i < 0 {
			return -1
		}
		at := from + i
		after := at + len(open)
		if after < len(lower) {
			switch lower[after] {
			case ' ', '\t', '\n', '\r', '>', '/':
				return at
			}
		}
		from = after
	}
	return -1
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		name := asciiLower(m[1])
		if _, seen := attrs[name]; seen {
			continue
		}
		value := m[2]
		if value == "" {
			value = m[3]
		}
		attrs[name] = html.UnescapeString(value)
	}
	return attrs
}

// UnwrapCDATA returns the text of body with CDATA sections unwrapped and
// entity references outside them decoded. An unterminated section runs to
// the end of body.
func UnwrapCDATA(body string) string {
	if !strings.Contains(body, cdataOpen) {
		return html.UnescapeString(body)
	}

	var b strings.Builder
	rest := body
	for {
		i := strings.Index(rest, cdataOpen)
		if i < 0 {
			b.WriteString(html.UnescapeString(rest))
			break
		}
		b.WriteString(html.UnescapeString(rest[:i]))
		rest = rest[i+len(cdataOpen):]
		j := strings.Index(rest, cdataClose)
		if j < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:j])
		rest = rest[j+len(cdataClose):]
	}
	return b.String()
}

// asciiLower folds only A-Z so byte offsets in the result match the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
