// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package protocol

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/casegen/casegen/internal/record"
)

const checkFallbackLabel = "Check"

var (
	testsTagRe       = regexp.MustCompile(`(?i)</?tests>`)
	checkTagRe       = regexp.MustCompile(`(?i)</?check[^>]*>`)
	additionalBodyRe = regexp.MustCompile(`(?is)<additional_checks[^>]*>(.*?)(?:</additional_checks>|$)`)
)

// ParseGeneration extracts test and check records from a generation
// response. A well-formed document is read strictly; anything else, or a
// document that yields nothing, is rescanned leniently. It never fails: an
// empty result tells the caller to show the raw text instead.
func ParseGeneration(raw string) record.GenerationResult {
	res, err := parseStrict(raw)
	if err == nil && !res.Empty() {
		return res
	}
	if err != nil {
		slog.Debug("strict parse failed, scanning leniently", "error", err)
	}
	return parseLenient(raw)
}

func parseStrict(raw string) (record.GenerationResult, error) {
	var res record.GenerationResult

	root, err := ParseDocument(strings.TrimSpace(raw))
	if err != nil {
		return res, err
	}

	for i, n := range root.Descendants("test") {
		content := strings.TrimSpace(n.Text())
		if content == "" {
			continue
		}
		label := n.Label()
		if label == "" {
			label = fmt.Sprintf("Test %d", i+1)
		}
		res.Tests = append(res.Tests, record.TestRecord{Position: len(res.Tests), Label: label, Content: content})
	}

	if checks := root.First("additional_checks"); checks != nil {
		for _, n := range checks.Descendants("check") {
			content := strings.TrimSpace(n.Text())
			if content == "" {
				continue
			}
			label := n.Label()
			if label == "" {
				label = checkFallbackLabel
			}
			res.Checks = append(res.Checks, record.CheckRecord{Position: len(res.Checks), Label: label, Content: content})
		}
		if len(res.Checks) == 0 {
			res.RawChecksText = strings.TrimSpace(checks.Text())
		}
	}

	return res, nil
}

func parseLenient(raw string) record.GenerationResult {
	var res record.GenerationResult

	spans := ScanElements(raw, "test", "</tests>", "<additional_checks")
	labeled := hasLabel(spans)
	for _, s := range spans {
		label := s.Label()
		if labeled && label == "" {
			continue
		}
		content, ok := cleanTestBody(s.Body)
		if !ok {
			continue
		}
		if label == "" {
			label = fmt.Sprintf("Test %d", len(res.Tests)+1)
		}
		res.Tests = append(res.Tests, record.TestRecord{Position: len(res.Tests), Label: label, Content: content})
	}

	m := additionalBodyRe.FindStringSubmatch(raw)
	if m == nil {
		return res
	}
	body := m[1]

	checkSpans := ScanElements(body, "check", "</additional_checks>")
	labeled = hasLabel(checkSpans)
	for _, s := range checkSpans {
		label := s.Label()
		if labeled && label == "" {
			continue
		}
		content := strings.TrimSpace(s.Body)
		if content == "" {
			continue
		}
		if label == "" {
			label = checkFallbackLabel
		}
		res.Checks = append(res.Checks, record.CheckRecord{Position: len(res.Checks), Label: label, Content: content})
	}
	if len(res.Checks) == 0 {
		res.RawChecksText = strings.TrimSpace(checkTagRe.ReplaceAllString(body, ""))
	}

	return res
}

func cleanTestBody(body string) (string, bool) {
	content := strings.TrimSpace(testsTagRe.ReplaceAllString(body, ""))
	if content == "" || strings.HasPrefix(asciiLower(content), "<additional_checks") {
		return "", false
	}
	return content, true
}

func hasLabel(spans []Span) bool {
	for _, s := range spans {
		if s.Label() != "" {
			return true
		}
	}
	return false
}
