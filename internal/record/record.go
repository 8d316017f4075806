// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package record holds the ordered, position-indexed collections of generated
// test and check records. Positions are dense (0..N-1) after every ingestion
// because patch targeting and export selection address records by position.
package record

// TestRecord is one generated test case.
type TestRecord struct {
	Position int    `json:"position" yaml:"position"`
	Label    string `json:"label" yaml:"label"`
	Content  string `json:"content" yaml:"content"`
}

// CheckRecord is an additional check suggested alongside the tests. Used is
// set once the check seeded a supplemental generation; it never blocks reuse.
type CheckRecord struct {
	Position int    `json:"position" yaml:"position"`
	Label    string `json:"label" yaml:"label"`
	Content  string `json:"content" yaml:"content"`
	Used     bool   `json:"used" yaml:"used"`
}

// GenerationResult is the structured form of one generation response.
// RawChecksText is set only when the checks container held free text without
// individually tagged checks.
type GenerationResult struct {
	Tests         []TestRecord  `json:"tests" yaml:"tests"`
	Checks        []CheckRecord `json:"checks" yaml:"checks"`
	RawChecksText string        `json:"checks_raw,omitempty" yaml:"checks_raw,omitempty"`
}

// Empty reports whether the result carries nothing a caller could display as
// structured records.
func (r GenerationResult) Empty() bool {
	return len(r.Tests) == 0 && len(r.Checks) == 0 && r.RawChecksText == ""
}

// Clone returns a deep copy of r.
func (r GenerationResult) Clone() GenerationResult {
	out := GenerationResult{RawChecksText: r.RawChecksText}
	if r.Tests != nil {
		out.Tests = append([]TestRecord(nil), r.Tests...)
	}
	if r.Checks != nil {
		out.Checks = append([]CheckRecord(nil), r.Checks...)
	}
	return out
}
