// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package protocol_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/casegen/casegen/internal/protocol"
	"github.com/casegen/casegen/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func labels(tests []record.TestRecord) []string {
	out := make([]string, 0, len(tests))
	for _, tc := range tests {
		out = append(out, tc.Label)
	}
	return out
}

func TestParseGenerationStrictLabelPrecedence(t *testing.T) {
	raw := `<?xml version="1.0" encoding="UTF-8"?>
<result>
  <tests>
    <test name="Login" id="ignored">Open the page &amp; log in</test>
    <test id="TC-2">
      Second
    </test>
    <test>Third</test>
    <test name="Blank">   </test>
    <test>Fifth</test>
  </tests>
</result>`

	res := protocol.ParseGeneration(raw)
	require.Len(t, res.Tests, 4)
	assert.Equal(t, []string{"Login", "TC-2", "Test 3", "Test 5"}, labels(res.Tests))
	assert.Equal(t, "Open the page & log in", res.Tests[0].Content)
	assert.Equal(t, "Second", res.Tests[1].Content)
	for i, tc := range res.Tests {
		assert.Equal(t, i, tc.Position)
	}
	assert.Empty(t, res.Checks)
	assert.Empty(t, res.RawChecksText)
}

func TestParseGenerationStrictChecks(t *testing.T) {
	raw := `<root>
  <test name="A">a</test>
  <additional_checks>
    <check name="Perf">Load under 2s</check>
    <check>Accessibility</check>
    <check> </check>
  </additional_checks>
  <additional_checks><check>second block ignored</check></additional_checks>
</root>`

	res := protocol.ParseGeneration(raw)
	require.Len(t, res.Checks, 2)
	assert.Equal(t, "Perf", res.Checks[0].Label)
	assert.Equal(t, "Check", res.Checks[1].Label)
	assert.Equal(t, 1, res.Checks[1].Position)
	assert.False(t, res.Checks[0].Used)
}

func TestParseGenerationStrictRawChecks(t *testing.T) {
	raw := `<root><test>a</test><additional_checks>
  Verify logout, verify timeout.
</additional_checks></root>`

	res := protocol.ParseGeneration(raw)
	assert.Empty(t, res.Checks)
	assert.Equal(t, "Verify logout, verify timeout.", res.RawChecksText)
}

func TestParseGenerationLenientUnclosedTags(t *testing.T) {
	raw := `Here are your tests:
<tests>
<test name="First">step one
<test name='Second'>step two
</tests>
<additional_checks>
<check name="C1">check one
<check id="C2">check two</check>
</additional_checks>`

	res := protocol.ParseGeneration(raw)
	require.Len(t, res.Tests, 2)
	assert.Equal(t, []string{"First", "Second"}, labels(res.Tests))
	assert.Equal(t, "step one", res.Tests[0].Content)
	assert.Equal(t, "step two", res.Tests[1].Content)

	require.Len(t, res.Checks, 2)
	assert.Equal(t, "C1", res.Checks[0].Label)
	assert.Equal(t, "check one", res.Checks[0].Content)
	assert.Equal(t, "C2", res.Checks[1].Label)
}

func TestParseGenerationLenientPrefersLabeledSpans(t *testing.T) {
	raw := `<test>orphan</test><TEST Name="Kept">kept body</TEST><test>another orphan`

	res := protocol.ParseGeneration(raw)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, "Kept", res.Tests[0].Label)
	assert.Equal(t, "kept body", res.Tests[0].Content)
}

func TestParseGenerationLenientSyntheticLabels(t *testing.T) {
	raw := `broken <b> <test>one</test><test>  </test><test>two`

	res := protocol.ParseGeneration(raw)
	assert.Equal(t, []string{"Test 1", "Test 2"}, labels(res.Tests))
	assert.Equal(t, "two", res.Tests[1].Content)
}

func TestParseGenerationLenientDoesNotMatchTestsContainer(t *testing.T) {
	raw := `<tests><test id="x">body</tests><testcase>nope</testcase>`

	res := protocol.ParseGeneration(raw)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, "body", res.Tests[0].Content)
}

func TestParseGenerationLenientUnlabeledChecks(t *testing.T) {
	raw := `<test id="a">a<additional_checks>
<check>free</check> text without labels`

	res := protocol.ParseGeneration(raw)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, "a", res.Tests[0].Content)
	require.Len(t, res.Checks, 1)
	assert.Equal(t, "Check", res.Checks[0].Label)
	assert.Equal(t, "free", res.Checks[0].Content)
}

func TestParseGenerationLenientChecksFreeText(t *testing.T) {
	raw := `<test id="a">a</test> oops <additional_checks>just prose</additional_checks>`

	res := protocol.ParseGeneration(raw)
	assert.Empty(t, res.Checks)
	assert.Equal(t, "just prose", res.RawChecksText)
}

func TestParseGenerationStrictEmptyFallsBackToLenient(t *testing.T) {
	// Well-formed, but the tests are wrapped in CDATA so the strict tree has
	// no test elements.
	raw := `<response><![CDATA[<test name="X">from cdata</test>]]></response>`

	res := protocol.ParseGeneration(raw)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, "X", res.Tests[0].Label)
}

func TestParseGenerationPlainText(t *testing.T) {
	res := protocol.ParseGeneration("Sorry, I could not open the feature page.")
	assert.True(t, res.Empty())

	res = protocol.ParseGeneration("")
	assert.True(t, res.Empty())
}

func TestParseGenerationLenientMatchesWellFormedCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		var wellFormed, unclosed strings.Builder
		wellFormed.WriteString("<tests>\n")
		unclosed.WriteString("<tests>\n")
		for i := 0; i < n; i++ {
			label := rapid.StringMatching(`[A-Za-z][A-Za-z0-9]{0,8}`).Draw(t, fmt.Sprintf("label%d", i))
			content := rapid.StringMatching(`[A-Za-z0-9]{1,10}( [A-Za-z0-9]{1,10}){0,3}`).Draw(t, fmt.Sprintf("content%d", i))
			fmt.Fprintf(&wellFormed, "<test name=%q>%s</test>\n", label, content)
			fmt.Fprintf(&unclosed, "<test name=%q>%s\n", label, content)
		}
		wellFormed.WriteString("</tests>")
		unclosed.WriteString("</tests>")

		strict := protocol.ParseGeneration(wellFormed.String())
		lenient := protocol.ParseGeneration(unclosed.String())
		if len(strict.Tests) != n || len(lenient.Tests) != n {
			t.Fatalf("strict=%d lenient=%d want %d", len(strict.Tests), len(lenient.Tests), n)
		}
		for i := range strict.Tests {
			if strict.Tests[i] != lenient.Tests[i] {
				t.Fatalf("record %d differs: %+v vs %+v", i, strict.Tests[i], lenient.Tests[i])
			}
		}
	})
}
