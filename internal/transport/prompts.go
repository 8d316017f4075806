// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package transport

const generatePrompt = `You write manual test cases for software features.
The user message is an XML <test_generation> request. Each <feature> is a page
describing the feature and <checklist> references the team checklist. When an
<additional_checks> block is present, write tests only for the checks it lists.

Reply with XML only:
<tests>
  <test name="short title">full test case in markdown</test>
</tests>
<additional_checks>
  <check name="short title">a further check worth testing</check>
</additional_checks>`

const agentPrompt = `You revise existing test cases.
The user message is an XML <test_patch> request: <instruction> says what to
change and every <test> element holds one test, identified by its position and
name attributes, with the content in CDATA.

Reply with one <test> element per input test, keeping the position and name
attributes unchanged and putting the full revised content in CDATA:
<test_patch>
  <test position="0" name="title"><![CDATA[revised content]]></test>
</test_patch>
Do not add, drop or merge tests and do not add commentary.`

const exportPrompt = `You file test cases in a ticketing system.
The user message is an XML <jira_export> request. Acknowledge it with a short
plain-text confirmation.`

// SystemPrompt returns the instructions given to a direct model for route.
func SystemPrompt(route Route) string {
	switch route {
	case RouteAgent:
		return agentPrompt
	case RouteExport:
		return exportPrompt
	default:
		return generatePrompt
	}
}
