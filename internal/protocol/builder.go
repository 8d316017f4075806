// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package protocol

import (
	"strings"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// GenerationInput carries the user-supplied parameters of a generation
// request. Blank features are ignored.
type GenerationInput struct {
	Features  []string `json:"features" yaml:"features"`
	Checklist string   `json:"checklist" yaml:"checklist"`
	// AuxToken is forwarded as <confluence_token> when set so the flow can
	// read protected feature pages.
	AuxToken string `json:"-" yaml:"-"`
}

// Normalize returns a copy with trimmed values and blank features removed.
func (in GenerationInput) Normalize() GenerationInput {
	out := GenerationInput{
		Checklist: strings.TrimSpace(in.Checklist),
		AuxToken:  strings.TrimSpace(in.AuxToken),
	}
	for _, f := range in.Features {
		if f = strings.TrimSpace(f); f != "" {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

func (in GenerationInput) validate() error {
	if len(in.Features) == 0 {
		return cgerr.New(cgerr.CodeProtocolRequestInvalid, "at least one feature page is required", cgerr.Field("field", "features"))
	}
	if in.Checklist == "" {
		return cgerr.New(cgerr.CodeProtocolRequestInvalid, "checklist reference is required", cgerr.Field("field", "checklist"))
	}
	return nil
}

// BuildGeneration encodes a primary generation request.
func BuildGeneration(in GenerationInput) (string, error) {
	in = in.Normalize()
	if err := in.validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString("<test_generation>\n")
	writeGenerationBody(&b, in)
	b.WriteString("</test_generation>")
	return b.String(), nil
}

// BuildSupplemental encodes a request for more tests seeded by previously
// suggested checks. Each check content becomes a <test> element inside a
// leading <additional_checks> block.
func BuildSupplemental(in GenerationInput, checks []string) (string, error) {
	in = in.Normalize()
	var selected []string
	for _, c := range checks {
		if c = strings.TrimSpace(c); c != "" {
			selected = append(selected, c)
		}
	}
	if len(in.Features) == 0 {
		return "", cgerr.New(cgerr.CodeProtocolRequestInvalid, "at least one feature page is required", cgerr.Field("field", "features"))
	}
	if len(selected) == 0 {
		return "", cgerr.New(cgerr.CodeProtocolRequestInvalid, "at least one additional check must be selected", cgerr.Field("field", "checks"))
	}
	if err := in.validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString("<test_generation>\n")
	b.WriteString("  <additional_checks>\n")
	for _, c := range selected {
		writeElement(&b, "    ", "test", c)
	}
	b.WriteString("  </additional_checks>\n")
	writeGenerationBody(&b, in)
	b.WriteString("</test_generation>")
	return b.String(), nil
}

func writeGenerationBody(b *strings.Builder, in GenerationInput) {
	for _, f := range in.Features {
		writeElement(b, "  ", "feature", f)
	}
	writeElement(b, "  ", "checklist", in.Checklist)
	if in.AuxToken != "" {
		writeElement(b, "  ", "confluence_token", in.AuxToken)
	}
}

// ExportInput is one record destined for the ticketing system.
type ExportInput struct {
	ProjectKey           string
	FolderName           string
	Label                string
	Content              string
	ConfigurationElement string
	TestType             string
	ConnectionURL        string
	ConnectionToken      string
}

// BuildExport encodes a single-record export request.
func BuildExport(in ExportInput) (string, error) {
	required := []struct {
		field, value string
	}{
		{"project_key", in.ProjectKey},
		{"folder_name", in.FolderName},
		{"label", in.Label},
		{"content", in.Content},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return "", cgerr.New(cgerr.CodeProtocolRequestInvalid, "export field is required", cgerr.Field("field", r.field))
		}
	}

	var b strings.Builder
	b.WriteString("<jira_export>\n")
	b.WriteString("  <test>\n")
	writeElement(&b, "    ", "projectKey", in.ProjectKey)
	writeElement(&b, "    ", "folderName", in.FolderName)
	writeElement(&b, "    ", "testName", in.Label)
	writeElement(&b, "    ", "testContent", in.Content)
	if in.ConfigurationElement != "" {
		writeElement(&b, "    ", "configurationElement", in.ConfigurationElement)
	}
	if in.TestType != "" {
		writeElement(&b, "    ", "testType", in.TestType)
	}
	b.WriteString("  </test>\n")
	writeElement(&b, "  ", "jiraConnectionUrl", in.ConnectionURL)
	writeElement(&b, "  ", "jiraConnectionToken", in.ConnectionToken)
	b.WriteString("</jira_export>")
	return b.String(), nil
}

func writeElement(b *strings.Builder, indent, name, value string) {
	b.WriteString(indent)
	b.WriteByte('<')
	b.WriteString(name)
	b.WriteByte('>')
	b.WriteString(Escape(value))
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">\n")
}
