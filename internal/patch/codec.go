// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package patch revises a selected subset of stored tests in one agent round
// trip: it encodes the targets, decodes the agent's multi-record reply and
// reconciles the fragments back onto exactly the selected positions.
package patch

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/casegen/casegen/internal/protocol"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const cdataSplit = "]]]]><![CDATA[>"

// XML parsers fold \r and \r\n into \n inside CDATA, so carriage returns
// leave the section as character references.
const cdataCR = "]]>&#13;<![CDATA["

var cdataEscaper = strings.NewReplacer("]]>", cdataSplit, "\r", cdataCR)

// Target is a record selected for revision, captured when the instruction
// is submitted.
type Target struct {
	Position int    `json:"position"`
	Label    string `json:"label"`
	Content  string `json:"content"`
}

// Fragment is one record recovered from an agent reply. Position is nil when
// the reply carried no usable position attribute.
type Fragment struct {
	Position *int
	Label    string
	Content  string
}

// EncodeRequest builds the <test_patch> payload for instruction and targets.
// Contents are carried in CDATA so they need no escaping; a literal "]]>" is
// split across two sections and carriage returns are written as &#13;
// between sections.
func EncodeRequest(instruction string, targets []Target) (string, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "", cgerr.New(cgerr.CodePatchRequestInvalid, "instruction is required", cgerr.Field("field", "instruction"))
	}
	if len(targets) == 0 {
		return "", cgerr.New(cgerr.CodePatchRequestInvalid, "at least one test must be selected", cgerr.Field("field", "targets"))
	}

	seen := make(map[int]bool, len(targets))
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<test_patch>\n")
	b.WriteString("  <instruction>")
	b.WriteString(protocol.Escape(instruction))
	b.WriteString("</instruction>\n")
	for _, t := range targets {
		if seen[t.Position] {
			return "", cgerr.New(cgerr.CodePatchRequestInvalid, "target selected twice", cgerr.FieldPosition(t.Position))
		}
		seen[t.Position] = true

		b.WriteString(`  <test position="`)
		b.WriteString(strconv.Itoa(t.Position))
		b.WriteString(`" name="`)
		b.WriteString(protocol.Escape(t.Label))
		b.WriteString(`"><![CDATA[`)
		b.WriteString(cdataEscaper.Replace(t.Content))
		b.WriteString("]]></test>\n")
	}
	b.WriteString("</test_patch>")
	return b.String(), nil
}

// DecodeResponse extracts fragments from an agent reply. A well-formed
// document is read strictly; otherwise, or when it holds no usable fragment,
// the reply is scanned leniently. Fragments with empty content are dropped.
func DecodeResponse(raw string) []Fragment {
	frags, err := decodeStrict(raw)
	if err == nil && len(frags) > 0 {
		return frags
	}
	if err != nil {
		slog.Debug("strict patch decode failed, scanning leniently", "error", err)
	}
	return decodeLenient(raw)
}

func decodeStrict(raw string) ([]Fragment, error) {
	root, err := protocol.ParseDocument(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}

	var frags []Fragment
	for _, n := range root.Descendants("test") {
		content := strings.TrimSpace(n.Text())
		if content == "" {
			continue
		}
		pos, _ := n.Attr("position")
		frags = append(frags, Fragment{
			Position: parsePosition(pos),
			Label:    n.Label(),
			Content:  content,
		})
	}
	return frags, nil
}

func decodeLenient(raw string) []Fragment {
	var frags []Fragment
	for _, s := range protocol.ScanElements(raw, "test", "</test_patch>") {
		content := strings.TrimSpace(protocol.UnwrapCDATA(s.Body))
		if content == "" {
			continue
		}
		frags = append(frags, Fragment{
			Position: parsePosition(s.Attrs["position"]),
			Label:    s.Label(),
			Content:  content,
		})
	}
	return frags
}

func parsePosition(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
