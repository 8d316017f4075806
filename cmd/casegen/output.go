// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/casegen/casegen/internal/record"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", outputText, "output format: text, json or yaml")
}

// emit writes v as JSON or YAML when requested. It reports false for text
// output so the caller renders its own table.
func emit(cmd *cobra.Command, v any) (bool, error) {
	format, _ := cmd.Flags().GetString("output")
	out := cmd.OutOrStdout()

	switch strings.ToLower(format) {
	case "", outputText:
		return false, nil
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return true, cgerr.Errorf(cgerr.CodeCLIInputInvalid, "unknown output format %q (want text, json or yaml)", format)
	}
}

func printRecords(w io.Writer, res record.GenerationResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "POS\tTEST\tCONTENT")
	for _, t := range res.Tests {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", t.Position, t.Label, firstLine(t.Content))
	}
	_ = tw.Flush()

	if len(res.Checks) == 0 && res.RawChecksText == "" {
		return
	}
	_, _ = fmt.Fprintln(w)
	if len(res.Checks) == 0 {
		_, _ = fmt.Fprintf(w, "Additional checks:\n%s\n", res.RawChecksText)
		return
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "POS\tCHECK\tUSED")
	for _, c := range res.Checks {
		used := ""
		if c.Used {
			used = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", c.Position, firstLine(c.Content), used)
	}
	_ = tw.Flush()
}

func firstLine(s string) string {
	line, rest, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if rest != "" {
		return line + " ..."
	}
	return line
}
