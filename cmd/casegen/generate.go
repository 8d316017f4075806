// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casegen/casegen/internal/generation"
	"github.com/casegen/casegen/internal/protocol"
	"github.com/casegen/casegen/internal/workspace"
)

func (c *cli) newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate test cases from feature pages",
		Long:  "Send the feature and checklist pages to the generation flow and replace the workspace's tests and checks with the reply.",
		Example: `  casegen generate --feature https://wiki.example/login --checklist https://wiki.example/qa-checklist
  casegen generate -f https://wiki.example/a -f https://wiki.example/b --checklist https://wiki.example/qa -o json`,
		RunE: c.runGenerate,
	}
	cmd.Flags().StringArrayP("feature", "f", nil, "feature page URL (repeatable)")
	cmd.Flags().String("checklist", "", "checklist page URL")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("feature")
	_ = cmd.MarkFlagRequired("checklist")
	return cmd
}

func (c *cli) runGenerate(cmd *cobra.Command, _ []string) error {
	features, _ := cmd.Flags().GetStringArray("feature")
	checklist, _ := cmd.Flags().GetString("checklist")

	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	out, err := ws.Generate(commandContext(cmd), protocol.GenerationInput{Features: features, Checklist: checklist})
	if err != nil {
		return err
	}
	return printOutcome(cmd, ws, out)
}

func (c *cli) newChecksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checks",
		Short: "Generate more tests from selected additional checks",
		Long:  "Expand the additional checks at the given positions into new tests appended to the workspace. The feature pages of the last generation are reused unless --feature is given.",
		Example: `  casegen checks --check 0 --check 2`,
		RunE:    c.runChecks,
	}
	cmd.Flags().IntSlice("check", nil, "check position to expand (repeatable or comma separated)")
	cmd.Flags().StringArrayP("feature", "f", nil, "feature page URL; defaults to the last generation's")
	cmd.Flags().String("checklist", "", "checklist page URL")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("check")
	return cmd
}

func (c *cli) runChecks(cmd *cobra.Command, _ []string) error {
	positions, _ := cmd.Flags().GetIntSlice("check")
	features, _ := cmd.Flags().GetStringArray("feature")
	checklist, _ := cmd.Flags().GetString("checklist")

	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	out, err := ws.Supplemental(commandContext(cmd), protocol.GenerationInput{Features: features, Checklist: checklist}, positions)
	if err != nil {
		return err
	}
	return printOutcome(cmd, ws, out)
}

func (c *cli) newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Show the workspace's current tests and checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, ws, err := c.openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			snap := ws.Store.Snapshot()
			if done, err := emit(cmd, snap); done {
				return err
			}
			if len(snap.Tests) == 0 && len(snap.Checks) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No tests yet. Run `casegen generate` first.")
				return nil
			}
			printRecords(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func printOutcome(cmd *cobra.Command, ws *workspace.Workspace, out generation.Outcome) error {
	if done, err := emit(cmd, out); done {
		return err
	}

	w := cmd.OutOrStdout()
	switch out.Status {
	case generation.StatusPlainText:
		_, _ = fmt.Fprintln(w, "The flow answered without test cases:")
		_, _ = fmt.Fprintln(w, out.PlainText)
	case generation.StatusSuperseded:
		_, _ = fmt.Fprintln(w, "Generation was superseded by a newer request.")
	default:
		printRecords(w, ws.Store.Snapshot())
		if out.HistoryID != "" {
			_, _ = fmt.Fprintf(w, "\nSaved to history as %s\n", out.HistoryID)
		}
	}
	return nil
}
