// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) newPatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch <instruction>",
		Short: "Revise selected tests with an instruction",
		Long: `Send the selected tests and an instruction to the agent flow. The reply is
applied only when every selected test can be matched; otherwise nothing changes
and the error is added to the conversation.`,
		Example: `  casegen patch --test 0 --test 3 "add a step that checks the error message text"`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    c.runPatch,
	}
	cmd.Flags().IntSliceP("test", "t", nil, "test position to revise (repeatable or comma separated)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("test")

	cmd.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Show the patch conversation",
		Args:  cobra.NoArgs,
		RunE:  c.runPatchLog,
	})
	return cmd
}

func (c *cli) runPatch(cmd *cobra.Command, args []string) error {
	positions, _ := cmd.Flags().GetIntSlice("test")
	instruction := strings.Join(args, " ")

	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	res, err := ws.ApplyPatch(commandContext(cmd), instruction, positions)
	if err != nil {
		return err
	}
	if done, err := emit(cmd, res); done {
		return err
	}

	w := cmd.OutOrStdout()
	if res.Stale {
		_, _ = fmt.Fprintln(w, "warning: tests were regenerated while the request was running; changes were applied to the same positions")
	}
	for _, ch := range res.Changes {
		_, _ = fmt.Fprintf(w, "--- %s (position %d)\n%s\n", ch.Label, ch.Position, ch.Diff)
	}
	_, _ = fmt.Fprintf(w, "%d test(s) updated\n", len(res.Changes))
	return nil
}

func (c *cli) runPatchLog(cmd *cobra.Command, _ []string) error {
	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	w := cmd.OutOrStdout()
	msgs := ws.Patch.Messages()
	if len(msgs) == 0 {
		_, _ = fmt.Fprintln(w, "No conversation yet.")
		return nil
	}
	for _, m := range msgs {
		_, _ = fmt.Fprintf(w, "[%s] %s:\n%s\n\n", m.Time.Format("15:04:05"), m.Role, m.Text)
	}
	return nil
}
