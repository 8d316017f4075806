// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past generations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List past generations, newest first",
		Args:  cobra.NoArgs,
		RunE:  c.runHistoryList,
	}
	addOutputFlag(list)

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a past generation with its conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runHistoryShow,
	}
	addOutputFlag(show)

	cmd.AddCommand(
		list,
		show,
		&cobra.Command{
			Use:   "load <id>",
			Short: "Restore a past generation into the workspace",
			Args:  cobra.ExactArgs(1),
			RunE:  c.runHistoryLoad,
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a past generation",
			Args:  cobra.ExactArgs(1),
			RunE:  c.runHistoryDelete,
		},
	)
	return cmd
}

func (c *cli) runHistoryList(cmd *cobra.Command, _ []string) error {
	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	items, err := ws.History.List(commandContext(cmd))
	if err != nil {
		return err
	}
	if done, err := emit(cmd, items); done {
		return err
	}

	w := cmd.OutOrStdout()
	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, "No history yet.")
		return nil
	}
	current := ws.HistoryID()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\tID\tCREATED\tTESTS\tCHECKS\tFEATURES")
	for _, it := range items {
		mark := ""
		if it.ID == current {
			mark = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", mark, it.ID, it.CreatedAt.Local().Format("2006-01-02 15:04"),
			it.TestsCount, it.ChecksCount, strings.Join(it.Params.Features, ", "))
	}
	return tw.Flush()
}

func (c *cli) runHistoryShow(cmd *cobra.Command, args []string) error {
	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	item, err := ws.History.Get(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	if done, err := emit(cmd, item); done {
		return err
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "%s  %s\nfeatures: %s\n", item.ID, item.CreatedAt.Local().Format("2006-01-02 15:04"),
		strings.Join(item.Params.Features, ", "))
	if item.Params.Checklist != "" {
		_, _ = fmt.Fprintf(w, "checklist: %s\n", item.Params.Checklist)
	}
	_, _ = fmt.Fprintln(w)
	printRecords(w, item.Data)
	if len(item.Messages) > 0 {
		_, _ = fmt.Fprintf(w, "\n%d conversation message(s); see `casegen patch log` after loading\n", len(item.Messages))
	}
	return nil
}

func (c *cli) runHistoryLoad(cmd *cobra.Command, args []string) error {
	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	item, err := ws.LoadHistory(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s (%d tests, %d checks)\n", item.ID, item.TestsCount, item.ChecksCount)
	return nil
}

func (c *cli) runHistoryDelete(cmd *cobra.Command, args []string) error {
	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if err := ws.DeleteHistory(commandContext(cmd), args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}
