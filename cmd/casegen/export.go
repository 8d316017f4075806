// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/casegen/casegen/internal/export"
)

func (c *cli) newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export selected tests to the ticketing system",
		Long:  "Send each selected test to the export flow in parallel. A failed test does not stop the others; the report lists every outcome.",
		Example: `  casegen export --project QA --folder "Login" --test 0,1,2 --profile S`,
		RunE:    c.runExport,
	}
	cmd.Flags().String("project", "", "project key")
	cmd.Flags().String("folder", "", "folder name")
	cmd.Flags().IntSliceP("test", "t", nil, "test position to export (repeatable or comma separated)")
	cmd.Flags().String("profile", export.DefaultProfile, "connection profile")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("folder")
	_ = cmd.MarkFlagRequired("test")
	return cmd
}

func (c *cli) runExport(cmd *cobra.Command, _ []string) error {
	project, _ := cmd.Flags().GetString("project")
	folder, _ := cmd.Flags().GetString("folder")
	positions, _ := cmd.Flags().GetIntSlice("test")
	profile, _ := cmd.Flags().GetString("profile")

	app, ws, err := c.openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	report, err := ws.Export(commandContext(cmd), export.Request{
		ProjectKey: project,
		FolderName: folder,
		Positions:  positions,
		Profile:    profile,
	})
	if err != nil {
		return err
	}
	if done, err := emit(cmd, report); done {
		return err
	}

	w := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "POS\tTEST\tRESULT")
	for _, it := range report.Items {
		mark := "ok"
		if !it.OK {
			mark = "failed: " + it.Msg
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", it.Position, it.Name, mark)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "\nprofile %s: %d exported, %d failed\n", report.Profile, report.Succeeded, report.Failed)
	return nil
}
