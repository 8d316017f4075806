// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Load configuration, wire the transport and workspaces, and serve the REST API until interrupted.",
		RunE:  c.runServe,
	}
	cmd.Flags().String("listen", "", "override listen address (host:port)")
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		c.v.Set("server.listen", listen)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	app, err := WireApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing workspaces", "error", err)
		}
	}()

	srv, err := app.NewServer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting casegen", "listen", cfg.Server.Listen, "transport", cfg.Transport.Kind, "data_dir", cfg.DataDir)
	return srv.Start(ctx)
}
