// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/casegen/casegen/internal/config"
	"github.com/casegen/casegen/internal/server"
	"github.com/casegen/casegen/internal/store"
	_ "github.com/casegen/casegen/internal/store/sqlite" // register sqlite backend
	"github.com/casegen/casegen/internal/transport"
	_ "github.com/casegen/casegen/internal/transport/anthropic" // register anthropic kind
	_ "github.com/casegen/casegen/internal/transport/google"    // register google kind
	_ "github.com/casegen/casegen/internal/transport/openai"    // register openai and openrouter kinds
	"github.com/casegen/casegen/internal/workspace"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// App holds the wired subsystems of one invocation.
type App struct {
	Config     *config.Config
	Transport  *transport.Monitored
	Workspaces *workspace.Manager
}

// newTransport builds the configured transport. Tests replace it.
var newTransport = func(cfg config.TransportConfig) (transport.Transport, error) {
	return transport.New(transportConfig(cfg))
}

// WireApp creates the transport and workspace manager described by cfg.
func WireApp(cfg *config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, cgerr.Errorf(cgerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	tr, err := newTransport(cfg.Transport)
	if err != nil {
		return nil, cgerr.Wrapf(err, cgerr.CodeCLISetupFailure, "creating %s transport", cfg.Transport.Kind)
	}
	tracker, err := transport.NewHealthTracker(cfg.Transport.HealthCooldown)
	if err != nil {
		return nil, cgerr.Wrapf(err, cgerr.CodeCLISetupFailure, "creating health tracker")
	}
	mon := transport.Monitor(tr, tracker)
	slog.Debug("transport ready", "transport", cfg.Transport.String())

	mgr := workspace.NewManager(cfg.DataDir, workspace.Options{
		Storage:           store.Config{Backend: cfg.Storage.Backend},
		Transport:         mon,
		HistoryLimit:      cfg.History.Limit,
		ExportProfiles:    cfg.Export.Profiles,
		ExportConcurrency: cfg.Export.Concurrency,
		AuxToken:          cfg.Generation.AuxToken,
	})

	return &App{Config: cfg, Transport: mon, Workspaces: mgr}, nil
}

// NewServer builds the HTTP API over the app's workspaces.
func (a *App) NewServer() (*server.Server, error) {
	srv, err := server.New(server.Config{
		ListenAddr:   a.Config.Server.Listen,
		CORSOrigins:  a.Config.Server.CORSOrigins,
		WriteTimeout: a.Config.Transport.Timeout + time.Minute,
		Version:      version,
	}, a.Workspaces, a.Transport)
	if err != nil {
		return nil, cgerr.Wrapf(err, cgerr.CodeCLISetupFailure, "creating server")
	}
	return srv, nil
}

// Close releases every workspace store.
func (a *App) Close() error {
	var errs []error
	if a.Workspaces != nil {
		if err := a.Workspaces.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func transportConfig(c config.TransportConfig) transport.Config {
	endpoints := make(map[transport.Route]string, len(c.Endpoints))
	for route, url := range c.Endpoints {
		endpoints[transport.Route(route)] = url
	}
	return transport.Config{
		Kind:      c.Kind,
		Format:    transport.Format(c.Format),
		Endpoints: endpoints,
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Timeout:   c.Timeout,
	}
}

// openWorkspace loads config, wires the app and opens the workspace named by
// the --workspace flag. The caller closes the returned App.
func (c *cli) openWorkspace(cmd *cobra.Command) (*App, *workspace.Workspace, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	app, err := WireApp(cfg)
	if err != nil {
		return nil, nil, err
	}

	id, _ := cmd.Flags().GetString("workspace")
	ws, err := app.Workspaces.Open(commandContext(cmd), id)
	if err != nil {
		_ = app.Close()
		return nil, nil, err
	}
	return app, ws, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
