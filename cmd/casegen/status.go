// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/casegen/casegen/internal/server"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// errServerNotRunning indicates the API refused the connection.
var errServerNotRunning = errors.New("server is not running (connection refused)")

// defaultHTTPClient is used by status. Overridden in tests.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

func (c *cli) newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running API server's health",
		Long:  "Query /health of a running `casegen serve` and display transport health.",
		RunE:  c.runStatus,
	}
	cmd.Flags().String("address", "", "server address (host:port); defaults to server.listen")
	return cmd
}

func (c *cli) runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = c.v.GetString("server.listen")
	}
	out := cmd.OutOrStdout()

	var body server.HealthBody
	if err := getJSON("http://"+addr+"/health", &body); err != nil {
		if errors.Is(err, errServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running\n", addr)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s (version %s)\n", addr, body.Status, body.Version)
	if t := body.Transport; t != nil {
		_, _ = fmt.Fprintf(out, "Transport: %d exchanges, %d failures", t.Exchanges, t.FailureCount)
		if t.LastError != "" {
			_, _ = fmt.Fprintf(out, ", last error: %s", t.LastError)
		}
		_, _ = fmt.Fprintln(out)
	}
	if len(body.Workspaces) > 0 {
		_, _ = fmt.Fprintf(out, "Open workspaces: %v\n", body.Workspaces)
	}
	return nil
}

// getJSON performs a GET request and decodes the JSON response into dest.
func getJSON(url string, dest any) error {
	resp, err := defaultHTTPClient.Get(url)
	if err != nil {
		if isDialError(err) {
			return errServerNotRunning
		}
		return cgerr.Errorf(cgerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return cgerr.Errorf(cgerr.CodeCLIRequestFailure, "server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return cgerr.Errorf(cgerr.CodeCLIRequestFailure, "invalid response: %w", err)
	}
	return nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
