// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/casegen/casegen/internal/server"
	"github.com/casegen/casegen/internal/store"
	"github.com/casegen/casegen/internal/transport"
	"github.com/casegen/casegen/internal/workspace"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec huma derives from the handler types. The manager is never
// asked to open a workspace.
func generateSpec() ([]byte, error) {
	m := workspace.NewManager(os.TempDir(), workspace.Options{
		Storage:   store.Config{Backend: "memory"},
		Transport: transport.NewDemo(),
	})
	defer func() { _ = m.Close() }()

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, m, nil)
	if err != nil {
		return nil, cgerr.Errorf(cgerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}
