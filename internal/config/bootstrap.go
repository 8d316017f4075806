// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

//go:embed casegen.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/casegen/casegen.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", cgerr.Errorf(cgerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "casegen", "casegen.yaml"), nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "casegen", "data")
	}
	return filepath.Join(os.TempDir(), "casegen")
}

// BootstrapConfig writes the commented default config to path unless a file
// already exists there. It returns the path written, or "" when nothing was
// written; failures are logged at debug level and otherwise ignored.
func BootstrapConfig(path string) string {
	if _, err := os.Stat(path); err == nil {
		return ""
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return ""
	}

	slog.Info("created default config", "path", path)
	return path
}
