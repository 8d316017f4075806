// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

//go:build !windows

package config

import (
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning when the config file at path is
// readable by group or others. API keys and export tokens may live in it.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	if info.Mode().Perm()&0o044 != 0 {
		slog.Warn("config file is readable by other users; tokens in it may be exposed",
			"path", path, "mode", info.Mode(), "recommended", "0600")
	}
}
