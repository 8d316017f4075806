// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

//go:build windows

package config

// WarnInsecurePermissions is a no-op on Windows, where access is governed
// by ACLs rather than mode bits.
func WarnInsecurePermissions(string) {}
