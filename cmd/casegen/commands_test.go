// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/casegen/casegen/internal/config"
	"github.com/casegen/casegen/internal/history"
	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// isolate points HOME at a temp dir, disables config bootstrapping and
// selects the offline demo transport.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CASEGEN_TRANSPORT_KIND", "fake")

	orig := bootstrapDefault
	bootstrapDefault = func() string { return "" }
	t.Cleanup(func() { bootstrapDefault = orig })

	return t.TempDir()
}

func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	require.NoError(t, root.Execute())
	for _, sub := range []string{"serve", "generate", "checks", "patch", "export", "history", "secret", "version"} {
		assert.Contains(t, buf.String(), sub)
	}
	assert.Contains(t, buf.String(), "--workspace")
}

func TestVersionCommand(t *testing.T) {
	dir := isolate(t)
	out, err := execute(t, dir, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "casegen dev")
}

func TestConfigFileMustExist(t *testing.T) {
	dir := isolate(t)
	_, err := execute(t, dir, "--config", "/nonexistent/casegen.yaml", "records")
	require.Error(t, err)
	assert.True(t, cgerr.HasCode(err, cgerr.CodeConfigLoadReadFailure))
}

func TestInvalidConfigIsReported(t *testing.T) {
	dir := isolate(t)
	t.Setenv("CASEGEN_STORAGE_BACKEND", "etcd")
	_, err := execute(t, dir, "records")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestWorkflowAcrossInvocations(t *testing.T) {
	dir := isolate(t)

	out, err := execute(t, dir, "generate", "-f", "https://wiki.example/login", "--checklist", "https://wiki.example/qa")
	require.NoError(t, err)
	assert.Contains(t, out, "TC-1")
	assert.Contains(t, out, "Saved to history as")

	out, err = execute(t, dir, "records", "-o", "json")
	require.NoError(t, err)
	var snap record.GenerationResult
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Tests, 2)
	assert.Len(t, snap.Checks, 2)

	out, err = execute(t, dir, "patch", "--test", "1", "keep", "it", "as", "is")
	require.NoError(t, err)
	assert.Contains(t, out, "1 test(s) updated")

	out, err = execute(t, dir, "patch", "log")
	require.NoError(t, err)
	assert.Contains(t, out, "keep it as is")

	out, err = execute(t, dir, "export", "--project", "QA", "--folder", "Login", "--test", "0,1")
	require.NoError(t, err)
	assert.Contains(t, out, "profile D: 2 exported, 0 failed")

	out, err = execute(t, dir, "history", "list", "-o", "json")
	require.NoError(t, err)
	var items []history.Item
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Len(t, items[0].Messages, 2, "patch conversation is written back to the history item")

	out, err = execute(t, dir, "history", "show", items[0].ID, "-o", "yaml")
	require.NoError(t, err)
	var shown history.Item
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, items[0].ID, shown.ID)
	assert.Equal(t, []string{"https://wiki.example/login"}, shown.Params.Features)

	out, err = execute(t, dir, "history", "delete", items[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")

	_, err = execute(t, dir, "history", "show", items[0].ID)
	assert.True(t, cgerr.IsNotFound(err))
}

func TestChecksReuseLastFeatures(t *testing.T) {
	dir := isolate(t)
	fake := transport.NewDemo()
	orig := newTransport
	newTransport = func(config.TransportConfig) (transport.Transport, error) { return fake, nil }
	t.Cleanup(func() { newTransport = orig })

	_, err := execute(t, dir, "generate", "-f", "https://wiki.example/login", "--checklist", "https://wiki.example/qa")
	require.NoError(t, err)
	_, err = execute(t, dir, "checks", "--check", "0")
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Payload, "https://wiki.example/login")
	assert.Contains(t, reqs[1].Payload, "Check keyboard navigation")
}

func TestWorkspacesAreIsolated(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, dir, "-w", "alpha", "generate", "-f", "https://wiki.example/a", "--checklist", "https://wiki.example/qa")
	require.NoError(t, err)

	out, err := execute(t, dir, "-w", "beta", "records")
	require.NoError(t, err)
	assert.Contains(t, out, "No tests yet")

	_, err = execute(t, dir, "-w", "../escape", "records")
	assert.True(t, cgerr.IsInvalidInput(err))
}

func TestUnknownOutputFormat(t *testing.T) {
	dir := isolate(t)
	_, err := execute(t, dir, "records", "-o", "xml")
	require.Error(t, err)
	assert.True(t, cgerr.HasCode(err, cgerr.CodeCLIInputInvalid))
}

func TestPatchValidationError(t *testing.T) {
	dir := isolate(t)
	_, err := execute(t, dir, "generate", "-f", "https://wiki.example/login", "--checklist", "https://wiki.example/qa")
	require.NoError(t, err)

	_, err = execute(t, dir, "patch", "--test", "7", "do something")
	require.Error(t, err)
	assert.True(t, cgerr.IsInvalidInput(err))
}

func TestStatusCommand(t *testing.T) {
	dir := isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"degraded","version":"1.2.3","workspaces":["default"],
			"transport":{"exchanges":4,"failure_count":1,"last_error":"flow returned 502","available":false}}`))
	}))
	defer srv.Close()

	out, err := execute(t, dir, "status", "--address", strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	assert.Contains(t, out, "degraded (version 1.2.3)")
	assert.Contains(t, out, "4 exchanges, 1 failures, last error: flow returned 502")
	assert.Contains(t, out, "[default]")
}

func TestStatusCommand_NotRunning(t *testing.T) {
	dir := isolate(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	out, err := execute(t, dir, "status", "--address", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "is not running")
}
