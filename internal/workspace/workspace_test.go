// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package workspace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casegen/casegen/internal/export"
	"github.com/casegen/casegen/internal/generation"
	"github.com/casegen/casegen/internal/protocol"
	"github.com/casegen/casegen/internal/store"
	_ "github.com/casegen/casegen/internal/store/sqlite"
	"github.com/casegen/casegen/internal/transport"
	"github.com/casegen/casegen/internal/workspace"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const generated = `<tests>
  <test name="TC-1">Open login page</test>
  <test name="TC-2">Submit empty form</test>
  <test name="TC-3">Submit wrong password</test>
</tests>
<additional_checks><check>Lockout after 5 attempts</check></additional_checks>`

var input = protocol.GenerationInput{Features: []string{"https://wiki/login"}, Checklist: "https://wiki/checklist"}

func newManager(t *testing.T, dir string, tr transport.Transport) *workspace.Manager {
	t.Helper()
	m := workspace.NewManager(dir, workspace.Options{
		Storage:        store.Config{Backend: "sqlite"},
		Transport:      tr,
		AuxToken:       "conf-token",
		ExportProfiles: map[string]export.Profile{"d": {ConnectionURL: "https://jira.example"}},
	})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestOpenCachesAndValidatesID(t *testing.T) {
	m := newManager(t, t.TempDir(), transport.NewFake())
	ctx := context.Background()

	ws, err := m.Open(ctx, workspace.DefaultID)
	require.NoError(t, err)
	again, err := m.Open(ctx, workspace.DefaultID)
	require.NoError(t, err)
	assert.Same(t, ws, again)
	assert.Equal(t, []string{"default"}, m.IDs())

	for _, bad := range []string{"", "../etc", "a/b", "-lead"} {
		_, err := m.Open(ctx, bad)
		assert.True(t, cgerr.IsInvalidInput(err), "id %q", bad)
	}
}

func TestGeneratePatchAndResume(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	fake := transport.NewFake().
		Script(transport.RouteGenerate, transport.Reply{Text: generated}).
		Script(transport.RouteAgent, transport.Reply{Text: `<test_patch><test position="1">Submit empty form and check messages</test></test_patch>`})

	m := newManager(t, dir, fake)
	ws, err := m.Open(ctx, "qa")
	require.NoError(t, err)

	out, err := ws.Generate(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, generation.StatusStructured, out.Status)
	assert.Contains(t, fake.Requests()[0].Payload, "<confluence_token>conf-token</confluence_token>")

	_, err = ws.ApplyPatch(ctx, "check messages", []int{1})
	require.NoError(t, err)

	item, err := ws.History.Get(ctx, ws.HistoryID())
	require.NoError(t, err)
	assert.Equal(t, "Submit empty form and check messages", item.Data.Tests[1].Content)
	assert.Len(t, item.Messages, 2)
	require.NoError(t, m.Close())

	m2 := newManager(t, dir, transport.NewFake())
	resumed, err := m2.Open(ctx, "qa")
	require.NoError(t, err)
	assert.Equal(t, "Submit empty form and check messages", resumed.Store.Tests()[1].Content)
	assert.Len(t, resumed.Patch.Messages(), 2)
	assert.Equal(t, out.HistoryID, resumed.HistoryID())
}

func TestRejectedPatchIsLoggedInHistory(t *testing.T) {
	ctx := context.Background()
	fake := transport.NewFake().
		Script(transport.RouteGenerate, transport.Reply{Text: generated}).
		Script(transport.RouteAgent, transport.Reply{Text: "I could not do that."})

	ws, err := newManager(t, t.TempDir(), fake).Open(ctx, "qa")
	require.NoError(t, err)
	_, err = ws.Generate(ctx, input)
	require.NoError(t, err)

	_, err = ws.ApplyPatch(ctx, "rewrite", []int{0, 2})
	require.Error(t, err)
	assert.True(t, cgerr.IsReconcileFailure(err))

	item, err := ws.History.Get(ctx, ws.HistoryID())
	require.NoError(t, err)
	require.Len(t, item.Messages, 2)
	assert.Contains(t, item.Messages[1].Text, "Error:")
	assert.Equal(t, "Open login page", item.Data.Tests[0].Content)
}

func TestSupplementalReusesLastInput(t *testing.T) {
	ctx := context.Background()
	fake := transport.NewFake().Script(transport.RouteGenerate,
		transport.Reply{Text: generated},
		transport.Reply{Text: `<tests><test name="TC-4">Lock the account</test></tests>`},
	)
	ws, err := newManager(t, t.TempDir(), fake).Open(ctx, "qa")
	require.NoError(t, err)

	first, err := ws.Generate(ctx, input)
	require.NoError(t, err)
	second, err := ws.Supplemental(ctx, protocol.GenerationInput{}, []int{0})
	require.NoError(t, err)

	assert.NotEqual(t, first.HistoryID, second.HistoryID)
	assert.Equal(t, second.HistoryID, ws.HistoryID())
	assert.Len(t, ws.Store.Tests(), 4)
	assert.Contains(t, fake.Requests()[1].Payload, "<feature>https://wiki/login</feature>")
}

func TestSupplementalKeepsRequestOverrides(t *testing.T) {
	ctx := context.Background()
	fake := transport.NewFake().Script(transport.RouteGenerate,
		transport.Reply{Text: generated},
		transport.Reply{Text: `<tests><test name="TC-4">Lock the account</test></tests>`},
		transport.Reply{Text: `<tests><test name="TC-5">Unlock the account</test></tests>`},
	)
	ws, err := newManager(t, t.TempDir(), fake).Open(ctx, "qa")
	require.NoError(t, err)

	_, err = ws.Generate(ctx, input)
	require.NoError(t, err)

	_, err = ws.Supplemental(ctx, protocol.GenerationInput{AuxToken: "req-token"}, []int{0})
	require.NoError(t, err)
	payload := fake.Requests()[1].Payload
	assert.Contains(t, payload, "<confluence_token>req-token</confluence_token>")
	assert.NotContains(t, payload, "conf-token")
	assert.Contains(t, payload, "<feature>https://wiki/login</feature>")

	_, err = ws.Supplemental(ctx, protocol.GenerationInput{Features: []string{"https://wiki/lockout"}}, []int{0})
	require.NoError(t, err)
	payload = fake.Requests()[2].Payload
	assert.Contains(t, payload, "<feature>https://wiki/lockout</feature>")
	assert.Contains(t, payload, "<checklist>"+input.Checklist+"</checklist>")
	assert.Contains(t, payload, "<confluence_token>conf-token</confluence_token>")
}

func TestLoadAndDeleteHistory(t *testing.T) {
	ctx := context.Background()
	fake := transport.NewFake().Script(transport.RouteGenerate,
		transport.Reply{Text: generated},
		transport.Reply{Text: `<tests><test name="Other">Something else</test></tests>`},
	)
	ws, err := newManager(t, t.TempDir(), fake).Open(ctx, "qa")
	require.NoError(t, err)

	first, err := ws.Generate(ctx, input)
	require.NoError(t, err)
	_, err = ws.Generate(ctx, input)
	require.NoError(t, err)
	assert.Len(t, ws.Store.Tests(), 1)

	item, err := ws.LoadHistory(ctx, first.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, first.HistoryID, item.ID)
	assert.Len(t, ws.Store.Tests(), 3)
	assert.Equal(t, first.HistoryID, ws.HistoryID())

	require.NoError(t, ws.DeleteHistory(ctx, first.HistoryID))
	assert.Empty(t, ws.HistoryID())
	assert.Len(t, ws.Store.Tests(), 3)

	_, err = ws.LoadHistory(ctx, first.HistoryID)
	assert.True(t, cgerr.IsNotFound(err))
}

func TestExportUsesConfiguredProfile(t *testing.T) {
	ctx := context.Background()
	fake := transport.NewFake().Script(transport.RouteGenerate, transport.Reply{Text: generated})
	ws, err := newManager(t, t.TempDir(), fake).Open(ctx, "qa")
	require.NoError(t, err)
	_, err = ws.Generate(ctx, input)
	require.NoError(t, err)

	report, err := ws.Export(ctx, export.Request{ProjectKey: "QA", FolderName: "Login", Positions: []int{0, 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Contains(t, fake.Requests()[1].Payload, "https://jira.example")
}
