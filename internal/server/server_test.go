// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casegen/casegen/internal/server"
	"github.com/casegen/casegen/internal/store"
	"github.com/casegen/casegen/internal/transport"
	"github.com/casegen/casegen/internal/workspace"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const generated = `<tests>
  <test name="TC-1">Open login page</test>
  <test name="TC-2">Submit empty form</test>
</tests>
<additional_checks><check>Lockout after 5 attempts</check></additional_checks>`

type harness struct {
	srv  *server.Server
	fake *transport.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := transport.NewFake()
	tracker, err := transport.NewHealthTracker(time.Minute)
	require.NoError(t, err)
	mon := transport.Monitor(fake, tracker)

	m := workspace.NewManager(t.TempDir(), workspace.Options{
		Storage:   store.Config{Backend: "memory"},
		Transport: mon,
	})
	t.Cleanup(func() { _ = m.Close() })

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0", Version: "test"}, m, mon)
	require.NoError(t, err)
	return &harness{srv: srv, fake: fake}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_New_Validation(t *testing.T) {
	m := workspace.NewManager(t.TempDir(), workspace.Options{Storage: store.Config{Backend: "memory"}})

	_, err := server.New(server.Config{}, m, nil)
	require.Error(t, err)
	assert.True(t, cgerr.HasCode(err, cgerr.CodeServerConfigInvalid), "got %s", cgerr.CodeOf(err))
	assert.Contains(t, err.Error(), "listen address is required")

	_, err = server.New(server.Config{ListenAddr: "127.0.0.1:0"}, nil, nil)
	assert.True(t, cgerr.HasCode(err, cgerr.CodeServerConfigInvalid))
}

func TestServer_HealthReportsTransport(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[server.HealthBody](t, w)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	require.NotNil(t, body.Transport)
	assert.True(t, body.Transport.Available)

	h.fake.Script(transport.RouteGenerate, transport.Reply{Err: cgerr.New(cgerr.CodeTransportUpstreamFailure, "flow returned 502")})
	w = h.do(t, http.MethodPost, "/api/v1/workspaces/qa/generate", `{"features":["https://wiki/login"],"checklist":"https://wiki/checklist"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	body = decode[server.HealthBody](t, h.do(t, http.MethodGet, "/health", ""))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, []string{"qa"}, body.Workspaces)
	assert.EqualValues(t, 1, body.Transport.FailureCount)
}

func TestServer_OpenAPISpec(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	for _, path := range []string{
		"/api/v1/workspaces/{id}/records",
		"/api/v1/workspaces/{id}/generate/checks",
		"/api/v1/workspaces/{id}/history/{itemId}/load",
	} {
		assert.Contains(t, w.Body.String(), path)
	}
}

func TestRoutes_GenerateThenRecords(t *testing.T) {
	h := newHarness(t)
	h.fake.Script(transport.RouteGenerate, transport.Reply{Text: generated})

	w := h.do(t, http.MethodPost, "/api/v1/workspaces/qa/generate",
		`{"features":["https://wiki/login"],"checklist":"https://wiki/checklist"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Status    string `json:"status"`
		HistoryID string `json:"history_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "structured", out.Status)
	assert.NotEmpty(t, out.HistoryID)

	w = h.do(t, http.MethodGet, "/api/v1/workspaces/qa/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[server.RecordsBody](t, w)
	assert.Equal(t, out.HistoryID, rec.HistoryID)
	require.Len(t, rec.Tests, 2)
	assert.Equal(t, "TC-2", rec.Tests[1].Label)
	require.Len(t, rec.Checks, 1)
	assert.EqualValues(t, 1, rec.Version)
}

func TestRoutes_PlainTextGeneration(t *testing.T) {
	h := newHarness(t)
	h.fake.Script(transport.RouteGenerate, transport.Reply{Text: "Sorry, I can't read that page."})

	w := h.do(t, http.MethodPost, "/api/v1/workspaces/qa/generate", `{"features":["https://wiki/x"],"checklist":"https://wiki/checklist"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"plain_text"`)
	assert.Contains(t, w.Body.String(), "Sorry, I can't read that page.")

	rec := decode[server.RecordsBody](t, h.do(t, http.MethodGet, "/api/v1/workspaces/qa/records", ""))
	assert.Empty(t, rec.Tests)
}

func TestRoutes_PatchAndConversation(t *testing.T) {
	h := newHarness(t)
	h.fake.Script(transport.RouteGenerate, transport.Reply{Text: generated})
	h.fake.Script(transport.RouteAgent,
		transport.Reply{Text: `<test_patch><test position="0">Open login page over HTTPS</test></test_patch>`},
		transport.Reply{Text: "no idea"},
	)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/workspaces/qa/generate", `{"features":["https://wiki/login"],"checklist":"https://wiki/checklist"}`).Code)

	w := h.do(t, http.MethodPost, "/api/v1/workspaces/qa/patch", `{"instruction":"use https","positions":[0]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Open login page over HTTPS")

	w = h.do(t, http.MethodPost, "/api/v1/workspaces/qa/patch", `{"instruction":"again","positions":[0,1]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/workspaces/qa/patch", `{"instruction":"x","positions":[9]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	conv := decode[server.ConversationBody](t, h.do(t, http.MethodGet, "/api/v1/workspaces/qa/conversation", ""))
	assert.Equal(t, "idle", string(conv.State))
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, "use https", conv.Messages[0].Text)
	assert.True(t, strings.HasPrefix(conv.Messages[3].Text, "Error:"))
}

func TestRoutes_ExportReport(t *testing.T) {
	h := newHarness(t)
	h.fake.Script(transport.RouteGenerate, transport.Reply{Text: generated})
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/workspaces/qa/generate", `{"features":["https://wiki/login"],"checklist":"https://wiki/checklist"}`).Code)
	h.fake.Script(transport.RouteExport, transport.Reply{Text: "ok"})

	w := h.do(t, http.MethodPost, "/api/v1/workspaces/qa/export",
		`{"project_key":"QA","folder_name":"Login","positions":[0,1]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report struct {
		Profile   string `json:"profile"`
		Succeeded int    `json:"succeeded"`
		Items     []struct {
			Name string `json:"name"`
			OK   bool   `json:"ok"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "D", report.Profile)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, "TC-1", report.Items[0].Name)

	w = h.do(t, http.MethodPost, "/api/v1/workspaces/qa/export",
		`{"project_key":"QA","folder_name":"Login","positions":[5]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_HistoryLifecycle(t *testing.T) {
	h := newHarness(t)
	h.fake.Script(transport.RouteGenerate,
		transport.Reply{Text: generated},
		transport.Reply{Text: `<tests><test name="Other">Something else</test></tests>`},
	)
	base := "/api/v1/workspaces/qa"
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, base+"/generate", `{"features":["https://wiki/a"],"checklist":"https://wiki/checklist"}`).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, base+"/generate", `{"features":["https://wiki/b"],"checklist":"https://wiki/checklist"}`).Code)

	w := h.do(t, http.MethodGet, base+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []server.HistorySummary `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	assert.True(t, list.Items[0].Current)
	assert.Equal(t, []string{"https://wiki/a"}, list.Items[1].Features)
	older := list.Items[1].ID

	w = h.do(t, http.MethodPost, base+"/history/"+older+"/load", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[server.RecordsBody](t, h.do(t, http.MethodGet, base+"/records", ""))
	assert.Len(t, rec.Tests, 2)
	assert.Equal(t, older, rec.HistoryID)

	w = h.do(t, http.MethodDelete, base+"/history/"+older, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, base+"/history/"+older, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_InvalidWorkspaceID(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/workspaces/-bad/records", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_BusyPatchIsConflict(t *testing.T) {
	h := newHarness(t)
	h.fake.Script(transport.RouteGenerate, transport.Reply{Text: generated})
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/workspaces/qa/generate", `{"features":["https://wiki/login"],"checklist":"https://wiki/checklist"}`).Code)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.fake.Hook = func(_ context.Context, req transport.Request) error {
		if req.Route == transport.RouteAgent {
			close(entered)
			<-release
			return errors.New("upstream gone")
		}
		return nil
	}

	done := make(chan int)
	go func() {
		done <- h.do(t, http.MethodPost, "/api/v1/workspaces/qa/patch", `{"instruction":"slow","positions":[0]}`).Code
	}()
	<-entered

	w := h.do(t, http.MethodPost, "/api/v1/workspaces/qa/patch", `{"instruction":"fast","positions":[0]}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(release)
	assert.Equal(t, http.StatusInternalServerError, <-done)
}
