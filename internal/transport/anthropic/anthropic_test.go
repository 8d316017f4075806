// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casegen/casegen/internal/transport"
	"github.com/casegen/casegen/internal/transport/anthropic"
	cgerr "github.com/casegen/casegen/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ transport.Transport = (*anthropic.Transport)(nil)

func TestAnthropicTransport_MissingAPIKey(t *testing.T) {
	_, err := anthropic.New(transport.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, cgerr.IsInvalidInput(err))
}

func TestAnthropicTransport_Registered(t *testing.T) {
	tr, err := transport.New(transport.Config{Kind: "anthropic", APIKey: "test-key-not-real"})
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Transport{}, tr)
}

func TestAnthropicTransport_Exchange(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "<test_patch><test position=\"0\">x</test></test_patch>"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	tr, err := anthropic.New(transport.Config{APIKey: "k", BaseURL: srv.URL, MaxTokens: 512})
	require.NoError(t, err)

	out, err := tr.Exchange(context.Background(), transport.Request{Route: transport.RouteAgent, Payload: "<test_patch/>"})
	require.NoError(t, err)
	assert.Equal(t, `<test_patch><test position="0">x</test></test_patch>`, out)

	assert.Equal(t, "claude-sonnet-4-5", got["model"])
	assert.EqualValues(t, 512, got["max_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
}
