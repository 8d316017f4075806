// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

const (
	bodyPreviewLimit = 500
	defaultTimeout   = 5 * time.Minute
)

// responsePaths are tried in order; the first non-empty string wins.
var responsePaths = []string{
	"outputs.0.outputs.0.results.message.text",
	"result",
	"message",
}

func init() {
	Register("http", func(cfg Config) (Transport, error) {
		return NewHTTP(cfg)
	})
}

// HTTP delivers payloads to flow endpoints as JSON chat requests.
type HTTP struct {
	client    *http.Client
	endpoints map[Route]string
	apiKey    string
	format    Format
}

// NewHTTP builds an HTTP transport. Endpoints may be empty; a missing route
// is reported when that route is used.
func NewHTTP(cfg Config) (*HTTP, error) {
	switch cfg.Format {
	case "":
		cfg.Format = FormatStandard
	case FormatStandard, FormatInputs, FormatMessage:
	default:
		return nil, cgerr.New(cgerr.CodeTransportRequestInvalid, "unknown request format", cgerr.Field("format", string(cfg.Format)))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	endpoints := make(map[Route]string, len(cfg.Endpoints))
	for r, u := range cfg.Endpoints {
		endpoints[r] = strings.TrimSpace(u)
	}

	return &HTTP{
		client:    &http.Client{Timeout: timeout},
		endpoints: endpoints,
		apiKey:    cfg.APIKey,
		format:    cfg.Format,
	}, nil
}

// Exchange posts req to the endpoint configured for req.Route.
func (h *HTTP) Exchange(ctx context.Context, req Request) (string, error) {
	url := h.endpoints[req.Route]
	if url == "" {
		return "", cgerr.New(cgerr.CodeTransportRequestInvalid, "no endpoint configured for route", cgerr.FieldRoute(string(req.Route)))
	}

	sid := req.SessionID
	if sid == "" {
		sid = NewSessionID(time.Now())
	}

	body, err := json.Marshal(buildBody(req.Payload, h.format, sid))
	if err != nil {
		return "", cgerr.Wrap(err, cgerr.CodeTransportRequestInvalid, "encoding request body")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", cgerr.Wrap(err, cgerr.CodeTransportRequestInvalid, "creating request", cgerr.FieldRoute(string(req.Route)))
	}
	for k, v := range h.headers() {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", cgerr.Wrap(ctxErr, cgerr.CodeTransportUpstreamFailure, "request cancelled", cgerr.FieldRoute(string(req.Route)))
		}
		return "", cgerr.Wrap(err, cgerr.CodeTransportUpstreamFailure, "sending request", cgerr.FieldRoute(string(req.Route)))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", cgerr.Wrap(ctxErr, cgerr.CodeTransportUpstreamFailure, "request cancelled", cgerr.FieldRoute(string(req.Route)))
		}
		return "", cgerr.Wrap(err, cgerr.CodeTransportUpstreamFailure, "reading response", cgerr.FieldRoute(string(req.Route)))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp, raw, req.Route)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		// Export endpoints only acknowledge; their body is informational.
		if req.Route == RouteExport {
			return string(raw), nil
		}
		return "", contentTypeError(contentType, raw, req.Route)
	}

	if !gjson.ValidBytes(raw) {
		if req.Route == RouteExport {
			return string(raw), nil
		}
		var probe any
		jsonErr := json.Unmarshal(raw, &probe)
		if jsonErr == nil {
			jsonErr = errors.New("invalid JSON")
		}
		return "", cgerr.Wrap(jsonErr, cgerr.CodeTransportUpstreamMalformed, "parsing JSON response", cgerr.FieldRoute(string(req.Route)))
	}

	return ExtractResponse(raw), nil
}

func (h *HTTP) headers() map[string]string {
	hdr := map[string]string{"Content-Type": "application/json"}
	if h.apiKey != "" {
		hdr["Authorization"] = "Bearer " + h.apiKey
		hdr["x-api-key"] = h.apiKey
	}
	return hdr
}

func buildBody(payload string, format Format, sid string) map[string]any {
	body := map[string]any{
		"output_type": "chat",
		"input_type":  "chat",
		"session_id":  sid,
	}
	switch format {
	case FormatInputs:
		body["inputs"] = map[string]any{"input_value": payload}
	case FormatMessage:
		body["message"] = payload
	default:
		body["input_value"] = payload
	}
	return body
}

// ExtractResponse pulls the reply text out of a flow response. When none of
// the known fields holds a non-empty string the whole document is returned,
// indented by two spaces.
func ExtractResponse(raw []byte) string {
	for _, path := range responsePaths {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func statusError(resp *http.Response, body []byte, route Route) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode == http.StatusMethodNotAllowed {
		msg.WriteString("\n\nmethod not allowed: check the endpoint URL and the request format setting")
	}
	msg.WriteString("\n\nserver response:\n")
	msg.Write(body)

	return cgerr.New(cgerr.CodeTransportUpstreamFailure, msg.String(),
		cgerr.FieldRoute(string(route)), cgerr.Field("status", resp.StatusCode))
}

func contentTypeError(contentType string, body []byte, route Route) error {
	if contentType == "" {
		contentType = "unknown"
	}
	preview := body
	if len(preview) > bodyPreviewLimit {
		preview = preview[:bodyPreviewLimit]
	}

	msg := fmt.Sprintf("unexpected response format (%s)\n\ncheck:\n- the flow URL is correct\n- the server returns JSON rather than an HTML page\n\nserver response:\n%s",
		contentType, preview)
	return cgerr.New(cgerr.CodeTransportUpstreamContentType, msg,
		cgerr.FieldRoute(string(route)), cgerr.Field("content_type", contentType))
}
