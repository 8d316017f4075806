// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const defaultModel = "gemini-2.5-flash"

func init() {
	transport.Register("google", func(cfg transport.Config) (transport.Transport, error) {
		return New(cfg)
	})
}

// Transport sends each exchange to the Gemini API.
type Transport struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// New creates a Google transport. Returns an error if the API key is missing.
func New(cfg transport.Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, cgerr.New(cgerr.CodeTransportRequestInvalid, "google: missing api_key in config", cgerr.Field("kind", "google"))
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, cgerr.Wrapf(err, cgerr.CodeTransportUpstreamFailure, "google: creating client")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Transport{
		client:    client,
		model:     model,
		maxTokens: int32(cfg.MaxTokens),
	}, nil
}

func (t *Transport) Exchange(ctx context.Context, req transport.Request) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(req.Payload, genai.RoleUser),
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, buildConfig(t.maxTokens, req.Route))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", cgerr.Wrap(ctxErr, cgerr.CodeTransportUpstreamFailure, "google: request cancelled", cgerr.FieldRoute(string(req.Route)))
		}
		return "", cgerr.Wrap(err, cgerr.CodeTransportUpstreamFailure, "google: generating content", cgerr.FieldRoute(string(req.Route)))
	}
	return resp.Text(), nil
}

func buildConfig(maxTokens int32, route transport.Route) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: transport.SystemPrompt(route)},
			},
		},
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = maxTokens
	}
	return cfg
}
