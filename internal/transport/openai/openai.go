// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package openai delivers exchange payloads straight to an OpenAI-compatible
// chat completions API. The "openrouter" kind reuses it with OpenRouter's
// base URL.
package openai

import (
	"context"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const (
	defaultModel           = "gpt-4.1-mini"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "openai/gpt-4.1-mini"
)

func init() {
	transport.Register("openai", func(cfg transport.Config) (transport.Transport, error) {
		return New(cfg)
	})
	transport.Register("openrouter", func(cfg transport.Config) (transport.Transport, error) {
		if cfg.BaseURL == "" {
			cfg.BaseURL = openRouterBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = openRouterDefaultModel
		}
		return New(cfg)
	})
}

// Transport streams a chat completion per exchange and returns the
// accumulated text.
type Transport struct {
	client    openaisdk.Client
	model     string
	maxTokens int
}

// New creates an OpenAI transport. Returns an error if the API key is missing.
func New(cfg transport.Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, cgerr.New(cgerr.CodeTransportRequestInvalid, "openai: missing api_key in config", cgerr.Field("kind", "openai"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Transport{
		client:    openaisdk.NewClient(opts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (t *Transport) Exchange(ctx context.Context, req transport.Request) (string, error) {
	params := buildParams(t.model, t.maxTokens, req)
	stream := t.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var out strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			out.WriteString(choice.Delta.Content)
		}
	}

	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", cgerr.Wrap(ctxErr, cgerr.CodeTransportUpstreamFailure, "openai: request cancelled", cgerr.FieldRoute(string(req.Route)))
		}
		return "", cgerr.Wrap(err, cgerr.CodeTransportUpstreamFailure, "openai: streaming completion", cgerr.FieldRoute(string(req.Route)))
	}
	return out.String(), nil
}

// buildParams turns an exchange into a two-message chat: the route prompt as
// system message and the XML payload as user message.
func buildParams(model string, maxTokens int, req transport.Request) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(transport.SystemPrompt(req.Route)),
			openaisdk.UserMessage(req.Payload),
		},
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}
	return params
}
