// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package anthropic

import (
	"context"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 8192
)

func init() {
	transport.Register("anthropic", func(cfg transport.Config) (transport.Transport, error) {
		return New(cfg)
	})
}

// Transport sends each exchange as a single Messages API call.
type Transport struct {
	client    anthropicsdk.Client
	model     string
	maxTokens int64
}

// New creates an Anthropic transport. Returns an error if the API key is missing.
func New(cfg transport.Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, cgerr.New(cgerr.CodeTransportRequestInvalid, "anthropic: missing api_key in config", cgerr.Field("kind", "anthropic"))
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
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Transport{
		client:    anthropicsdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (t *Transport) Exchange(ctx context.Context, req transport.Request) (string, error) {
	msg, err := t.client.Messages.New(ctx, buildParams(t.model, t.maxTokens, req))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", cgerr.Wrap(ctxErr, cgerr.CodeTransportUpstreamFailure, "anthropic: request cancelled", cgerr.FieldRoute(string(req.Route)))
		}
		return "", cgerr.Wrap(err, cgerr.CodeTransportUpstreamFailure, "anthropic: creating message", cgerr.FieldRoute(string(req.Route)))
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

func buildParams(model string, maxTokens int64, req transport.Request) anthropicsdk.MessageNewParams {
	return anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: maxTokens,
		System: []anthropicsdk.TextBlockParam{
			{Text: transport.SystemPrompt(req.Route)},
		},
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Payload)),
		},
	}
}
