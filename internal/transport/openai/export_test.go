// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package openai

import (
	openaisdk "github.com/openai/openai-go"

	"github.com/casegen/casegen/internal/transport"
)

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(model string, maxTokens int, req transport.Request) openaisdk.ChatCompletionNewParams {
	return buildParams(model, maxTokens, req)
}
