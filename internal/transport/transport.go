// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package transport carries encoded exchange payloads to the remote flow and
// returns its reply text. Implementations are registered by kind; the HTTP
// flow client lives here and direct model clients live in subpackages.
package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

// Route selects the remote endpoint a payload is delivered to.
type Route string

const (
	RouteGenerate Route = "generate"
	RouteAgent    Route = "agent"
	RouteExport   Route = "export"
)

// Request is one exchange with the remote flow.
type Request struct {
	Route     Route
	Payload   string
	SessionID string
}

// Transport delivers a request and returns the reply text. Cancelling ctx
// aborts the exchange and the returned error wraps ctx.Err().
type Transport interface {
	Exchange(ctx context.Context, req Request) (string, error)
}

// Format selects the JSON body shape used by the HTTP flow client.
type Format string

const (
	FormatStandard Format = "standard"
	FormatInputs   Format = "inputs"
	FormatMessage  Format = "message"
)

// Config is the union of settings any transport kind may need.
type Config struct {
	Kind      string
	Format    Format
	Endpoints map[Route]string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Constructor builds a Transport from cfg.
type Constructor func(cfg Config) (Transport, error)

var (
	constructors   = map[string]Constructor{}
	constructorsMu sync.RWMutex
)

// Register makes a transport kind available to New. Implementation packages
// call this from init().
func Register(kind string, c Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors[kind] = c
}

// Kinds returns the registered transport kinds.
func Kinds() []string {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()
	out := make([]string, 0, len(constructors))
	for k := range constructors {
		out = append(out, k)
	}
	return out
}

// New builds the transport named by cfg.Kind, defaulting to "http".
func New(cfg Config) (Transport, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = "http"
	}

	constructorsMu.RLock()
	c, ok := constructors[kind]
	constructorsMu.RUnlock()
	if !ok {
		return nil, cgerr.New(cgerr.CodeTransportProviderNotSupported, "unsupported transport kind", cgerr.Field("kind", kind))
	}
	return c(cfg)
}

// NewSessionID returns an id of the form YYYYMMDD_HHMMSS_xxxxxxxx, unique
// per exchange.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.Format("20060102_150405") + "_" + suffix
}
