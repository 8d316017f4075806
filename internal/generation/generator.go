// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package generation drives primary and supplemental generation requests:
// it builds the XML payload, exchanges it with the flow, parses the reply and
// ingests the records. A newer request always supersedes an older one.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/casegen/casegen/internal/history"
	"github.com/casegen/casegen/internal/patch"
	"github.com/casegen/casegen/internal/protocol"
	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// Status describes how a generation request ended.
type Status string

const (
	// StatusStructured means records were parsed and ingested.
	StatusStructured Status = "structured"
	// StatusPlainText means nothing could be extracted; the raw reply is
	// returned for display and the store is untouched.
	StatusPlainText Status = "plain_text"
	// StatusSuperseded means a newer request cancelled this one.
	StatusSuperseded Status = "superseded"
)

// Outcome is the result of one generation request.
type Outcome struct {
	Status    Status                  `json:"status"`
	Result    record.GenerationResult `json:"result"`
	PlainText string                  `json:"plain_text,omitempty"`
	HistoryID string                  `json:"history_id,omitempty"`
}

// Recorder persists completed generations. *history.History satisfies it.
type Recorder interface {
	Save(ctx context.Context, data record.GenerationResult, params history.Params, msgs []patch.Message) (history.Item, error)
}

// Generator owns the single in-flight generation of one workspace.
type Generator struct {
	store     *record.Store
	transport transport.Transport
	recorder  Recorder
	now       func() time.Time

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// New creates a Generator. recorder may be nil to skip persistence.
func New(store *record.Store, tr transport.Transport, recorder Recorder) *Generator {
	return &Generator{store: store, transport: tr, recorder: recorder, now: time.Now}
}

// SetNowFunc overrides the clock used for session ids (for testing).
func (g *Generator) SetNowFunc(fn func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = fn
}

// Generate issues a primary generation and replaces the store on success.
func (g *Generator) Generate(ctx context.Context, in protocol.GenerationInput) (Outcome, error) {
	in = in.Normalize()
	payload, err := protocol.BuildGeneration(in)
	if err != nil {
		return Outcome{}, err
	}

	params := history.Params{Features: in.Features, Checklist: in.Checklist}
	return g.run(ctx, payload, func(ctx context.Context, res record.GenerationResult) string {
		g.store.Replace(res)
		return g.save(ctx, g.store.Snapshot(), params)
	})
}

// Supplemental requests more tests seeded by the checks at positions. The
// checks are marked used once the flow answered, and parsed records are
// appended to the store.
func (g *Generator) Supplemental(ctx context.Context, in protocol.GenerationInput, positions []int) (Outcome, error) {
	if len(positions) == 0 {
		return Outcome{}, cgerr.New(cgerr.CodeGenerationRequestInvalid, "at least one additional check must be selected",
			cgerr.Field("field", "checks"))
	}

	checks := make([]string, 0, len(positions))
	for _, pos := range positions {
		c, ok := g.store.Check(pos)
		if !ok {
			return Outcome{}, cgerr.New(cgerr.CodeGenerationRequestInvalid, "selected check does not exist", cgerr.FieldPosition(pos))
		}
		checks = append(checks, c.Content)
	}

	in = in.Normalize()
	payload, err := protocol.BuildSupplemental(in, checks)
	if err != nil {
		return Outcome{}, err
	}

	params := history.Params{Features: in.Features, Checklist: in.Checklist, SelectedChecks: checks}
	return g.run(ctx, payload, func(ctx context.Context, res record.GenerationResult) string {
		for _, pos := range positions {
			if err := g.store.MarkUsed(pos); err != nil {
				slog.Warn("check vanished before it could be marked used", "position", pos, "error", err)
			}
		}
		g.store.Append(res)
		return g.save(ctx, g.store.Snapshot(), params)
	})
}

// Cancel aborts the in-flight request, if any. The aborted call reports
// StatusSuperseded.
func (g *Generator) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

type ingestFunc func(ctx context.Context, res record.GenerationResult) string

func (g *Generator) run(ctx context.Context, payload string, ingest ingestFunc) (Outcome, error) {
	ctx, seq := g.begin(ctx)
	defer g.finish(seq)

	reply, err := g.transport.Exchange(ctx, transport.Request{
		Route:     transport.RouteGenerate,
		Payload:   payload,
		SessionID: transport.NewSessionID(g.clock()),
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seq != seq {
		slog.Debug("generation superseded", "seq", seq, "error", err)
		return Outcome{Status: StatusSuperseded}, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return Outcome{Status: StatusSuperseded}, nil
		}
		return Outcome{}, err
	}

	res := protocol.ParseGeneration(reply)
	if res.Empty() {
		slog.Info("generation reply had no records, returning plain text", "bytes", len(reply))
		return Outcome{Status: StatusPlainText, PlainText: reply}, nil
	}

	id := ingest(ctx, res)
	slog.Info("generation ingested", "tests", len(res.Tests), "checks", len(res.Checks))
	return Outcome{Status: StatusStructured, Result: res, HistoryID: id}, nil
}

// begin cancels the previous request and derives the context of a new one.
func (g *Generator) begin(parent context.Context) (context.Context, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.seq++
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	return ctx, g.seq
}

func (g *Generator) finish(seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seq == seq && g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

func (g *Generator) clock() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now()
}

func (g *Generator) save(ctx context.Context, data record.GenerationResult, params history.Params) string {
	if g.recorder == nil {
		return ""
	}
	item, err := g.recorder.Save(context.WithoutCancel(ctx), data, params, nil)
	if err != nil {
		slog.Warn("saving generation to history failed", "error", err)
		return ""
	}
	return item.ID
}
