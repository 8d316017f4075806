// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package workspace ties one record store to the components that operate on
// it: generator, patch session, exporter and history. A Workspace is the
// explicit context object passed to the API and CLI layers.
package workspace

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/casegen/casegen/internal/export"
	"github.com/casegen/casegen/internal/generation"
	"github.com/casegen/casegen/internal/history"
	"github.com/casegen/casegen/internal/patch"
	"github.com/casegen/casegen/internal/protocol"
	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/store"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// stateKey holds the working set so a later process (CLI invocation or
// server restart) resumes where the previous one stopped.
const stateKey = "state"

type state struct {
	HistoryID string                   `json:"history_id,omitempty"`
	Input     protocol.GenerationInput `json:"input"`
	Data      record.GenerationResult  `json:"data"`
	Messages  []patch.Message          `json:"messages,omitempty"`
}

// Workspace is one isolated working set.
type Workspace struct {
	ID string

	Store     *record.Store
	Generator *generation.Generator
	Patch     *patch.Session
	Exporter  *export.Exporter
	History   *history.History

	kv       store.KV
	auxToken string

	mu        sync.Mutex
	historyID string
	input     protocol.GenerationInput
}

// Generate runs a primary generation. On success the conversation log is
// cleared because it referred to the replaced records.
func (w *Workspace) Generate(ctx context.Context, in protocol.GenerationInput) (generation.Outcome, error) {
	in = w.withAuxToken(in)
	out, err := w.Generator.Generate(ctx, in)
	if err != nil || out.Status != generation.StatusStructured {
		return out, err
	}

	w.Patch.Reset()
	w.mu.Lock()
	w.historyID = out.HistoryID
	w.input = in
	w.mu.Unlock()
	w.persist(ctx)
	return out, nil
}

// Supplemental generates more tests from the checks at positions. When in
// carries no features the inputs of the last generation are reused, and a
// missing checklist falls back to the last one.
func (w *Workspace) Supplemental(ctx context.Context, in protocol.GenerationInput, positions []int) (generation.Outcome, error) {
	w.mu.Lock()
	if len(in.Normalize().Features) == 0 {
		aux := in.AuxToken
		in = w.input
		if aux != "" {
			in.AuxToken = aux
		}
	} else if in.Checklist == "" {
		in.Checklist = w.input.Checklist
	}
	w.mu.Unlock()
	in = w.withAuxToken(in)

	out, err := w.Generator.Supplemental(ctx, in, positions)
	if err != nil || out.Status != generation.StatusStructured {
		return out, err
	}

	w.mu.Lock()
	w.historyID = out.HistoryID
	w.mu.Unlock()
	w.persist(ctx)
	return out, nil
}

// ApplyPatch submits an instruction for the tests at positions. The
// conversation and records are written back to the current history item
// whether or not the reply was accepted.
func (w *Workspace) ApplyPatch(ctx context.Context, instruction string, positions []int) (*patch.Result, error) {
	res, err := w.Patch.Submit(ctx, instruction, positions)
	if cgerr.IsBusy(err) || cgerr.HasCode(err, cgerr.CodePatchRequestInvalid) {
		return nil, err
	}

	w.mu.Lock()
	id := w.historyID
	w.mu.Unlock()
	if id != "" {
		if _, uerr := w.History.Update(context.WithoutCancel(ctx), id, w.Store.Snapshot(), w.Patch.Messages()); uerr != nil {
			slog.Warn("updating history item after patch failed", "history_id", id, "error", uerr)
		}
	}
	w.persist(ctx)
	return res, err
}

// Export sends the selected tests to the ticketing flow.
func (w *Workspace) Export(ctx context.Context, req export.Request) (*export.Report, error) {
	return w.Exporter.Export(ctx, req)
}

// LoadHistory restores records and conversation from a history item.
func (w *Workspace) LoadHistory(ctx context.Context, id string) (history.Item, error) {
	item, err := w.History.Get(ctx, id)
	if err != nil {
		return history.Item{}, err
	}

	w.Generator.Cancel()
	w.Store.Restore(item.Data)
	w.Patch.Restore(item.Messages)

	w.mu.Lock()
	w.historyID = item.ID
	w.input = protocol.GenerationInput{Features: item.Params.Features, Checklist: item.Params.Checklist}
	w.mu.Unlock()
	w.persist(ctx)
	return item, nil
}

// DeleteHistory removes a history item. The working set is kept even when
// it was loaded from that item.
func (w *Workspace) DeleteHistory(ctx context.Context, id string) error {
	if err := w.History.Delete(ctx, id); err != nil {
		return err
	}
	w.mu.Lock()
	if w.historyID == id {
		w.historyID = ""
	}
	w.mu.Unlock()
	w.persist(ctx)
	return nil
}

// HistoryID returns the history item the working set belongs to, or "".
func (w *Workspace) HistoryID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.historyID
}

func (w *Workspace) withAuxToken(in protocol.GenerationInput) protocol.GenerationInput {
	if in.AuxToken == "" {
		in.AuxToken = w.auxToken
	}
	return in
}

func (w *Workspace) persist(ctx context.Context) {
	w.mu.Lock()
	st := state{HistoryID: w.historyID, Input: w.input}
	w.mu.Unlock()
	st.Data = w.Store.Snapshot()
	st.Messages = w.Patch.Messages()

	raw, err := json.Marshal(st)
	if err == nil {
		err = w.kv.Set(context.WithoutCancel(ctx), stateKey, raw)
	}
	if err != nil {
		slog.Warn("persisting workspace state failed", "workspace_id", w.ID, "error", err)
	}
}

func (w *Workspace) resume(ctx context.Context) error {
	raw, err := w.kv.Get(ctx, stateKey)
	if cgerr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		slog.Warn("discarding unreadable workspace state", "workspace_id", w.ID, "error", err)
		return nil
	}
	w.Store.Restore(st.Data)
	w.Patch.Restore(st.Messages)
	w.historyID = st.HistoryID
	w.input = st.Input
	return nil
}
