// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package history persists completed generations, newest first, under a
// single key of a store.KV.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casegen/casegen/internal/patch"
	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/store"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const (
	// Key is the KV key holding the JSON-encoded item list.
	Key = "history"
	// DefaultLimit caps the number of retained items.
	DefaultLimit = 50
)

// Params are the inputs that produced a generation.
type Params struct {
	Features       []string `json:"features" yaml:"features"`
	Checklist      string   `json:"checklist" yaml:"checklist"`
	SelectedChecks []string `json:"selected_checks,omitempty" yaml:"selected_checks,omitempty"`
}

// Item is one persisted generation.
type Item struct {
	ID          string                  `json:"id" yaml:"id"`
	CreatedAt   time.Time               `json:"created_at" yaml:"created_at"`
	TestsCount  int                     `json:"tests_count" yaml:"tests_count"`
	ChecksCount int                     `json:"checks_count" yaml:"checks_count"`
	Data        record.GenerationResult `json:"data" yaml:"data"`
	Params      Params                  `json:"params" yaml:"params"`
	Messages    []patch.Message         `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// History reads and writes the item list. Every mutation rewrites the whole
// list under one lock.
type History struct {
	kv    store.KV
	limit int
	now   func() time.Time

	mu sync.Mutex
}

// New creates a History on kv. A non-positive limit selects DefaultLimit.
func New(kv store.KV, limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{kv: kv, limit: limit, now: time.Now}
}

// SetNowFunc overrides the clock used for CreatedAt (for testing).
func (h *History) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = fn
}

// Save records a new generation at the head of the list and trims the tail.
func (h *History) Save(ctx context.Context, data record.GenerationResult, params Params, msgs []patch.Message) (Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	items, err := h.load(ctx)
	if err != nil {
		return Item{}, err
	}

	item := Item{
		ID:          uuid.NewString(),
		CreatedAt:   h.now().UTC(),
		TestsCount:  len(data.Tests),
		ChecksCount: len(data.Checks),
		Data:        data,
		Params:      params,
		Messages:    msgs,
	}

	items = append([]Item{item}, items...)
	if len(items) > h.limit {
		slog.Debug("trimming history", "dropped", len(items)-h.limit, "limit", h.limit)
		items = items[:h.limit]
	}

	if err := h.store(ctx, items); err != nil {
		return Item{}, err
	}
	return item, nil
}

// List returns all items, newest first.
func (h *History) List(ctx context.Context) ([]Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load(ctx)
}

func (h *History) Get(ctx context.Context, id string) (Item, error) {
	items, err := h.List(ctx)
	if err != nil {
		return Item{}, err
	}
	for _, it := range items {
		if it.ID == id {
			return it, nil
		}
	}
	return Item{}, notFound(id)
}

// Update replaces the data and conversation of an existing item, keeping its
// id, timestamp and position in the list.
func (h *History) Update(ctx context.Context, id string, data record.GenerationResult, msgs []patch.Message) (Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	items, err := h.load(ctx)
	if err != nil {
		return Item{}, err
	}
	for i := range items {
		if items[i].ID != id {
			continue
		}
		items[i].Data = data
		items[i].TestsCount = len(data.Tests)
		items[i].ChecksCount = len(data.Checks)
		items[i].Messages = msgs
		if err := h.store(ctx, items); err != nil {
			return Item{}, err
		}
		return items[i], nil
	}
	return Item{}, notFound(id)
}

func (h *History) Delete(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	items, err := h.load(ctx)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == id {
			return h.store(ctx, append(items[:i], items[i+1:]...))
		}
	}
	return notFound(id)
}

func (h *History) load(ctx context.Context) ([]Item, error) {
	raw, err := h.kv.Get(ctx, Key)
	if cgerr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, cgerr.Wrap(err, cgerr.CodeHistoryDecodeFailure, "decoding history")
	}
	return items, nil
}

func (h *History) store(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return cgerr.Wrap(err, cgerr.CodeHistoryDecodeFailure, "encoding history")
	}
	return h.kv.Set(ctx, Key, raw)
}

func notFound(id string) error {
	return cgerr.New(cgerr.CodeHistoryItemNotFound, "history item not found", cgerr.Field("id", id))
}
