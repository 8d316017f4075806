// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package workspace

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/casegen/casegen/internal/export"
	"github.com/casegen/casegen/internal/generation"
	"github.com/casegen/casegen/internal/history"
	"github.com/casegen/casegen/internal/patch"
	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/store"
	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// DefaultID is the workspace used when none is named.
const DefaultID = "default"

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Options are shared by every workspace a Manager opens.
type Options struct {
	Storage           store.Config
	Transport         transport.Transport
	HistoryLimit      int
	ExportProfiles    map[string]export.Profile
	ExportConcurrency int
	AuxToken          string
}

// Manager opens and caches workspaces under dataDir/workspaces/<id>.
type Manager struct {
	dataDir    string
	opts       Options
	workspaces map[string]*Workspace
	mu         sync.RWMutex
}

func NewManager(dataDir string, opts Options) *Manager {
	return &Manager{
		dataDir:    dataDir,
		opts:       opts,
		workspaces: make(map[string]*Workspace),
	}
}

// Open returns the cached workspace for id, creating its directory and KV on
// first access and resuming any persisted working set.
func (m *Manager) Open(ctx context.Context, id string) (*Workspace, error) {
	if !validID.MatchString(id) {
		return nil, cgerr.New(cgerr.CodeWorkspaceIDInvalid, "workspace id must be 1-64 letters, digits, '-' or '_'",
			cgerr.FieldWorkspaceID(id))
	}

	m.mu.RLock()
	if ws, ok := m.workspaces[id]; ok {
		m.mu.RUnlock()
		return ws, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.workspaces[id]; ok {
		return ws, nil
	}

	dir := filepath.Join(m.dataDir, "workspaces", id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, cgerr.Errorf(cgerr.CodeWorkspaceOpenFailure, "creating workspace directory %s: %w", dir, err)
	}

	kv, err := store.Open(m.opts.Storage, dir)
	if err != nil {
		return nil, cgerr.Wrapf(err, cgerr.CodeWorkspaceOpenFailure, "opening store for workspace %s", id)
	}

	ws := m.build(id, kv)
	if err := ws.resume(ctx); err != nil {
		_ = kv.Close()
		return nil, cgerr.Wrapf(err, cgerr.CodeWorkspaceOpenFailure, "resuming workspace %s", id)
	}

	m.workspaces[id] = ws
	return ws, nil
}

func (m *Manager) build(id string, kv store.KV) *Workspace {
	st := record.NewStore()
	hist := history.New(kv, m.opts.HistoryLimit)
	return &Workspace{
		ID:        id,
		Store:     st,
		Generator: generation.New(st, m.opts.Transport, hist),
		Patch:     patch.NewSession(st, m.opts.Transport),
		Exporter: export.New(st, m.opts.Transport,
			export.WithProfiles(m.opts.ExportProfiles),
			export.WithConcurrency(m.opts.ExportConcurrency)),
		History:  hist,
		kv:       kv,
		auxToken: m.opts.AuxToken,
	}
}

// IDs lists the open workspaces.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.workspaces))
	for id := range m.workspaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels in-flight generations and closes every workspace store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, ws := range m.workspaces {
		ws.Generator.Cancel()
		if err := ws.kv.Close(); err != nil {
			errs = append(errs, cgerr.Errorf(cgerr.CodeWorkspaceCloseFailure, "closing store for %s: %w", id, err))
		}
		delete(m.workspaces, id)
	}

	if len(errs) > 0 {
		return cgerr.Errorf(cgerr.CodeWorkspaceCloseFailure, "closing workspaces: %w", cgerr.Join(errs...))
	}
	return nil
}
