// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package store defines the key/value persistence collaborator and the
// registry of named backends that implement it.
package store

import (
	"context"
	"sort"
	"sync"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

// KV is a small byte-oriented key/value store. Get returns an error coded
// store.kv.not_found when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config controls which backend Open uses.
type Config struct {
	Backend string // "sqlite" or "memory"; empty selects sqlite.
}

// Factory opens a KV rooted at dir. Backends that keep nothing on disk may
// ignore dir.
type Factory func(dir string) (KV, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a named backend. Backend packages call this
// from init().
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveBackend(cfg Config) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// Open creates the KV for one workspace directory.
func Open(cfg Config, dir string) (KV, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, cgerr.New(cgerr.CodeStoreBackendUnsupported, "unsupported storage backend",
			cgerr.Field("backend", backend), cgerr.Field("available", Backends()))
	}

	return factory(dir)
}

// NotFound builds the error returned by Get for a missing key.
func NotFound(key string) error {
	return cgerr.New(cgerr.CodeStoreKVNotFound, "key not found", cgerr.Field("key", key))
}
