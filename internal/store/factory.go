// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sort"
	"sync"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
)

// DefaultBackend is used when StorageConfig.Backend is empty.
const DefaultBackend = "file"

// Factory creates a Store for the given path.
type Factory func(path string) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

func init() {
	RegisterBackend("memory", func(string) (Store, error) { return NewMemoryStore(), nil })
}

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends returns the registered backend names, sorted.
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

// resolveBackend returns the effective backend name, defaulting to "file".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return DefaultBackend
	}
	return cfg.Backend
}

// Open creates the store selected by cfg.
func Open(cfg *StorageConfig) (Store, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, sigilerr.New(sigilerr.CodeStoreBackendUnsupported,
			"unsupported storage backend: "+backend,
			sigilerr.FieldBackend(backend),
		)
	}

	path := ""
	if cfg != nil {
		path = cfg.Path
	}
	return factory(path)
}
