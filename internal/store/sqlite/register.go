// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"github.com/sigil-dev/modelroute/internal/store"
)

// DefaultFileName is used when the configured path is empty.
const DefaultFileName = "model-health.db"

func init() {
	store.RegisterBackend("sqlite", newStore)
}

func newStore(path string) (store.Store, error) {
	if path == "" {
		path = DefaultFileName
	}
	return NewSnapshotStore(path)
}
