// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"

	"github.com/sigil-dev/modelroute/pkg/health"
)

// Store persists the profiler's metric snapshot. Implementations read and
// write the whole snapshot at once; there is no incremental update path.
//
// Load returns an error coded CodeSnapshotNotFound when nothing has been
// saved yet and CodeSnapshotCorrupt when stored data cannot be decoded.
// Callers decide whether either is fatal.
type Store interface {
	Load(ctx context.Context) (health.Snapshot, error)
	Save(ctx context.Context, snap health.Snapshot) error
	Close() error
}
