// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"sync"

	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the snapshot in process memory. Snapshots are deep
// copied on the way in and out so callers cannot alias stored state.
type MemoryStore struct {
	mu     sync.Mutex
	snap   health.Snapshot
	saves  int
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (health.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, sigilerr.New(sigilerr.CodeStoreClosed, "memory store is closed")
	}
	if s.snap == nil {
		return nil, sigilerr.New(sigilerr.CodeSnapshotNotFound, "no snapshot saved")
	}
	return s.snap.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, snap health.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sigilerr.New(sigilerr.CodeStoreClosed, "memory store is closed")
	}
	s.snap = snap.Clone()
	s.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
