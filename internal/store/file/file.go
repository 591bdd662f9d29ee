// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package file stores the metric snapshot as a single JSON document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sigil-dev/modelroute/internal/store"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
)

// DefaultFileName is used when the configured path is empty.
const DefaultFileName = "model-health.json"

// formatVersion is bumped when the document layout changes.
const formatVersion = 1

func init() {
	store.RegisterBackend("file", func(path string) (store.Store, error) {
		return New(path)
	})
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// document is the on-disk layout.
type document struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Models  health.Snapshot `json:"models"`
}

// Store implements store.Store backed by one JSON file. Each save writes
// a sibling temp file and renames it over the target, so readers never
// observe a partially written snapshot.
type Store struct {
	mu      sync.Mutex
	path    string
	nowFunc func() time.Time
}

// New returns a Store writing to path. The parent directory is created on
// first save, not here.
func New(path string) (*Store, error) {
	if path == "" {
		path = DefaultFileName
	}
	return &Store{path: filepath.Clean(path), nowFunc: time.Now}, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(ctx context.Context) (health.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sigilerr.New(sigilerr.CodeSnapshotNotFound,
			"snapshot file does not exist", sigilerr.FieldPath(s.path))
	}
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeSnapshotReadFailure,
			"reading snapshot file", sigilerr.FieldPath(s.path))
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeSnapshotCorrupt,
			"decoding snapshot file", sigilerr.FieldPath(s.path))
	}
	if doc.Version != formatVersion {
		return nil, sigilerr.New(sigilerr.CodeSnapshotCorrupt,
			"unsupported snapshot version",
			sigilerr.FieldPath(s.path), sigilerr.Field("version", doc.Version))
	}
	if doc.Models == nil {
		doc.Models = health.Snapshot{}
	}
	return doc.Models, nil
}

func (s *Store) Save(ctx context.Context, snap health.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap == nil {
		snap = health.Snapshot{}
	}
	data, err := json.Marshal(document{
		Version: formatVersion,
		SavedAt: s.nowFunc().UTC(),
		Models:  snap,
	})
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
			"encoding snapshot", sigilerr.FieldPath(s.path))
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
			"creating snapshot directory", sigilerr.FieldPath(dir))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
			"creating temp snapshot", sigilerr.FieldPath(s.path))
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
			"writing temp snapshot", sigilerr.FieldPath(tmpName))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
			"syncing temp snapshot", sigilerr.FieldPath(tmpName))
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
			"closing temp snapshot", sigilerr.FieldPath(tmpName))
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
			"setting snapshot permissions", sigilerr.FieldPath(tmpName))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
			"replacing snapshot file", sigilerr.FieldPath(s.path))
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *Store) Close() error {
	return nil
}
