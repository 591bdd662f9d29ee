// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/modelroute/internal/store"
	_ "github.com/sigil-dev/modelroute/internal/store/file"   // register file backend
	_ "github.com/sigil-dev/modelroute/internal/store/sqlite" // register sqlite backend
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_RegisteredBackends(t *testing.T) {
	assert.Equal(t, []string{"file", "memory", "sqlite"}, store.Backends())

	for _, backend := range []string{"file", "sqlite", "memory"} {
		t.Run(backend, func(t *testing.T) {
			cfg := &store.StorageConfig{
				Backend: backend,
				Path:    filepath.Join(t.TempDir(), "health"),
			}
			s, err := store.Open(cfg)
			require.NoError(t, err)
			defer s.Close()

			ctx := context.Background()
			_, err = s.Load(ctx)
			assert.True(t, sigilerr.IsNotFound(err), "fresh %s store should report not found", backend)

			snap := health.Snapshot{"m": {{LatencyMs: 5, Success: true}}}
			require.NoError(t, s.Save(ctx, snap))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got["m"], 1)
			assert.Equal(t, 5.0, got["m"][0].LatencyMs)
		})
	}
}

func TestOpen_DefaultsToFile(t *testing.T) {
	s, err := store.Open(&store.StorageConfig{Path: filepath.Join(t.TempDir(), "h.json")})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), health.Snapshot{}))
	assert.FileExists(t, s.(interface{ Path() string }).Path())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := store.Open(&store.StorageConfig{Backend: "unknown"})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStoreBackendUnsupported))
	assert.Contains(t, err.Error(), "unknown")
	assert.Equal(t, "unknown", sigilerr.FieldsOf(err)["backend"])
}
