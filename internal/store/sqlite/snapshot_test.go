// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/sigil-dev/modelroute/internal/store"
	"github.com/sigil-dev/modelroute/internal/store/sqlite"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_LoadBeforeSave(t *testing.T) {
	ss, err := sqlite.NewSnapshotStore(testDBPath(t, "health"))
	require.NoError(t, err)
	defer ss.Close()

	_, err = ss.Load(context.Background())
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSnapshotNotFound))
}

func TestSnapshotStore_RoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	ss, err := sqlite.NewSnapshotStore(testDBPath(t, "health"))
	require.NoError(t, err)
	defer ss.Close()

	score := 2
	flag := false
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	want := health.Snapshot{
		"gpt-4.1": {
			{Timestamp: base, LatencyMs: 250, Success: true, Tokens: 100, Cost: 0.01},
			{Timestamp: base.Add(time.Minute), LatencyMs: 50, Success: false},
			{Timestamp: base.Add(2 * time.Minute), LatencyMs: 75.5, Success: true, FeedbackScore: &score, Hallucination: &flag},
		},
		"claude-haiku": {
			{Timestamp: base, LatencyMs: 10, Success: true},
		},
	}
	require.NoError(t, ss.Save(ctx, want))

	got, err := ss.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got["gpt-4.1"], 3)
	for i, m := range got["gpt-4.1"] {
		assert.True(t, want["gpt-4.1"][i].Timestamp.Equal(m.Timestamp), "metric %d out of order", i)
		assert.Equal(t, want["gpt-4.1"][i].LatencyMs, m.LatencyMs)
		assert.Equal(t, want["gpt-4.1"][i].Success, m.Success)
	}
	require.NotNil(t, got["gpt-4.1"][2].FeedbackScore)
	assert.Equal(t, 2, *got["gpt-4.1"][2].FeedbackScore)
	require.NotNil(t, got["gpt-4.1"][2].Hallucination)
	assert.False(t, *got["gpt-4.1"][2].Hallucination)
	assert.Nil(t, got["gpt-4.1"][0].FeedbackScore)
	assert.Len(t, got["claude-haiku"], 1)
}

func TestSnapshotStore_SaveReplacesPreviousState(t *testing.T) {
	ctx := context.Background()
	ss, err := sqlite.NewSnapshotStore(testDBPath(t, "health"))
	require.NoError(t, err)
	defer ss.Close()

	require.NoError(t, ss.Save(ctx, health.Snapshot{
		"a": {{LatencyMs: 1, Success: true}, {LatencyMs: 2, Success: true}},
		"b": {{LatencyMs: 3, Success: false}},
	}))
	require.NoError(t, ss.Save(ctx, health.Snapshot{
		"a": {{LatencyMs: 9, Success: true}},
	}))

	got, err := ss.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.Len(t, got["a"], 1)
	assert.Equal(t, 9.0, got["a"][0].LatencyMs)
}

func TestSnapshotStore_EmptySnapshotIsFound(t *testing.T) {
	ctx := context.Background()
	ss, err := sqlite.NewSnapshotStore(testDBPath(t, "health"))
	require.NoError(t, err)
	defer ss.Close()

	require.NoError(t, ss.Save(ctx, health.Snapshot{}))
	got, err := ss.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnapshotStore_CorruptTimestamp(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "health")
	ss, err := sqlite.NewSnapshotStore(path)
	require.NoError(t, err)
	defer ss.Close()

	require.NoError(t, ss.Save(ctx, health.Snapshot{"a": {{Timestamp: time.Now(), LatencyMs: 1, Success: true}}}))

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE metrics SET timestamp = 'not-a-time'`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = ss.Load(ctx)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSnapshotCorrupt))
}

func TestSnapshotStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "health")

	first, err := sqlite.NewSnapshotStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, health.Snapshot{"a": {{Timestamp: time.Now(), LatencyMs: 42, Success: true}}}))
	require.NoError(t, first.Close())

	second, err := store.Open(&store.StorageConfig{Backend: "sqlite", Path: path})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got["a"], 1)
	assert.Equal(t, 42.0, got["a"][0].LatencyMs)
}
