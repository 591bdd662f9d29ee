// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/modelroute/internal/store"
	sigilerr "github.com/sigil-dev/modelroute/pkg/errors"
	"github.com/sigil-dev/modelroute/pkg/health"
)

// Compile-time interface check.
var _ store.Store = (*SnapshotStore)(nil)

// SnapshotStore implements store.Store backed by SQLite. Every Save
// replaces the metrics table inside one transaction.
type SnapshotStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSnapshotStore opens (or creates) a SQLite database at dbPath and
// initialises the snapshot tables.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "opening sqlite db", sigilerr.FieldPath(dbPath))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "pinging sqlite db", sigilerr.FieldPath(dbPath))
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "migrating sqlite db", sigilerr.FieldPath(dbPath))
	}

	return &SnapshotStore{db: db, nowFunc: time.Now}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS snapshot_meta (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	saved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics (
	model_id      TEXT    NOT NULL,
	seq           INTEGER NOT NULL,
	timestamp     TEXT    NOT NULL,
	latency_ms    REAL    NOT NULL,
	success       INTEGER NOT NULL,
	tokens        INTEGER NOT NULL DEFAULT 0,
	cost          REAL    NOT NULL DEFAULT 0,
	feedback      INTEGER,
	hallucination INTEGER,
	PRIMARY KEY (model_id, seq)
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

func (s *SnapshotStore) Load(ctx context.Context) (health.Snapshot, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM snapshot_meta WHERE id = 1`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sigilerr.New(sigilerr.CodeSnapshotNotFound, "no snapshot saved")
	}
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "reading snapshot metadata")
	}

	const q = `SELECT model_id, timestamp, latency_ms, success, tokens, cost, feedback, hallucination
FROM metrics ORDER BY model_id, seq`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "querying metrics")
	}
	defer rows.Close()

	snap := health.Snapshot{}
	for rows.Next() {
		var (
			modelID  string
			ts       string
			m        health.ModelMetric
			success  int
			feedback sql.NullInt64
			halluc   sql.NullInt64
		)
		if err := rows.Scan(&modelID, &ts, &m.LatencyMs, &success, &m.Tokens, &m.Cost, &feedback, &halluc); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeSnapshotCorrupt, "scanning metric row")
		}

		m.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeSnapshotCorrupt,
				"parsing metric timestamp", sigilerr.FieldModel(modelID))
		}
		m.Success = success != 0
		if feedback.Valid {
			v := int(feedback.Int64)
			m.FeedbackScore = &v
		}
		if halluc.Valid {
			v := halluc.Int64 != 0
			m.Hallucination = &v
		}
		snap[modelID] = append(snap[modelID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "iterating metrics")
	}
	return snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap health.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure, "beginning snapshot transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM metrics`); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure, "clearing metrics")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO metrics
(model_id, seq, timestamp, latency_ms, success, tokens, cost, feedback, hallucination)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure, "preparing metric insert")
	}
	defer stmt.Close()

	for modelID, metrics := range snap {
		for seq, m := range metrics {
			if _, err := stmt.ExecContext(ctx,
				modelID,
				seq,
				m.Timestamp.UTC().Format(time.RFC3339Nano),
				m.LatencyMs,
				boolToInt(m.Success),
				m.Tokens,
				m.Cost,
				nullableInt(m.FeedbackScore),
				nullableBool(m.Hallucination),
			); err != nil {
				return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure,
					fmt.Sprintf("inserting metric %d", seq), sigilerr.FieldModel(modelID))
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (id, saved_at) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at`,
		s.nowFunc().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure, "updating snapshot metadata")
	}

	if err := tx.Commit(); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeSnapshotWriteFailure, "committing snapshot")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	return boolToInt(*v)
}
