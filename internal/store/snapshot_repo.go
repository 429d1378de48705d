package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// SnapshotRepo handles persistence for PhaseSnapshot records.
type SnapshotRepo struct{}

// Checksum returns the hex SHA-256 of a snapshot payload.
func Checksum(snapshotJSON string) string {
	sum := sha256.Sum256([]byte(snapshotJSON))
	return hex.EncodeToString(sum[:])
}

// SaveTx inserts a phase snapshot within an existing transaction.
func (r *SnapshotRepo) SaveTx(ctx context.Context, tx *sql.Tx, snap domain.PhaseSnapshot) error {
	const q = `INSERT INTO phase_snapshots (run_id, phase, iteration, snapshot_json, checksum, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		snap.RunID,
		string(snap.Phase),
		snap.Iteration,
		snap.SnapshotJSON,
		snap.Checksum,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for a run and phase, verifying
// its checksum when one was recorded. Returns nil if no snapshot exists and
// ErrSnapshotCorrupt if the stored payload no longer matches its checksum.
func (r *SnapshotRepo) GetLatest(ctx context.Context, db *sql.DB, runID string, phase domain.Phase) (*domain.PhaseSnapshot, error) {
	const q = `SELECT id, run_id, phase, iteration, snapshot_json, checksum, created_at
FROM phase_snapshots
WHERE run_id = ? AND phase = ?
ORDER BY id DESC
LIMIT 1`

	row := db.QueryRowContext(ctx, q, runID, string(phase))

	var s domain.PhaseSnapshot
	var p string
	err := row.Scan(&s.ID, &s.RunID, &p, &s.Iteration, &s.SnapshotJSON, &s.Checksum, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	s.Phase = domain.Phase(p)

	if s.Checksum != "" && Checksum(s.SnapshotJSON) != s.Checksum {
		return nil, domain.ErrSnapshotCorrupt
	}
	return &s, nil
}
