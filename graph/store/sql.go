package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// checkpointRow is the column form of a Checkpoint shared by the SQL stores.
type checkpointRow struct {
	state     string
	frontier  string
	lastWave  string
	updatedAt int64
}

func encodeCheckpoint(cp Checkpoint) (checkpointRow, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return checkpointRow{}, fmt.Errorf("failed to marshal state: %w", err)
	}
	frontier, err := json.Marshal(nonNil(cp.Frontier))
	if err != nil {
		return checkpointRow{}, fmt.Errorf("failed to marshal frontier: %w", err)
	}
	lastWave, err := json.Marshal(nonNil(cp.LastWave))
	if err != nil {
		return checkpointRow{}, fmt.Errorf("failed to marshal last wave: %w", err)
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return checkpointRow{
		state:     string(state),
		frontier:  string(frontier),
		lastWave:  string(lastWave),
		updatedAt: updated.UnixNano(),
	}, nil
}

func decodeCheckpoint(cp *Checkpoint, row checkpointRow) error {
	if err := json.Unmarshal([]byte(row.state), &cp.State); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(row.frontier), &cp.Frontier); err != nil {
		return fmt.Errorf("failed to unmarshal frontier: %w", err)
	}
	if err := json.Unmarshal([]byte(row.lastWave), &cp.LastWave); err != nil {
		return fmt.Errorf("failed to unmarshal last wave: %w", err)
	}
	cp.UpdatedAt = time.Unix(0, row.updatedAt)
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// sqlCheckpoints implements the statements common to every SQL backend.
// The dialects differ only in table DDL and in how a first save detects an
// existing row.
type sqlCheckpoints struct {
	db *sql.DB

	// insertFirst inserts a Seq 1 row and reports ErrConflict if the thread
	// already exists.
	insertFirst func(ctx context.Context, tx *sql.Tx, cp Checkpoint, row checkpointRow) error
}

func (q *sqlCheckpoints) load(ctx context.Context, threadID string) (Checkpoint, error) {
	query := `
		SELECT seq, wave_count, state, frontier, last_wave, updated_at
		FROM thread_checkpoints
		WHERE thread_id = ?
	`
	cp := Checkpoint{ThreadID: threadID}
	var row checkpointRow
	err := q.db.QueryRowContext(ctx, query, threadID).Scan(
		&cp.Seq, &cp.WaveCount, &row.state, &row.frontier, &row.lastWave, &row.updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := decodeCheckpoint(&cp, row); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// save writes the checkpoint and its history row in one transaction. The
// UPDATE is guarded by the previous revision, so of two concurrent writers
// carrying the same Seq exactly one succeeds.
func (q *sqlCheckpoints) save(ctx context.Context, cp Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	row, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if cp.Seq == 1 {
		if err := q.insertFirst(ctx, tx, cp, row); err != nil {
			return err
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE thread_checkpoints
			SET seq = ?, wave_count = ?, state = ?, frontier = ?, last_wave = ?, updated_at = ?
			WHERE thread_id = ? AND seq = ?
		`, cp.Seq, cp.WaveCount, row.state, row.frontier, row.lastWave, row.updatedAt, cp.ThreadID, cp.Seq-1)
		if err != nil {
			return fmt.Errorf("failed to update checkpoint: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("thread %s: revision %d is stale: %w", cp.ThreadID, cp.Seq-1, ErrConflict)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoint_history (thread_id, seq, wave_count, frontier, last_wave, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cp.ThreadID, cp.Seq, cp.WaveCount, row.frontier, row.lastWave, row.state, row.updatedAt); err != nil {
		return fmt.Errorf("failed to record checkpoint history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func (q *sqlCheckpoints) delete(ctx context.Context, threadID string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM thread_checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_history WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint history: %w", err)
	}
	return tx.Commit()
}

// history returns every saved revision of a thread, oldest first.
func (q *sqlCheckpoints) history(ctx context.Context, threadID string) ([]Checkpoint, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT seq, wave_count, state, frontier, last_wave, created_at
		FROM checkpoint_history
		WHERE thread_id = ?
		ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint history: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp := Checkpoint{ThreadID: threadID}
		var row checkpointRow
		if err := rows.Scan(&cp.Seq, &cp.WaveCount, &row.state, &row.frontier, &row.lastWave, &row.updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint history: %w", err)
		}
		if err := decodeCheckpoint(&cp, row); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoint history: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
