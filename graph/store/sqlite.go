package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It stores thread checkpoints in a single-file database, using the pure-Go
// modernc.org/sqlite driver. Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments that must survive restarts
//   - Local threads paused for human input over long periods
//
// Schema:
//   - thread_checkpoints: latest checkpoint per thread, guarded by revision
//   - checkpoint_history: every saved revision, for inspection
//
// WAL mode is enabled so snapshots can be read while a wave is being saved.
type SQLiteStore struct {
	q      sqlCheckpoints
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// schema. Use ":memory:" for a throwaway database.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./threads.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	s.q = sqlCheckpoints{db: db, insertFirst: s.insertFirst}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	checkpoints := `
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			wave_count INTEGER NOT NULL,
			state TEXT NOT NULL,
			frontier TEXT NOT NULL,
			last_wave TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpoints); err != nil {
		return fmt.Errorf("failed to create thread_checkpoints table: %w", err)
	}

	history := `
		CREATE TABLE IF NOT EXISTS checkpoint_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			wave_count INTEGER NOT NULL,
			frontier TEXT NOT NULL,
			last_wave TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(thread_id, seq)
		)
	`
	if _, err := s.db.ExecContext(ctx, history); err != nil {
		return fmt.Errorf("failed to create checkpoint_history table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insertFirst(ctx context.Context, tx *sql.Tx, cp Checkpoint, row checkpointRow) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO thread_checkpoints (thread_id, seq, wave_count, state, frontier, last_wave, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO NOTHING
	`, cp.ThreadID, cp.Seq, cp.WaveCount, row.state, row.frontier, row.lastWave, row.updatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("thread %s already has a checkpoint: %w", cp.ThreadID, ErrConflict)
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	if err := s.checkOpen(); err != nil {
		return Checkpoint{}, err
	}
	return s.q.load(ctx, threadID)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.q.save(ctx, cp)
}

// Delete implements Store. The thread's history is removed with it.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.q.delete(ctx, threadID)
}

// History returns every saved revision of a thread, oldest first.
func (s *SQLiteStore) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.q.history(ctx, threadID)
}

// Close closes the database connection. Calling Close twice is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
