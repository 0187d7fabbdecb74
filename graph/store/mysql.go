package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// Designed for production deployments where several executor processes
// share threads: the revision-guarded UPDATE makes concurrent Invoke/Resume
// calls on one thread safe across processes.
type MySQLStore struct {
	q      sqlCheckpoints
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects using a go-sql-driver DSN and migrates the schema.
//
// Example DSN:
//
//	user:password@tcp(localhost:3306)/threads
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Read the DSN from the
//	environment or the config file instead.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore{db: db}
	m.q = sqlCheckpoints{db: db, insertFirst: m.insertFirst}

	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	checkpoints := `
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id VARCHAR(255) NOT NULL PRIMARY KEY,
			seq BIGINT NOT NULL,
			wave_count INT NOT NULL,
			state JSON NOT NULL,
			frontier JSON NOT NULL,
			last_wave JSON NOT NULL,
			updated_at BIGINT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, checkpoints); err != nil {
		return fmt.Errorf("failed to create thread_checkpoints table: %w", err)
	}

	history := `
		CREATE TABLE IF NOT EXISTS checkpoint_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			thread_id VARCHAR(255) NOT NULL,
			seq BIGINT NOT NULL,
			wave_count INT NOT NULL,
			frontier JSON NOT NULL,
			last_wave JSON NOT NULL,
			state JSON NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE KEY unique_thread_seq (thread_id, seq)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, history); err != nil {
		return fmt.Errorf("failed to create checkpoint_history table: %w", err)
	}
	return nil
}

func (m *MySQLStore) insertFirst(ctx context.Context, tx *sql.Tx, cp Checkpoint, row checkpointRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO thread_checkpoints (thread_id, seq, wave_count, state, frontier, last_wave, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cp.ThreadID, cp.Seq, cp.WaveCount, row.state, row.frontier, row.lastWave, row.updatedAt)
	if isDuplicateEntry(err) {
		return fmt.Errorf("thread %s already has a checkpoint: %w", cp.ThreadID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func (m *MySQLStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Load implements Store.
func (m *MySQLStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	if err := m.checkOpen(); err != nil {
		return Checkpoint{}, err
	}
	return m.q.load(ctx, threadID)
}

// Save implements Store.
func (m *MySQLStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.q.save(ctx, cp)
}

// Delete implements Store.
func (m *MySQLStore) Delete(ctx context.Context, threadID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.q.delete(ctx, threadID)
}

// History returns every saved revision of a thread, oldest first.
func (m *MySQLStore) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return m.q.history(ctx, threadID)
}

// Close closes the connection pool. Calling Close twice is a no-op.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Stats returns connection pool statistics for monitoring.
func (m *MySQLStore) Stats() sql.DBStats {
	return m.db.Stats()
}
