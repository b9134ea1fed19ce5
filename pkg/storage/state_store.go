package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dougsko/ftxcat/pkg/controller"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/protocol"
)

// StateStore persists polled radio state and an audit of controller
// operations in SQLite
type StateStore struct {
	db           *sql.DB
	dbPath       string
	maxSnapshots int
}

// NewStateStore creates a new state store with SQLite backend
func NewStateStore(dbPath string, maxSnapshots int) (*StateStore, error) {
	store := &StateStore{
		dbPath:       dbPath,
		maxSnapshots: maxSnapshots,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (s *StateStore) initialize() error {
	if s.dbPath == "" {
		s.dbPath = "./ftxd.db"
	}

	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := s.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if err := s.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	logging.Info("storage", "State store initialized", map[string]interface{}{
		"path":          s.dbPath,
		"max_snapshots": s.maxSnapshots,
	})
	return nil
}

// createTables creates the database schema
func (s *StateStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		frequency INTEGER NOT NULL,
		mode TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		channel_mode TEXT NOT NULL DEFAULT '',
		clarifier_direction TEXT NOT NULL DEFAULT '+',
		clarifier_offset INTEGER NOT NULL DEFAULT 0,
		rx_clarifier BOOLEAN NOT NULL DEFAULT FALSE,
		tx_clarifier BOOLEAN NOT NULL DEFAULT FALSE,
		power_unit TEXT NOT NULL,
		watts INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		op_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		name TEXT NOT NULL,
		params TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS store_stats (
		id INTEGER PRIMARY KEY,
		total_snapshots INTEGER NOT NULL DEFAULT 0,
		total_operations INTEGER NOT NULL DEFAULT 0,
		failed_operations INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME
	);

	INSERT OR IGNORE INTO store_stats (id) VALUES (1);

	CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_operations_timestamp ON operations(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_operations_name ON operations(name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StoreSnapshot records a radio state read at ts
func (s *StateStore) StoreSnapshot(state controller.RadioState, ts time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO snapshots (
			timestamp, frequency, mode, channel, channel_mode,
			clarifier_direction, clarifier_offset, rx_clarifier, tx_clarifier,
			power_unit, watts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ts.UTC(), state.Frequency, string(state.Mode), state.Channel, string(state.ChannelMode),
		string(state.ClarifierDirection), state.ClarifierOffset, state.RxClarifier, state.TxClarifier,
		string(state.PowerUnit), state.Watts,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot ID: %w", err)
	}

	if _, err := tx.Exec("UPDATE store_stats SET total_snapshots = total_snapshots + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to update stats: %w", err)
	}

	if err := s.cleanupOldSnapshots(tx); err != nil {
		logging.Warnf("storage", "failed to cleanup old snapshots: %v", err)
	}

	return id, tx.Commit()
}

// StoreOperation records one controller call in the audit log
func (s *StateStore) StoreOperation(op protocol.Operation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO operations (op_id, timestamp, name, params, success, error_kind, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, op.OpID, op.Timestamp.UTC(), op.Name, op.Params, op.Success, op.ErrorKind, op.Error, op.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE store_stats SET
			total_operations = total_operations + 1,
			failed_operations = CASE WHEN ? THEN failed_operations ELSE failed_operations + 1 END
		WHERE id = 1
	`, op.Success)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}

	if err := s.cleanupOldOperations(tx); err != nil {
		logging.Warnf("storage", "failed to cleanup old operations: %v", err)
	}

	return tx.Commit()
}

// CleanupOldSnapshots removes snapshots beyond the maximum limit
func (s *StateStore) CleanupOldSnapshots() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.cleanupOldSnapshots(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *StateStore) cleanupOldSnapshots(tx *sql.Tx) error {
	return s.prune(tx, "snapshots")
}

func (s *StateStore) cleanupOldOperations(tx *sql.Tx) error {
	return s.prune(tx, "operations")
}

// prune keeps the newest maxSnapshots rows of table
func (s *StateStore) prune(tx *sql.Tx, table string) error {
	if s.maxSnapshots <= 0 {
		return nil // No limit
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		return err
	}
	if count <= s.maxSnapshots {
		return nil
	}

	_, err := tx.Exec(`
		DELETE FROM `+table+`
		WHERE id IN (
			SELECT id FROM `+table+`
			ORDER BY id ASC
			LIMIT ?
		)
	`, count-s.maxSnapshots)
	if err != nil {
		return err
	}

	_, err = tx.Exec("UPDATE store_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// Close closes the database connection
func (s *StateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
