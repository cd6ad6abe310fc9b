package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	"PRAGMA journal_mode=WAL",
	`CREATE TABLE IF NOT EXISTS run_records (
	run_id      TEXT    NOT NULL,
	node_id     INTEGER NOT NULL,
	seq         INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	body        BLOB    NOT NULL,
	PRIMARY KEY (run_id, node_id)
)`,
	`CREATE INDEX IF NOT EXISTS run_records_by_seq ON run_records (run_id, seq)`,
}

// seq is one more than the highest sequence of the run, so an overwrite
// moves the record to the end of the run.
const sqliteUpsert = `
INSERT INTO run_records (run_id, node_id, seq, recorded_at, body)
VALUES (?1, ?2, COALESCE((SELECT MAX(seq) FROM run_records WHERE run_id = ?1), 0) + 1, ?3, ?4)
ON CONFLICT (run_id, node_id) DO UPDATE SET
	seq         = (SELECT MAX(seq) FROM run_records WHERE run_id = ?1) + 1,
	recorded_at = excluded.recorded_at,
	body        = excluded.body`

// SQLiteStore keeps records in a SQLite file. Writes are serialized in
// process; use it for the CLI and single-node deployments.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens path, creating the schema when needed. ":memory:"
// gives a private database that lives until Close.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if path == ":memory:" {
		// one connection, or each would get its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare audit db: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// read and write run fn under the store lock, failing once the store is
// closed.
func (s *SQLiteStore) read(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return fn()
}

func (s *SQLiteStore) write(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return fn()
}

func (s *SQLiteStore) Save(ctx context.Context, runID string, nodeID int64, data []byte) error {
	return s.write(func() error {
		if _, err := s.db.ExecContext(ctx, sqliteUpsert, runID, nodeID, time.Now().UnixNano(), data); err != nil {
			return fmt.Errorf("save record %s/%d: %w", runID, nodeID, err)
		}
		return nil
	})
}

func (s *SQLiteStore) Load(ctx context.Context, runID string, nodeID int64) ([]byte, error) {
	var body []byte
	err := s.read(func() error {
		err := s.db.QueryRowContext(ctx,
			`SELECT body FROM run_records WHERE run_id = ? AND node_id = ?`, runID, nodeID).Scan(&body)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrNotFound
		case err != nil:
			return fmt.Errorf("load record %s/%d: %w", runID, nodeID, err)
		}
		return nil
	})
	return body, err
}

func (s *SQLiteStore) List(ctx context.Context, runID string) ([]Info, error) {
	infos := []Info{}
	err := s.read(func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT node_id, seq, recorded_at, LENGTH(body) FROM run_records WHERE run_id = ? ORDER BY seq`, runID)
		if err != nil {
			return fmt.Errorf("list run %s: %w", runID, err)
		}
		defer rows.Close()
		for rows.Next() {
			info := Info{RunID: runID}
			var nanos int64
			if err := rows.Scan(&info.NodeID, &info.Sequence, &nanos, &info.Size); err != nil {
				return fmt.Errorf("list run %s: %w", runID, err)
			}
			info.Timestamp = time.Unix(0, nanos).UTC()
			infos = append(infos, info)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, runID string, nodeID int64) error {
	return s.write(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM run_records WHERE run_id = ? AND node_id = ?`, runID, nodeID)
		return err
	})
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	return s.write(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM run_records WHERE run_id = ?`, runID)
		return err
	})
}

// Close is idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
