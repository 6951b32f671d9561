package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const defaultLimit = 100

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the history database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// A single writer keeps modernc/sqlite away from SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS deploy_history (
			id           TEXT PRIMARY KEY,
			job_id       TEXT NOT NULL,
			host_id      TEXT NOT NULL,
			action       TEXT NOT NULL,
			profile_id   TEXT,
			mode         TEXT NOT NULL,
			status       TEXT NOT NULL,
			port         TEXT,
			error        TEXT,
			attempt      INTEGER NOT NULL,
			elapsed_ms   INTEGER NOT NULL,
			completed_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_deploy_history_host
			ON deploy_history (host_id, completed_at);
		CREATE INDEX IF NOT EXISTS idx_deploy_history_completed
			ON deploy_history (completed_at);`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("migrate history schema: %w", err)
	}
	return nil
}

// Save inserts one record. A missing id is generated here.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	query := `
		INSERT INTO deploy_history (
			id, job_id, host_id, action, profile_id, mode,
			status, port, error, attempt, elapsed_ms, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.JobID, rec.HostID, rec.Action, rec.ProfileID, rec.Mode,
		rec.Status, rec.Port, rec.Error, rec.Attempt, rec.ElapsedMs, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `
		SELECT id, job_id, host_id, action, profile_id, mode,
			status, port, error, attempt, elapsed_ms, completed_at
		FROM deploy_history
		ORDER BY completed_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByHost returns the newest records for one host, most recent first.
func (s *SQLiteStore) ByHost(ctx context.Context, hostID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `
		SELECT id, job_id, host_id, action, profile_id, mode,
			status, port, error, attempt, elapsed_ms, completed_at
		FROM deploy_history
		WHERE host_id = ?
		ORDER BY completed_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, hostID, limit)
	if err != nil {
		return nil, fmt.Errorf("query host history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var profileID, port, errStr sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.HostID, &rec.Action, &profileID, &rec.Mode,
			&rec.Status, &port, &errStr, &rec.Attempt, &rec.ElapsedMs, &rec.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}

		rec.ProfileID = profileID.String
		rec.Port = port.String
		rec.Error = errStr.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}
