// Package state persists the run history of foldersync in SQLite.
// The history is reporting only; the sync pipeline never reads it.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/foldersync/internal/domain"
)

// DBName is the database file name inside the history directory
const DBName = "history.db"

// Run status values
const (
	StatusSuccess  = "success"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
	StatusDeclined = "declined"
)

// Manager handles execution history
type Manager struct {
	db *sql.DB
}

// ExecutionRecord represents a single sync run
type ExecutionRecord struct {
	ID          int64     `json:"id" yaml:"id"`
	RunID       string    `json:"run_id" yaml:"run_id"`
	Source      string    `json:"source" yaml:"source"`
	Target      string    `json:"target" yaml:"target"`
	StartTime   time.Time `json:"start_time" yaml:"start_time"`
	EndTime     time.Time `json:"end_time" yaml:"end_time"`
	Status      string    `json:"status" yaml:"status"`
	Copied      int       `json:"copied" yaml:"copied"`
	Deleted     int       `json:"deleted" yaml:"deleted"`
	Created     int       `json:"created" yaml:"created"`
	BytesCopied int64     `json:"bytes_copied" yaml:"bytes_copied"`
	Failures    int       `json:"failures" yaml:"failures"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// RecordFromReport builds a record for a finished run.
// runErr is the error returned by the run, if any.
func RecordFromReport(report *domain.SyncReport, start time.Time, runErr error) ExecutionRecord {
	record := ExecutionRecord{
		RunID:     report.RunID,
		Source:    report.Source,
		Target:    report.Target,
		StartTime: start,
		EndTime:   start.Add(report.Elapsed),
		Status:    StatusSuccess,
	}
	if report.Applied != nil {
		record.Copied = report.Applied[domain.CopyFile]
		record.Deleted = report.Applied[domain.DeleteFile] + report.Applied[domain.DeleteFolder]
		record.Created = report.Applied[domain.CreateFolder]
	}
	record.BytesCopied = report.BytesCopied
	record.Failures = len(report.Failures)

	switch {
	case errors.Is(runErr, domain.ErrDeclined):
		record.Status = StatusDeclined
	case runErr != nil:
		record.Status = StatusFailed
		record.Error = runErr.Error()
	case !report.OK():
		record.Status = StatusPartial
		record.Error = report.Failures[0].Error()
	}
	return record
}

// NewManager opens (and creates) the history database in dataDir
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, DBName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection avoids "database is locked"
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}
	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		copied INTEGER DEFAULT 0,
		deleted INTEGER DEFAULT 0,
		created INTEGER DEFAULT 0,
		bytes_copied INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target_time ON runs(target, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := m.db.Exec(schema)
	return err
}

func validStatus(status string) bool {
	switch status {
	case StatusSuccess, StatusPartial, StatusFailed, StatusDeclined:
		return true
	}
	return false
}

// SaveExecution records a run
func (m *Manager) SaveExecution(record ExecutionRecord) error {
	if !validStatus(record.Status) {
		return fmt.Errorf("invalid status: %s", record.Status)
	}
	if record.RunID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	query := `
		INSERT INTO runs (run_id, source, target, start_time, end_time, status,
			copied, deleted, created, bytes_copied, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.Exec(query,
		record.RunID,
		record.Source,
		record.Target,
		record.StartTime,
		record.EndTime,
		record.Status,
		record.Copied,
		record.Deleted,
		record.Created,
		record.BytesCopied,
		record.Failures,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution record: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, run_id, source, target, start_time, end_time, status,
	copied, deleted, created, bytes_copied, failures, error FROM runs`

// History returns the most recent runs, newest first.
// An empty target returns runs for every target.
func (m *Manager) History(limit int, target string) ([]ExecutionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var (
		rows *sql.Rows
		err  error
	)
	if target == "" {
		rows, err = m.db.Query(selectColumns+` ORDER BY start_time DESC, id DESC LIMIT ?`, limit)
	} else {
		rows, err = m.db.Query(selectColumns+` WHERE target = ? ORDER BY start_time DESC, id DESC LIMIT ?`, target, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// LastSuccess returns the last successful run for target, or nil
func (m *Manager) LastSuccess(target string) (*ExecutionRecord, error) {
	row := m.db.QueryRow(selectColumns+` WHERE target = ? AND status = ? ORDER BY start_time DESC LIMIT 1`,
		target, StatusSuccess)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (ExecutionRecord, error) {
	var (
		record ExecutionRecord
		errMsg sql.NullString
	)
	err := s.Scan(
		&record.ID,
		&record.RunID,
		&record.Source,
		&record.Target,
		&record.StartTime,
		&record.EndTime,
		&record.Status,
		&record.Copied,
		&record.Deleted,
		&record.Created,
		&record.BytesCopied,
		&record.Failures,
		&errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return record, err
	}
	if err != nil {
		return record, fmt.Errorf("failed to scan record: %w", err)
	}
	record.Error = errMsg.String
	return record, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
