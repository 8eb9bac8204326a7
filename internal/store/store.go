// Package store persists scan results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/gridscan/pkg/grid"
)

// ErrUnknownScan is returned for scan ids that were never begun.
var ErrUnknownScan = errors.New("unknown scan")

const schema = `
	CREATE TABLE IF NOT EXISTS scans (
		scan_id TEXT PRIMARY KEY,
		config TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		cells INTEGER NOT NULL DEFAULT 0,
		leaves INTEGER NOT NULL DEFAULT 0,
		records INTEGER NOT NULL DEFAULT 0,
		aborted INTEGER NOT NULL DEFAULT 0,
		capped INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS leaves (
		leaf_id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		bbox TEXT NOT NULL,
		depth INTEGER NOT NULL,
		status TEXT NOT NULL,
		pages INTEGER NOT NULL,
		total_pages INTEGER NOT NULL,
		record_count INTEGER NOT NULL,
		last_url TEXT,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(scan_id) REFERENCES scans(scan_id)
	);
	CREATE TABLE IF NOT EXISTS records (
		leaf_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY(leaf_id, position),
		FOREIGN KEY(leaf_id) REFERENCES leaves(leaf_id)
	);
	CREATE INDEX IF NOT EXISTS leaves_scan ON leaves(scan_id);
`

// Scan status values stored in scans.status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// Store is a SQLite-backed result sink.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer at a time; this also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginScan records a new scan run and returns its id.
func (s *Store) BeginScan(ctx context.Context, cfg grid.Config) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO scans (scan_id, config, status, started_at) VALUES (?, ?, ?, ?)",
		id, string(raw), StatusRunning, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert scan: %w", err)
	}
	return id, nil
}

// SaveLeaf stores one leaf and its records in a single transaction.
func (s *Store) SaveLeaf(ctx context.Context, scanID string, leaf grid.Leaf) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var errText sql.NullString
	if leaf.Outcome.Err != nil {
		errText = sql.NullString{String: leaf.Outcome.Err.Error(), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO leaves (scan_id, bbox, depth, status, pages, total_pages, record_count, last_url, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scanID,
		leaf.Cell.BBox.QueryString(),
		leaf.Cell.Depth,
		string(leaf.Outcome.Status),
		leaf.Outcome.Pages,
		leaf.Outcome.TotalPages,
		leaf.Outcome.Count(),
		leaf.Outcome.LastURL,
		errText,
	)
	if err != nil {
		return fmt.Errorf("insert leaf: %w", err)
	}
	leafID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("leaf id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO records (leaf_id, position, body) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare records: %w", err)
	}
	defer stmt.Close()

	for i, r := range leaf.Outcome.Records {
		if _, err := stmt.ExecContext(ctx, leafID, i, string(r)); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Sink returns a grid sink saving every leaf under scanID.
func (s *Store) Sink(scanID string) grid.Sink {
	return func(ctx context.Context, leaf grid.Leaf) error {
		return s.SaveLeaf(ctx, scanID, leaf)
	}
}

// FinishScan stores the summary and final status of a scan.
func (s *Store) FinishScan(ctx context.Context, scanID string, summary grid.Summary, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scans
		SET status = ?, cells = ?, leaves = ?, records = ?, aborted = ?, capped = ?, finished_at = ?
		WHERE scan_id = ?`,
		status, summary.Cells, summary.Leaves, summary.Records, summary.Aborted, summary.Capped,
		time.Now().UTC(), scanID)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownScan, scanID)
	}
	return nil
}

// ScanRow is a stored scan.
type ScanRow struct {
	ID      string
	Status  string
	Config  grid.Config
	Summary grid.Summary
}

// GetScan loads a stored scan.
func (s *Store) GetScan(ctx context.Context, scanID string) (ScanRow, error) {
	row := ScanRow{ID: scanID}
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT config, status, cells, leaves, records, aborted, capped
		FROM scans WHERE scan_id = ?`, scanID).
		Scan(&raw, &row.Status, &row.Summary.Cells, &row.Summary.Leaves,
			&row.Summary.Records, &row.Summary.Aborted, &row.Summary.Capped)
	if errors.Is(err, sql.ErrNoRows) {
		return ScanRow{}, fmt.Errorf("%w: %s", ErrUnknownScan, scanID)
	}
	if err != nil {
		return ScanRow{}, fmt.Errorf("query scan: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &row.Config); err != nil {
		return ScanRow{}, fmt.Errorf("decode config: %w", err)
	}
	return row, nil
}

// LeafRow is a stored leaf without its records.
type LeafRow struct {
	ID          int64
	BBox        string
	Depth       int
	Status      string
	Pages       int
	TotalPages  int
	RecordCount int
	LastURL     string
	Error       string
}

// Leaves returns the leaves of a scan in insertion order.
func (s *Store) Leaves(ctx context.Context, scanID string) ([]LeafRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT leaf_id, bbox, depth, status, pages, total_pages, record_count,
			COALESCE(last_url, ''), COALESCE(error, '')
		FROM leaves WHERE scan_id = ? ORDER BY leaf_id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query leaves: %w", err)
	}
	defer rows.Close()

	var out []LeafRow
	for rows.Next() {
		var l LeafRow
		if err := rows.Scan(&l.ID, &l.BBox, &l.Depth, &l.Status, &l.Pages, &l.TotalPages,
			&l.RecordCount, &l.LastURL, &l.Error); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Records returns the raw record bodies of one leaf in the order they were fetched.
func (s *Store) Records(ctx context.Context, leafID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM records WHERE leaf_id = ? ORDER BY position", leafID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, body)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ScanIDs lists stored scans, oldest first.
func (s *Store) ScanIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT scan_id FROM scans ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
