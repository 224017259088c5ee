package sim

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed log of what a simulated backend recorded.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

// StartCapture records a new capture file and returns its row id.
func (s *Store) StartCapture(ctx context.Context, experimentID, file string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (experiment_id, file_name, started_at) VALUES (?, ?, ?)`,
		experimentID, file, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert capture: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) StopCapture(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE captures SET stopped_at = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return fmt.Errorf("update capture: %w", err)
	}
	return nil
}

// OpenCompoundScan records a compound scan together with its first scan.
// captureID is zero when nothing is capturing yet.
func (s *Store) OpenCompoundScan(ctx context.Context, captureID int64, target, label, firstScan string, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	var capture any
	if captureID > 0 {
		capture = captureID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO compound_scans (capture_id, target, label, opened_at) VALUES (?, ?, ?, ?)`,
		capture, target, label, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert compound scan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scans (compound_scan_id, label, opened_at) VALUES (?, ?, ?)`,
		id, firstScan, at.UTC()); err != nil {
		return 0, fmt.Errorf("insert scan: %w", err)
	}
	return id, tx.Commit()
}

func (s *Store) AddScan(ctx context.Context, compoundID int64, label string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (compound_scan_id, label, opened_at) VALUES (?, ?, ?)`,
		compoundID, label, at.UTC()); err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// ScanLabels returns the labels of every scan in a compound scan, in order.
func (s *Store) ScanLabels(ctx context.Context, compoundID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label FROM scans WHERE compound_scan_id = ? ORDER BY id`, compoundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CaptureFiles lists the files recorded for an experiment.
func (s *Store) CaptureFiles(ctx context.Context, experimentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_name FROM captures WHERE experiment_id = ? ORDER BY id`, experimentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
