// Package store persists analysis reports and their uploads in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/cozy-crashes/crashlens/internal/report"
	"github.com/cozy-crashes/crashlens/internal/upload"
)

// ErrNotFound is returned when a report or upload does not exist.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	DB *sql.DB
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Summary is a report row without its logs.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	Logs      int       `json:"logs"`
	Skipped   int       `json:"skipped"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveReport stores r. Saving the same ID twice replaces the logs.
func (s *Store) SaveReport(ctx context.Context, r report.Report) error {
	payload, err := json.Marshal(r.Logs)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO reports (id, source, skipped, logs, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  source = EXCLUDED.source,
  skipped = EXCLUDED.skipped,
  logs = EXCLUDED.logs;
`, r.ID, r.Source, r.Skipped, payload, r.CreatedAt)
	return err
}

func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (report.Report, error) {
	var (
		r       report.Report
		payload []byte
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, source, skipped, logs, created_at FROM reports WHERE id=$1`, id,
	).Scan(&r.ID, &r.Source, &r.Skipped, &payload, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, ErrNotFound
	}
	if err != nil {
		return report.Report{}, err
	}
	if err := json.Unmarshal(payload, &r.Logs); err != nil {
		return report.Report{}, fmt.Errorf("decode logs of report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns the newest reports first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, source, jsonb_array_length(logs), skipped, created_at
FROM reports
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.Source, &sm.Logs, &sm.Skipped, &sm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// PruneReports deletes reports created before cutoff along with their uploads.
func (s *Store) PruneReports(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM reports WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SaveUpload records where log index of report id was uploaded. An
// existing record is kept.
func (s *Store) SaveUpload(ctx context.Context, id uuid.UUID, index int, res upload.Result) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO report_uploads (report_id, log_index, upload_id, url, raw_url)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (report_id, log_index) DO NOTHING`, id, index, res.ID, res.URL, res.Raw)
	return err
}

func (s *Store) GetUpload(ctx context.Context, id uuid.UUID, index int) (upload.Result, error) {
	var res upload.Result
	err := s.DB.QueryRowContext(ctx,
		`SELECT upload_id, url, raw_url FROM report_uploads WHERE report_id=$1 AND log_index=$2`, id, index,
	).Scan(&res.ID, &res.URL, &res.Raw)
	if errors.Is(err, sql.ErrNoRows) {
		return upload.Result{}, ErrNotFound
	}
	return res, err
}
