// Package archive persists terminal job outcomes to an embedded SQLite
// database for operator inspection. It is append-only history, never
// consulted on the request hot path.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shadwo/mediadock/internal/media"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Record is one archived terminal job.
type Record struct {
	ExternalID    string    `json:"external_id"`
	Kind          string    `json:"kind"`
	Quality       string    `json:"quality"`
	State         string    `json:"state"`
	Filename      string    `json:"filename,omitempty"`
	SizeBytes     int64     `json:"size_bytes,omitempty"`
	Format        string    `json:"format,omitempty"`
	ErrorCategory string    `json:"error_category,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Archive wraps the history database.
type Archive struct {
	db *sql.DB
}

// Open connects to the database at path, creating the directory and
// schema when needed.
func Open(path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Record appends one terminal job snapshot. Non-terminal jobs are
// rejected; the registry is the only source of in-flight state.
func (a *Archive) Record(ctx context.Context, job media.Job) error {
	if !job.State.Terminal() {
		return fmt.Errorf("job %q is not terminal (%s)", job.ID, job.State)
	}

	rec := Record{
		ExternalID: job.ID,
		Kind:       string(job.Kind),
		Quality:    string(job.Quality),
		State:      string(job.State),
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.UpdatedAt,
	}
	if job.Result != nil {
		rec.Filename = job.Result.Filename
		rec.SizeBytes = job.Result.SizeBytes
		rec.Format = job.Result.Format
	}
	if job.Error != nil {
		rec.ErrorCategory = string(job.Error.Category)
		rec.ErrorMessage = job.Error.Message
	}

	const q = `INSERT INTO job_history
		(external_id, kind, quality, state, filename, size_bytes, format,
		 error_category, error_message, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.db.ExecContext(ctx, q,
		rec.ExternalID, rec.Kind, rec.Quality, rec.State,
		rec.Filename, rec.SizeBytes, rec.Format,
		rec.ErrorCategory, rec.ErrorMessage,
		rec.CreatedAt, rec.FinishedAt,
	); err != nil {
		return fmt.Errorf("insert job history: %w", err)
	}
	return nil
}

// Recent lists the most recently finished records, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT external_id, kind, quality, state, filename, size_bytes,
		format, error_category, error_message, created_at, finished_at
		FROM job_history ORDER BY finished_at DESC, id DESC LIMIT ?`
	rows, err := a.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ExternalID, &rec.Kind, &rec.Quality, &rec.State,
			&rec.Filename, &rec.SizeBytes, &rec.Format,
			&rec.ErrorCategory, &rec.ErrorMessage,
			&rec.CreatedAt, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job history: %w", err)
	}
	return records, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close archive database: %w", err)
	}
	return nil
}
