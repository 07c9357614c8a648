// Package report persists the itemized outcome of every dispatch run,
// so the operator can always see exactly what happened to each
// candidate, no matter where the run stopped.
package report

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/foxzi/mailmerge/internal/pipeline"
)

// Run is a stored run summary.
type Run struct {
	ID                 string
	StartedAt          time.Time
	FinishedAt         time.Time
	Total              int
	Sent               int
	Failed             int
	Halted             int
	SkippedAlreadySent int
	SkippedNoEmail     int
}

// Item is one stored result line.
type Item struct {
	ID        string
	RunID     string
	Position  int
	Recipient string
	Status    string
	Message   string
	Note      string
	CreatedAt time.Time
}

// Repository stores run reports in sqlite.
type Repository struct {
	db *sql.DB
}

// Open creates the database file (and its directory) if needed and
// applies migrations.
func Open(path string) (*Repository, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open reports database: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewWithDB wraps an existing connection, applying migrations. Used by
// tests with an in-memory database.
func NewWithDB(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	migrations := []string{migrationRuns, migrationRunItems}
	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const migrationRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    total INTEGER NOT NULL,
    sent INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    halted INTEGER NOT NULL,
    skipped_already_sent INTEGER NOT NULL,
    skipped_no_email INTEGER NOT NULL DEFAULT 0
);
`

const migrationRunItems = `
CREATE TABLE IF NOT EXISTS run_items (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    recipient TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT,
    note TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_items_run_id ON run_items(run_id);
`

// SaveRun persists a completed run with all its items in one
// transaction.
func (r *Repository) SaveRun(run *pipeline.RunResult) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, total, sent, failed, halted, skipped_already_sent, skipped_no_email)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Started, run.Finished, len(run.Results),
		run.Sent, run.Failed, run.Halted, run.SkippedAlreadySent, run.SkippedNoEmail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, item := range run.Results {
		_, err = tx.Exec(`
			INSERT INTO run_items (id, run_id, position, recipient, status, message, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), run.RunID, i, item.To, string(item.Status),
			nullString(item.Message), nullString(item.Note), item.Time,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run item: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun returns one run summary, or nil when not found.
func (r *Repository) GetRun(id string) (*Run, error) {
	run := &Run{}
	err := r.db.QueryRow(`
		SELECT id, started_at, finished_at, total, sent, failed, halted, skipped_already_sent, skipped_no_email
		FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Total,
		&run.Sent, &run.Failed, &run.Halted, &run.SkippedAlreadySent, &run.SkippedNoEmail)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *Repository) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT id, started_at, finished_at, total, sent, failed, halted, skipped_already_sent, skipped_no_email
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Total,
			&run.Sent, &run.Failed, &run.Halted, &run.SkippedAlreadySent, &run.SkippedNoEmail); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ItemsForRun returns the itemized results in dispatch order.
func (r *Repository) ItemsForRun(runID string) ([]Item, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, position, recipient, status, message, note, created_at
		FROM run_items WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var message, note sql.NullString
		if err := rows.Scan(&item.ID, &item.RunID, &item.Position, &item.Recipient,
			&item.Status, &message, &note, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Message = message.String
		item.Note = note.String
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
