package runs

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for run operations
var (
	ErrRunNotFound     = errors.New("run not found")
	ErrRunFinished     = errors.New("run already finished")
	ErrEmptySourceName = errors.New("source name is empty")
)

// RunStore records scrape run telemetry using SQLite.
type RunStore struct {
	db *sql.DB
}

// Run is the telemetry of one scrape run.
type Run struct {
	RunID        uuid.UUID  `json:"run_id"`
	Source       string     `json:"source"`
	DryRun       bool       `json:"dry_run"`
	RequestLimit int        `json:"request_limit"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`

	// Set by FinishRun
	TokensIssued int     `json:"tokens_issued"`
	Succeeded    int     `json:"succeeded"`
	Empty        int     `json:"empty"`
	TooBroad     int     `json:"too_broad"`
	Failed       int     `json:"failed"`
	Degraded     int     `json:"degraded"`
	Records      int     `json:"records"`
	Duplicates   int     `json:"duplicates"`
	Output       *string `json:"output,omitempty"`
	LastError    *string `json:"last_error,omitempty"`
}

// IsFinished returns true once FinishRun was called for the run.
func (r *Run) IsFinished() bool {
	return r.FinishedAt != nil
}

// RunResult holds the final counters of a run.
type RunResult struct {
	TokensIssued int
	Succeeded    int
	Empty        int
	TooBroad     int
	Failed       int
	Degraded     int
	Records      int
	Duplicates   int
	Output       string
	Err          error
}

// RunFilter represents filtering options for listing runs.
type RunFilter struct {
	Source   *string // Filter by source name
	Finished *bool   // Filter by finished status
	Limit    int     // Pagination limit
	Offset   int     // Pagination offset
}

// NewRunStore creates a new run store with the given database path.
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &RunStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the runs table if it doesn't exist.
func (s *RunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		request_limit INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		tokens_issued INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		empty INTEGER DEFAULT 0,
		too_broad INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		degraded INTEGER DEFAULT 0,
		records INTEGER DEFAULT 0,
		duplicates INTEGER DEFAULT 0,
		output TEXT,
		last_error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Databases created before the degraded counter existed
	_, err := s.db.Exec("ALTER TABLE runs ADD COLUMN degraded INTEGER DEFAULT 0")
	if err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a run.
func (s *RunStore) CreateRun(source string, dryRun bool, requestLimit int) (*Run, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptySourceName
	}

	run := &Run{
		RunID:        uuid.New(),
		Source:       source,
		DryRun:       dryRun,
		RequestLimit: requestLimit,
		StartedAt:    time.Now().Truncate(0),
	}

	query := `
		INSERT INTO runs (run_id, source, dry_run, request_limit, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.RunID.String(),
		run.Source,
		run.DryRun,
		run.RequestLimit,
		formatTime(&run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return run, nil
}

// FinishRun stores the final counters of a run. A run can only be
// finished once.
func (s *RunStore) FinishRun(runID uuid.UUID, result RunResult) error {
	now := time.Now()

	var output, lastError *string
	if result.Output != "" {
		output = &result.Output
	}
	if result.Err != nil {
		msg := result.Err.Error()
		lastError = &msg
	}

	query := `
		UPDATE runs SET
			finished_at = ?, tokens_issued = ?, succeeded = ?, empty = ?,
			too_broad = ?, failed = ?, degraded = ?, records = ?, duplicates = ?,
			output = ?, last_error = ?
		WHERE run_id = ? AND finished_at IS NULL
	`

	res, err := s.db.Exec(query,
		formatTime(&now),
		result.TokensIssued,
		result.Succeeded,
		result.Empty,
		result.TooBroad,
		result.Failed,
		result.Degraded,
		result.Records,
		result.Duplicates,
		output,
		lastError,
		runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish unknown runs from finished ones
		if _, err := s.GetRun(runID); err != nil {
			return err
		}
		return ErrRunFinished
	}

	return nil
}

const selectRuns = `
	SELECT run_id, source, dry_run, request_limit, started_at, finished_at,
	       tokens_issued, succeeded, empty, too_broad, failed, degraded, records,
	       duplicates, output, last_error
	FROM runs
`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(runID uuid.UUID) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(selectRuns+" WHERE run_id = ?", runID.String()))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, most recent first, with optional filtering.
func (s *RunStore) ListRuns(filter RunFilter) ([]Run, error) {
	query := selectRuns

	var whereClauses []string
	var args []any

	if filter.Source != nil {
		whereClauses = append(whereClauses, "source = ?")
		args = append(args, *filter.Source)
	}

	if filter.Finished != nil {
		if *filter.Finished {
			whereClauses = append(whereClauses, "finished_at IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "finished_at IS NULL")
		}
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			// SQLite needs a LIMIT before OFFSET
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// scanRun parses one row into a Run.
func scanRun(row rowScanner) (*Run, error) {
	var runIDStr, source, startedAtStr string
	var finishedAtStr, output, lastError sql.NullString
	var run Run

	err := row.Scan(
		&runIDStr, &source, &run.DryRun, &run.RequestLimit,
		&startedAtStr, &finishedAtStr,
		&run.TokensIssued, &run.Succeeded, &run.Empty, &run.TooBroad,
		&run.Failed, &run.Degraded, &run.Records, &run.Duplicates,
		&output, &lastError,
	)
	if err != nil {
		return nil, err
	}

	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run ID: %w", err)
	}

	run.RunID = runID
	run.Source = source
	run.StartedAt = parseTime(startedAtStr)

	if finishedAtStr.Valid {
		t := parseTime(finishedAtStr.String)
		run.FinishedAt = &t
	}
	if output.Valid {
		run.Output = &output.String
	}
	if lastError.Valid {
		run.LastError = &lastError.String
	}

	return &run, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
