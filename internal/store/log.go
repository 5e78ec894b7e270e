package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ademuri/workout-music-tools/internal/metrics"
	"github.com/ademuri/workout-music-tools/internal/quality"
)

// The tables written here are insert-only: nothing in the package updates or
// deletes their rows.

// AppendIssues implements quality.Sink.
func (s *Store) AppendIssues(ctx context.Context, issues []quality.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO data_quality_issues (issue_id, run_id, record_type, record_id, issue_type, description, severity, detected_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing issue insert: %w", err)
	}
	defer stmt.Close()

	for _, is := range issues {
		id := is.ID
		if id == "" {
			id = uuid.NewString()
		}
		detected := is.DetectedAt
		if detected.IsZero() {
			detected = s.now()
		}
		_, err := stmt.ExecContext(ctx, id, nullString(is.RunID), string(is.RecordType), nullString(is.RecordID),
			string(is.IssueType), nullString(is.Description), string(is.Severity), formatTimestamp(detected))
		if err != nil {
			return fmt.Errorf("inserting issue %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing issues: %w", err)
	}
	metrics.RowsLoaded.WithLabelValues("data_quality_issues").Add(float64(len(issues)))
	return nil
}

// APICall is one row of the API call log.
type APICall struct {
	ID       string
	RunID    string
	Endpoint string
	Method   string
	Status   int
	Latency  time.Duration
	Attempt  int
	Error    string
	CalledAt time.Time
}

func (s *Store) AppendAPICall(ctx context.Context, c APICall) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CalledAt.IsZero() {
		c.CalledAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO api_call_log (call_id, run_id, endpoint, method, status, latency_ms, attempt, error, called_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, nullString(c.RunID), c.Endpoint, c.Method, c.Status,
		float64(c.Latency.Microseconds())/1000, c.Attempt, nullString(c.Error), formatTimestamp(c.CalledAt))
	if err != nil {
		return fmt.Errorf("inserting api call %s: %w", c.Endpoint, err)
	}
	return nil
}

// Run status values.
const (
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// Run summarizes one collection run.
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	Status          string
	Playlists       int
	PlaylistsFailed int
	Entries         int
	Issues          int
	Error           string
}

func (s *Store) AppendRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("run has no id")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ingestion_runs (run_id, started_at, finished_at, status, playlists, playlists_failed, entries, issues, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatTimestamp(r.StartedAt), formatTimestamp(r.FinishedAt), r.Status,
		r.Playlists, r.PlaylistsFailed, r.Entries, r.Issues, nullString(r.Error))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	return nil
}
