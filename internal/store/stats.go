package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Summary is the end-of-run overview of the database.
type Summary struct {
	Playlists         int64  `yaml:"playlists"`
	PlaylistSnapshots int64  `yaml:"playlist_snapshots"`
	Tracks            int64  `yaml:"tracks"`
	Artists           int64  `yaml:"artists"`
	ArtistsEnriched   int64  `yaml:"artists_enriched"`
	Albums            int64  `yaml:"albums"`
	AlbumsEnriched    int64  `yaml:"albums_enriched"`
	Associations      int64  `yaml:"associations"`
	Removals          int64  `yaml:"removals"`
	Issues            int64  `yaml:"issues"`
	APICalls          int64  `yaml:"api_calls"`
	Runs              int64  `yaml:"runs"`
	LatestSnapshot    string `yaml:"latest_snapshot"`
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	counts := []struct {
		dst   *int64
		query string
	}{
		{&sum.Playlists, "SELECT COUNT(DISTINCT playlist_id) FROM playlists"},
		{&sum.PlaylistSnapshots, "SELECT COUNT(*) FROM playlists"},
		{&sum.Tracks, "SELECT COUNT(*) FROM tracks"},
		{&sum.Artists, "SELECT COUNT(*) FROM artists"},
		{&sum.ArtistsEnriched, "SELECT COUNT(*) FROM artists WHERE enriched_at IS NOT NULL"},
		{&sum.Albums, "SELECT COUNT(*) FROM albums"},
		{&sum.AlbumsEnriched, "SELECT COUNT(*) FROM albums WHERE enriched_at IS NOT NULL"},
		{&sum.Associations, "SELECT COUNT(*) FROM playlist_tracks WHERE is_removed = false"},
		{&sum.Removals, "SELECT COUNT(*) FROM playlist_tracks WHERE is_removed = true"},
		{&sum.Issues, "SELECT COUNT(*) FROM data_quality_issues"},
		{&sum.APICalls, "SELECT COUNT(*) FROM api_call_log"},
		{&sum.Runs, "SELECT COUNT(*) FROM ingestion_runs"},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return sum, fmt.Errorf("%s: %w", c.query, err)
		}
	}

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(snapshot_date) FROM playlists").Scan(&latest); err != nil {
		return sum, fmt.Errorf("finding latest snapshot: %w", err)
	}
	sum.LatestSnapshot = latest.String
	return sum, nil
}

type CategoryCount struct {
	Category  string `yaml:"category"`
	Playlists int64  `yaml:"playlists"`
	Tracks    int64  `yaml:"tracks"`
}

// CategoryBreakdown counts playlists and distinct live tracks per workout
// category.
func (s *Store) CategoryBreakdown(ctx context.Context) ([]CategoryCount, error) {
	query := `
		SELECT p.category, COUNT(DISTINCT p.playlist_id), COUNT(DISTINCT pt.track_id)
		FROM playlists p
		LEFT JOIN playlist_tracks pt
		  ON pt.playlist_id = p.playlist_id AND pt.snapshot_date = p.snapshot_date AND pt.is_removed = false
		WHERE p.category IS NOT NULL
		GROUP BY p.category
		ORDER BY COUNT(DISTINCT p.playlist_id) DESC, p.category
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying category breakdown: %w", err)
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Playlists, &c.Tracks); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type IssueCount struct {
	IssueType string `yaml:"issue_type"`
	Severity  string `yaml:"severity"`
	Count     int64  `yaml:"count"`
}

// IssueCounts groups quality issues by type and severity. An empty runID
// covers every run.
func (s *Store) IssueCounts(ctx context.Context, runID string) ([]IssueCount, error) {
	query := "SELECT issue_type, severity, COUNT(*) FROM data_quality_issues"
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " GROUP BY issue_type, severity ORDER BY COUNT(*) DESC, issue_type, severity"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issue counts: %w", err)
	}
	defer rows.Close()

	var out []IssueCount
	for rows.Next() {
		var c IssueCount
		if err := rows.Scan(&c.IssueType, &c.Severity, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type IssueRow struct {
	RunID       string `yaml:"run_id"`
	RecordType  string `yaml:"record_type"`
	RecordID    string `yaml:"record_id"`
	IssueType   string `yaml:"issue_type"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	DetectedAt  string `yaml:"detected_at"`
}

// RecentIssues returns the newest issues, optionally only those of one
// severity.
func (s *Store) RecentIssues(ctx context.Context, severity string, limit int) ([]IssueRow, error) {
	query := `
		SELECT run_id, record_type, record_id, issue_type, severity, description, detected_at
		FROM data_quality_issues`
	var args []any
	if severity != "" {
		query += " WHERE severity = ?"
		args = append(args, severity)
	}
	query += " ORDER BY detected_at DESC, issue_id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recent issues: %w", err)
	}
	defer rows.Close()

	var out []IssueRow
	for rows.Next() {
		var r IssueRow
		var run, recordID, desc sql.NullString
		if err := rows.Scan(&run, &r.RecordType, &recordID, &r.IssueType, &r.Severity, &desc, &r.DetectedAt); err != nil {
			return nil, err
		}
		r.RunID, r.RecordID, r.Description = run.String, recordID.String, desc.String
		out = append(out, r)
	}
	return out, rows.Err()
}

type RunRow struct {
	ID              string `yaml:"id"`
	StartedAt       string `yaml:"started_at"`
	FinishedAt      string `yaml:"finished_at"`
	Status          string `yaml:"status"`
	Playlists       int64  `yaml:"playlists"`
	PlaylistsFailed int64  `yaml:"playlists_failed"`
	Entries         int64  `yaml:"entries"`
	Issues          int64  `yaml:"issues"`
}

func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, status, playlists, playlists_failed, entries, issues
		FROM ingestion_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Playlists, &r.PlaylistsFailed, &r.Entries, &r.Issues); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
