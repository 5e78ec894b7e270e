// Package quality records data anomalies found during ingestion.
//
// Issues are diagnostics only. Reporting one never fails the operation that
// found it: sink errors are logged and counted, then dropped.
package quality

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ademuri/workout-music-tools/internal/logging"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type IssueType string

const (
	MissingField       IssueType = "missing_field"
	MissingID          IssueType = "missing_id"
	MalformedDate      IssueType = "malformed_date"
	DuplicateID        IssueType = "duplicate_id"
	SuspiciousDuration IssueType = "suspicious_duration"
)

type RecordType string

const (
	RecordPlaylist      RecordType = "playlist"
	RecordPlaylistTrack RecordType = "playlist_track"
	RecordTrack         RecordType = "track"
	RecordArtist        RecordType = "artist"
	RecordAlbum         RecordType = "album"
)

// Issue is one detected anomaly.
type Issue struct {
	ID          string
	RunID       string
	RecordType  RecordType
	RecordID    string
	IssueType   IssueType
	Description string
	Severity    Severity
	DetectedAt  time.Time
}

// Sink persists issues. It has no update or delete path.
type Sink interface {
	AppendIssues(ctx context.Context, issues []Issue) error
}

// Ledger stamps and forwards issues to a Sink.
type Ledger struct {
	sink  Sink
	runID string
	now   func() time.Time

	mu          sync.Mutex
	counts      map[Key]int
	sinkFailure int
}

// Key groups issue counts.
type Key struct {
	Type     IssueType
	Severity Severity
}

// NewLedger returns a ledger writing to sink. A nil sink only counts.
func NewLedger(sink Sink, runID string) *Ledger {
	return &Ledger{
		sink:   sink,
		runID:  runID,
		now:    time.Now,
		counts: make(map[Key]int),
	}
}

func (l *Ledger) RunID() string {
	return l.runID
}

// SetClock overrides the detection timestamp source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Report appends a single issue.
func (l *Ledger) Report(ctx context.Context, recordType RecordType, recordID string, issueType IssueType, description string, severity Severity) {
	l.Append(ctx, Issue{
		RecordType:  recordType,
		RecordID:    recordID,
		IssueType:   issueType,
		Description: description,
		Severity:    severity,
	})
}

// Append records pre-built issues, filling in id, run and timestamp.
func (l *Ledger) Append(ctx context.Context, issues ...Issue) {
	if len(issues) == 0 {
		return
	}

	now := l.now().UTC()
	stamped := make([]Issue, len(issues))
	l.mu.Lock()
	for i, issue := range issues {
		if issue.ID == "" {
			issue.ID = uuid.NewString()
		}
		if issue.RunID == "" {
			issue.RunID = l.runID
		}
		if issue.DetectedAt.IsZero() {
			issue.DetectedAt = now
		}
		stamped[i] = issue
		l.counts[Key{issue.IssueType, issue.Severity}]++
	}
	l.mu.Unlock()

	for _, issue := range stamped {
		logging.Debug().
			Str("record_type", string(issue.RecordType)).
			Str("record_id", issue.RecordID).
			Str("issue", string(issue.IssueType)).
			Str("severity", string(issue.Severity)).
			Msg(issue.Description)
	}

	if l.sink == nil {
		return
	}
	// Issues found while a run is being cancelled still belong in the ledger.
	if err := l.sink.AppendIssues(context.WithoutCancel(ctx), stamped); err != nil {
		l.mu.Lock()
		l.sinkFailure += len(stamped)
		l.mu.Unlock()
		logging.Warn().Err(err).Int("issues", len(stamped)).Msg("quality ledger: could not persist issues")
	}
}

// Count is a tally of one issue type/severity pair.
type Count struct {
	Key
	N int
}

// Counts returns issue counts sorted by type then severity.
func (l *Ledger) Counts() []Count {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Count, 0, len(l.counts))
	for k, n := range l.counts {
		out = append(out, Count{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Severity < out[j].Severity
	})
	return out
}

// Total returns the number of issues reported so far.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}

// Dropped returns how many issues the sink refused.
func (l *Ledger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sinkFailure
}

func (c Count) String() string {
	return fmt.Sprintf("%s/%s: %d", c.Type, c.Severity, c.N)
}
