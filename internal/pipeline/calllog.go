package pipeline

import (
	"context"

	"github.com/ademuri/workout-music-tools/internal/spotify"
	"github.com/ademuri/workout-music-tools/internal/store"
)

// CallStore is where API call records end up.
type CallStore interface {
	AppendAPICall(ctx context.Context, c store.APICall) error
}

// CallLog adapts a CallStore to spotify.CallRecorder, tagging every call with
// the run it belongs to.
type CallLog struct {
	store CallStore
	runID string
}

func NewCallLog(st CallStore, runID string) *CallLog {
	return &CallLog{store: st, runID: runID}
}

func (l *CallLog) RecordCall(ctx context.Context, c spotify.CallRecord) error {
	return l.store.AppendAPICall(ctx, store.APICall{
		RunID:    l.runID,
		Endpoint: c.Endpoint,
		Method:   c.Method,
		Status:   c.Status,
		Latency:  c.Elapsed,
		Attempt:  c.Attempt,
		Error:    c.Err,
		CalledAt: c.At,
	})
}
