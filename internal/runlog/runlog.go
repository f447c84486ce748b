// Package runlog journals pipeline runs so operators can see what ran, with
// which parameters, and what it produced. Backends: postgres (shares the
// application pool) and sqlite for single-machine use.
package runlog

import (
	"context"
	"encoding/json"
	"time"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run kinds, one per CLI operation that mutates state.
const (
	KindIngest  = "ingest"
	KindGeocode = "geocode"
	KindSync    = "sync"
	KindImport  = "boundary_import"
	KindCompare = "compare"
)

// Run is one journaled pipeline run.
type Run struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Params     json.RawMessage `json:"params,omitempty"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Filter narrows List results. Zero values mean no constraint; Limit zero
// means the backend default of 50.
type Filter struct {
	Kind   string
	Status string
	Limit  int
}

// Journal records run lifecycles.
type Journal interface {
	// Start opens a run of the given kind. params is marshaled to JSON.
	Start(ctx context.Context, kind string, params any) (*Run, error)

	// Finish closes a run: stats marshaled to JSON, status derived from
	// runErr.
	Finish(ctx context.Context, runID string, stats any, runErr error) error

	// List returns runs newest first.
	List(ctx context.Context, filter Filter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

func marshalOrNil(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// jsonText converts raw JSON to a driver-friendly text parameter, keeping
// NULL for absent payloads.
func jsonText(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}

func statusFor(runErr error) (status, msg string) {
	if runErr != nil {
		return StatusFailed, runErr.Error()
	}
	return StatusCompleted, ""
}
