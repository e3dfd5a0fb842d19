// Package query submits bulk analytical queries against the raw event log
// and waits for their completion with bounded exponential backoff.
package query

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// State is the lifecycle state of a query execution.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether the state ends the polling loop.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Status is one observation of an execution.
type Status struct {
	State          State
	Reason         string
	BytesScanned   int64
	ResultLocation string
}

// Service is the bulk query engine contract. The executor is its sole
// consumer.
type Service interface {
	// StartQuery submits a query and returns its execution id. Submission
	// is fire-and-forget; the id is the only handle.
	StartQuery(ctx context.Context, sql string) (string, error)
	// GetStatus reads the current execution status.
	GetStatus(ctx context.Context, executionID string) (Status, error)
	// FetchResult streams the CSV result set of a succeeded execution.
	FetchResult(ctx context.Context, executionID string) (io.ReadCloser, error)
}

// ErrTimeout reports that an execution never reached a terminal state within
// the polling budget. The remote query may still be running; it is abandoned,
// not cancelled.
var ErrTimeout = errors.New("query timed out")

// FailedError reports that the engine finished an execution unsuccessfully.
type FailedError struct {
	ExecutionID string
	State       State
	Reason      string
}

func (e *FailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("query %s finished %s", e.ExecutionID, e.State)
	}
	return fmt.Sprintf("query %s finished %s: %s", e.ExecutionID, e.State, e.Reason)
}
