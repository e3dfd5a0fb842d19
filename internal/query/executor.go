package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// ScanRecorder persists bytes-scanned accounting for a finished execution.
// Implemented by storage.UsageRecorder.
type ScanRecorder interface {
	RecordScan(ctx context.Context, org, tid, executionID string, bytesScanned int64) error
}

// Request identifies one query run. Org and TID attribute the scan cost;
// maintenance queries leave them empty and are not accounted.
type Request struct {
	Org string
	TID string
	SQL string
}

// Result is a completed, successful execution.
type Result struct {
	ExecutionID string
	Status      Status
}

// Executor submits queries and polls them to completion. Submission is never
// retried; only the status poll backs off and re-reads.
type Executor struct {
	svc    Service
	policy Policy
	sleep  Sleeper
	usage  ScanRecorder
	logger *slog.Logger
}

// NewExecutor builds an executor over a query service.
func NewExecutor(svc Service, policy Policy, usage ScanRecorder, logger *slog.Logger) *Executor {
	return &Executor{
		svc:    svc,
		policy: policy,
		sleep:  TimerSleeper{},
		usage:  usage,
		logger: logger,
	}
}

// WithSleeper overrides the poll wait; intended for tests.
func (e *Executor) WithSleeper(s Sleeper) *Executor {
	e.sleep = s
	return e
}

// Submit starts an execution without waiting on it.
func (e *Executor) Submit(ctx context.Context, sql string) (string, error) {
	id, err := e.svc.StartQuery(ctx, sql)
	if err != nil {
		return "", fmt.Errorf("submit query: %w", err)
	}
	e.logger.Info("Submitted query", slog.String("execution_id", id))
	return id, nil
}

// Wait polls an execution until it reaches a terminal state. It returns the
// succeeded status, a *FailedError for FAILED/CANCELLED, or ErrTimeout when
// the attempt budget runs out.
func (e *Executor) Wait(ctx context.Context, executionID string) (Status, error) {
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		status, err := e.svc.GetStatus(ctx, executionID)
		if err != nil {
			return Status{}, fmt.Errorf("poll query %s: %w", executionID, err)
		}

		e.logger.Debug("Polled query status",
			slog.String("execution_id", executionID),
			slog.String("state", string(status.State)),
			slog.Int("attempt", attempt))

		switch status.State {
		case StateSucceeded:
			return status, nil
		case StateFailed, StateCancelled:
			return Status{}, &FailedError{ExecutionID: executionID, State: status.State, Reason: status.Reason}
		}

		if attempt == e.policy.MaxAttempts {
			break
		}
		if err := e.sleep.Sleep(ctx, e.policy.Delay(attempt)); err != nil {
			return Status{}, fmt.Errorf("poll query %s: %w", executionID, err)
		}
	}
	return Status{}, fmt.Errorf("query %s: %w", executionID, ErrTimeout)
}

// Complete polls a previously submitted execution until it succeeds,
// recording the scan cost on the first observed SUCCEEDED transition. Any
// failure or timeout aborts without accounting.
func (e *Executor) Complete(ctx context.Context, req Request, executionID string) (*Result, error) {
	status, err := e.Wait(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if e.usage != nil && req.Org != "" {
		if err := e.usage.RecordScan(ctx, req.Org, req.TID, executionID, status.BytesScanned); err != nil {
			return nil, fmt.Errorf("record scan usage: %w", err)
		}
	}

	return &Result{ExecutionID: executionID, Status: status}, nil
}

// Run submits a query and blocks until it succeeds.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	id, err := e.Submit(ctx, req.SQL)
	if err != nil {
		return nil, err
	}
	return e.Complete(ctx, req, id)
}

// Fetch opens the result set of a finished execution.
func (e *Executor) Fetch(ctx context.Context, executionID string) (io.ReadCloser, error) {
	rc, err := e.svc.FetchResult(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("fetch result of %s: %w", executionID, err)
	}
	return rc, nil
}

// RepairPartitions refreshes the partition metadata of a table before batch
// queries touch freshly ingested days.
func (e *Executor) RepairPartitions(ctx context.Context, database, table string) error {
	sql := fmt.Sprintf("MSCK REPAIR TABLE %s.%s;", database, table)
	if _, err := e.Run(ctx, Request{SQL: sql}); err != nil {
		return fmt.Errorf("repair partitions for %s.%s: %w", database, table, err)
	}
	return nil
}
