package query_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstats/internal/query"
	"tagstats/internal/testsupport"
)

type recordedScan struct {
	org, tid, executionID string
	bytesScanned          int64
}

type fakeScanRecorder struct {
	mu    sync.Mutex
	scans []recordedScan
}

func (f *fakeScanRecorder) RecordScan(_ context.Context, org, tid, executionID string, bytesScanned int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, recordedScan{org, tid, executionID, bytesScanned})
	return nil
}

func TestRunPollsUntilSucceeded(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: []query.Status{
			{State: query.StateQueued},
			{State: query.StateRunning},
			{State: query.StateSucceeded, BytesScanned: 1024},
		},
	}
	usage := &fakeScanRecorder{}
	sleeper := &testsupport.RecordingSleeper{}
	exec := query.NewExecutor(svc, query.DefaultPolicy(), usage, testsupport.Logger()).WithSleeper(sleeper)

	result, err := exec.Run(context.Background(), query.Request{Org: "acme", TID: "shop", SQL: "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, "exec-1", result.ExecutionID)
	assert.Equal(t, int64(1024), result.Status.BytesScanned)
	assert.Equal(t, 3, svc.Polls)
	assert.Len(t, sleeper.Slept, 2)

	// Usage accounted exactly once, attributed to the execution.
	require.Len(t, usage.scans, 1)
	assert.Equal(t, recordedScan{"acme", "shop", "exec-1", 1024}, usage.scans[0])
}

func TestRunFailedQueryAbortsWithoutUsage(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: []query.Status{
			{State: query.StateQueued},
			{State: query.StateRunning},
			{State: query.StateRunning},
			{State: query.StateFailed, Reason: "SYNTAX_ERROR"},
		},
	}
	usage := &fakeScanRecorder{}
	exec := query.NewExecutor(svc, query.DefaultPolicy(), usage, testsupport.Logger()).
		WithSleeper(&testsupport.RecordingSleeper{})

	_, err := exec.Run(context.Background(), query.Request{Org: "acme", TID: "shop", SQL: "SELECT"})

	var failed *query.FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "SYNTAX_ERROR", failed.Reason)
	assert.Empty(t, usage.scans)
}

func TestRunTimesOutAfterMaxAttempts(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: []query.Status{{State: query.StateRunning}},
	}
	policy := query.Policy{MaxAttempts: 4, BaseDelay: 1, MaxDelay: 10}
	sleeper := &testsupport.RecordingSleeper{}
	exec := query.NewExecutor(svc, policy, nil, testsupport.Logger()).WithSleeper(sleeper)

	_, err := exec.Run(context.Background(), query.Request{SQL: "SELECT 1"})
	require.ErrorIs(t, err, query.ErrTimeout)
	assert.Equal(t, 4, svc.Polls)
	// No sleep after the final attempt.
	assert.Len(t, sleeper.Slept, 3)
}

func TestSubmissionFailureIsNotRetried(t *testing.T) {
	svc := &testsupport.FakeQueryService{StartErr: errors.New("throttled")}
	exec := query.NewExecutor(svc, query.DefaultPolicy(), nil, testsupport.Logger())

	_, err := exec.Run(context.Background(), query.Request{SQL: "SELECT 1"})
	require.Error(t, err)
	assert.Zero(t, svc.Polls)
}

func TestWaitStopsOnCancelledContext(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: []query.Status{{State: query.StateRunning}},
	}
	exec := query.NewExecutor(svc, query.DefaultPolicy(), nil, testsupport.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exec.Wait(ctx, "exec-1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestMaintenanceQueriesAreNotAccounted(t *testing.T) {
	svc := &testsupport.FakeQueryService{Script: testsupport.Succeeded()}
	usage := &fakeScanRecorder{}
	exec := query.NewExecutor(svc, query.DefaultPolicy(), usage, testsupport.Logger())

	require.NoError(t, exec.RepairPartitions(context.Background(), "analytics", "events"))
	assert.Empty(t, usage.scans)
	require.Len(t, svc.Submitted, 1)
	assert.Equal(t, "MSCK REPAIR TABLE analytics.events;", svc.Submitted[0])
}
