package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstats/internal/pkg/async"
)

func TestExecuteRunsEveryTask(t *testing.T) {
	var ran atomic.Int64
	var tasks []async.Task
	for i := 0; i < 20; i++ {
		tasks = append(tasks, async.Task{
			Name: "task",
			Execute: func(context.Context) error {
				ran.Add(1)
				return nil
			},
		})
	}

	results := async.NewPool(4).Execute(context.Background(), tasks)
	require.Len(t, results, 20)
	assert.Equal(t, int64(20), ran.Load())
}

func TestExecuteReportsPerTaskErrors(t *testing.T) {
	boom := errors.New("boom")
	tasks := []async.Task{
		{Name: "ok", Execute: func(context.Context) error { return nil }},
		{Name: "bad", Execute: func(context.Context) error { return boom }},
	}

	results := async.NewPool(2).Execute(context.Background(), tasks)
	require.Len(t, results, 2)

	byName := map[string]error{}
	for _, r := range results {
		byName[r.Name] = r.Err
	}
	assert.NoError(t, byName["ok"])
	assert.ErrorIs(t, byName["bad"], boom)
}

func TestExecuteStopsDispatchingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	tasks := make([]async.Task, 100)
	for i := range tasks {
		tasks[i] = async.Task{
			Name: "task",
			Execute: func(context.Context) error {
				ran.Add(1)
				return nil
			},
		}
	}

	results := async.NewPool(2).Execute(ctx, tasks)
	assert.LessOrEqual(t, len(results), len(tasks))
	assert.Equal(t, int64(len(results)), ran.Load())
}
