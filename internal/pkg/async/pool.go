// Package async runs batches of named tasks over a bounded worker pool.
package async

import (
	"context"
	"sync"
)

// Task is one named unit of work.
type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

// Result pairs a task name with its outcome.
type Result struct {
	Name string
	Err  error
}

// Pool bounds how many tasks run at once.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs every task and returns one result per completed task. A
// cancelled context stops dispatching; tasks already running finish.
func (p *Pool) Execute(ctx context.Context, tasks []Task) []Result {
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				resultCh <- Result{Name: task.Name, Err: task.Execute(ctx)}
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(resultCh)

	results := make([]Result, 0, len(tasks))
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}
