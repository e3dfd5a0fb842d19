package jobs

import (
	"context"
	"log/slog"
	"time"

	"tagstats/internal/goals"
	"tagstats/internal/query"
)

// GoalJob is the nightly batch: refresh the partition metadata of the event
// table, then evaluate every goal of every container for yesterday.
type GoalJob struct {
	executor  *query.Executor
	evaluator *goals.Evaluator
	database  string
	table     string
	logger    *slog.Logger
	now       func() time.Time
}

func NewGoalJob(executor *query.Executor, evaluator *goals.Evaluator, database, table string, logger *slog.Logger) *GoalJob {
	return &GoalJob{
		executor:  executor,
		evaluator: evaluator,
		database:  database,
		table:     table,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the wall clock; intended for tests.
func (j *GoalJob) WithClock(now func() time.Time) *GoalJob {
	j.now = now
	return j
}

func (j *GoalJob) Run() error {
	ctx := context.Background()

	// Yesterday's partition may not be registered yet.
	if err := j.executor.RepairPartitions(ctx, j.database, j.table); err != nil {
		return err
	}

	yesterday := j.now().UTC().AddDate(0, 0, -1)
	j.logger.Info("Evaluating goals", slog.String("date", yesterday.Format("2006-01-02")))
	return j.evaluator.EvaluateAllForDate(ctx, yesterday)
}
