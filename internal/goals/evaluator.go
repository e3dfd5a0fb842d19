package goals

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"tagstats/internal/containers"
	"tagstats/internal/pkg/async"
	"tagstats/internal/query"
	"tagstats/internal/timeseries"
)

// Evaluator runs goal count queries and folds the results into each goal's
// result document.
type Evaluator struct {
	containers containers.Store
	executor   *query.Executor
	results    ResultStore
	table      string
	logger     *slog.Logger
}

// NewEvaluator builds an evaluator querying the given raw event table.
func NewEvaluator(cs containers.Store, ex *query.Executor, rs ResultStore, table string, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		containers: cs,
		executor:   ex,
		results:    rs,
		table:      table,
		logger:     logger,
	}
}

// EvaluateDate counts one goal over one day and upserts the result. Zero
// counts are written too: an explicit zero distinguishes "evaluated, nothing
// matched" from "never evaluated".
func (e *Evaluator) EvaluateDate(ctx context.Context, c *containers.Container, g containers.Goal, day time.Time) error {
	if err := Validate(g); err != nil {
		return err
	}

	sql := CountQuery(e.table, c.Organization, c.TID, g, day)
	res, err := e.executor.Run(ctx, query.Request{Org: c.Organization, TID: c.TID, SQL: sql})
	if err != nil {
		return fmt.Errorf("evaluate goal %s/%s: %w", c.TID, g.ID, err)
	}

	rc, err := e.executor.Fetch(ctx, res.ExecutionID)
	if err != nil {
		return err
	}
	defer rc.Close()

	eCount, uCount, err := decodeCounts(rc)
	if err != nil {
		return fmt.Errorf("evaluate goal %s/%s: %w", c.TID, g.ID, err)
	}

	rec := ResultRecord{Date: day.Format(timeseries.DateFormat), EventCount: eCount, UserCount: uCount}
	return e.upsert(ctx, c, g.ID, []ResultRecord{rec})
}

// EvaluateRange backfills one goal over a closed date range with a single
// grouped query. Only days with matching events come back from the rollup;
// absent days are left untouched.
func (e *Evaluator) EvaluateRange(ctx context.Context, c *containers.Container, g containers.Goal, start, end time.Time) error {
	if err := Validate(g); err != nil {
		return err
	}

	sql := RangeCountQuery(e.table, c.Organization, c.TID, g, start, end)
	res, err := e.executor.Run(ctx, query.Request{Org: c.Organization, TID: c.TID, SQL: sql})
	if err != nil {
		return fmt.Errorf("evaluate goal %s/%s: %w", c.TID, g.ID, err)
	}

	rc, err := e.executor.Fetch(ctx, res.ExecutionID)
	if err != nil {
		return err
	}
	defer rc.Close()

	records, err := decodeRangeCounts(rc)
	if err != nil {
		return fmt.Errorf("evaluate goal %s/%s: %w", c.TID, g.ID, err)
	}
	if len(records) == 0 {
		return nil
	}
	return e.upsert(ctx, c, g.ID, records)
}

// goalWorkers bounds how many count queries the nightly batch keeps in
// flight; the query engine throttles beyond a handful of concurrent
// executions per account.
const goalWorkers = 4

// EvaluateAllForDate evaluates every goal of every container for one day.
// A failing goal is logged and skipped so one broken definition cannot stall
// the nightly batch; the number of failures comes back as an error.
func (e *Evaluator) EvaluateAllForDate(ctx context.Context, day time.Time) error {
	var tasks []async.Task
	err := e.containers.ScanWithGoals(ctx, func(c containers.Container) error {
		container := c
		for _, g := range container.Goals {
			goal := g
			tasks = append(tasks, async.Task{
				Name: container.TID + "/" + goal.ID,
				Execute: func(ctx context.Context) error {
					return e.EvaluateDate(ctx, &container, goal, day)
				},
			})
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("evaluate goals for %s: %w", day.Format(timeseries.DateFormat), err)
	}

	var failed int
	for _, r := range async.NewPool(goalWorkers).Execute(ctx, tasks) {
		if r.Err != nil {
			failed++
			e.logger.Error("Goal evaluation failed",
				slog.String("goal", r.Name),
				slog.String("error", r.Err.Error()))
		}
	}
	if failed > 0 {
		return fmt.Errorf("evaluate goals for %s: %d goal(s) failed", day.Format(timeseries.DateFormat), failed)
	}
	return nil
}

func (e *Evaluator) upsert(ctx context.Context, c *containers.Container, goalID string, recs []ResultRecord) error {
	existing, err := e.results.Load(ctx, c.Organization, c.TID, goalID)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		existing = Upsert(existing, rec)
	}
	return e.results.Save(ctx, c.Organization, c.TID, goalID, existing)
}

func readCountCSV(r io.Reader) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read count csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("count csv has no header row")
	}
	index := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		index[col] = i
	}
	for _, col := range []string{"e_count", "u_count"} {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("count csv is missing column %q", col)
		}
	}
	return records[1:], index, nil
}

func countAt(row []string, i int) int64 {
	if i >= len(row) || row[i] == "" {
		return 0
	}
	n, err := strconv.ParseInt(row[i], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func decodeCounts(r io.Reader) (eCount, uCount int64, err error) {
	rows, index, err := readCountCSV(r)
	if err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return countAt(rows[0], index["e_count"]), countAt(rows[0], index["u_count"]), nil
}

func decodeRangeCounts(r io.Reader) ([]ResultRecord, error) {
	rows, index, err := readCountCSV(r)
	if err != nil {
		return nil, err
	}
	di, ok := index["date"]
	if !ok {
		return nil, fmt.Errorf("count csv is missing column %q", "date")
	}

	records := make([]ResultRecord, 0, len(rows))
	for _, row := range rows {
		day, err := time.Parse("20060102", row[di])
		if err != nil {
			return nil, fmt.Errorf("parse result date %q: %w", row[di], err)
		}
		records = append(records, ResultRecord{
			Date:       day.Format(timeseries.DateFormat),
			EventCount: countAt(row, index["e_count"]),
			UserCount:  countAt(row, index["u_count"]),
		})
	}
	return records, nil
}
