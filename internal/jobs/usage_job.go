package jobs

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"tagstats/internal/query"
	"tagstats/internal/storage"
)

// MonthlyPutter upserts monthly usage items. Implemented by
// storage.UsageTable.
type MonthlyPutter interface {
	PutMonthly(ctx context.Context, usage storage.MonthlyUsage) error
}

// UsageJob rolls the per-execution usage records of the previous month up
// into one item per organization. Re-runs overwrite the same items, so the
// job is safe to repeat within a month.
type UsageJob struct {
	executor *query.Executor
	builder  query.Builder
	table    MonthlyPutter
	logger   *slog.Logger
	now      func() time.Time
}

func NewUsageJob(executor *query.Executor, builder query.Builder, table MonthlyPutter, logger *slog.Logger) *UsageJob {
	return &UsageJob{
		executor: executor,
		builder:  builder,
		table:    table,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the wall clock; intended for tests.
func (j *UsageJob) WithClock(now func() time.Time) *UsageJob {
	j.now = now
	return j
}

func (j *UsageJob) Run() error {
	ctx := context.Background()

	prev := j.now().UTC().AddDate(0, 0, -j.now().UTC().Day()) // last day of the previous month
	year, month := prev.Year(), int(prev.Month())

	res, err := j.executor.Run(ctx, query.Request{SQL: j.builder.UsageRollup(year, month)})
	if err != nil {
		return fmt.Errorf("usage rollup query: %w", err)
	}

	rc, err := j.executor.Fetch(ctx, res.ExecutionID)
	if err != nil {
		return err
	}
	defer rc.Close()

	items, err := BuildMonthlyUsage(rc, year, month)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := j.table.PutMonthly(ctx, item); err != nil {
			return err
		}
	}

	j.logger.Info("Usage rollup complete",
		slog.Int("year", year),
		slog.Int("month", month),
		slog.Int("organizations", len(items)))
	return nil
}

// BuildMonthlyUsage folds the rollup result set into one item per
// organization, ordered by organization name.
func BuildMonthlyUsage(r io.Reader, year, month int) ([]storage.MonthlyUsage, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read usage rollup csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("usage rollup csv has no header row")
	}

	index := map[string]int{}
	for i, col := range records[0] {
		index[col] = i
	}
	for _, col := range []string{"type", "org", "tid", "size"} {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("usage rollup csv is missing column %q", col)
		}
	}

	monthKey := int64(year)*1000 + int64(month)
	byOrg := map[string]*storage.MonthlyUsage{}
	for _, rec := range records[1:] {
		recordType := rec[index["type"]]
		org := rec[index["org"]]
		size, _ := strconv.ParseInt(rec[index["size"]], 10, 64)

		item, ok := byOrg[org]
		if !ok {
			item = &storage.MonthlyUsage{Organization: org, Month: monthKey}
			byOrg[org] = item
		}
		// Unknown record types stay visible in the details only.
		switch recordType {
		case storage.UsageRecordType:
			item.AthenaScanSize += size
		case storage.CollectRecordType:
			item.CollectSize += size
		}
		item.Details = append(item.Details, storage.UsageDetail{
			Type: recordType,
			TID:  rec[index["tid"]],
			Size: size,
		})
	}

	items := make([]storage.MonthlyUsage, 0, len(byOrg))
	for _, item := range byOrg {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Organization < items[j].Organization })
	return items, nil
}
