// Package pipeline drives report generation end to end: build the bulk
// query, run it against the event log, merge the result set and write the
// report documents.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tagstats/internal/pathtree"
	"tagstats/internal/query"
	"tagstats/internal/reports"
	"tagstats/internal/timeseries"
)

// startableTypes are the reports a caller may request. The event_graph and
// endpoint documents are byproducts of a url_links run.
var startableTypes = map[string]bool{
	reports.TypeURLLinks:           true,
	reports.TypeURLTable:           true,
	reports.TypeEventTable:         true,
	reports.TypePageviewTimeSeries: true,
}

// ValidType reports whether reportType names a startable report.
func ValidType(reportType string) bool {
	return startableTypes[reportType]
}

// Orchestrator coordinates the two report phases. Start and Collect back the
// split HTTP API; Run chains them for batch callers.
type Orchestrator struct {
	executor *query.Executor
	builder  query.Builder
	writer   *reports.Writer
	logger   *slog.Logger
}

// New builds an orchestrator over the given query table and report writer.
func New(executor *query.Executor, builder query.Builder, writer *reports.Writer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		executor: executor,
		builder:  builder,
		writer:   writer,
		logger:   logger,
	}
}

func (o *Orchestrator) buildSQL(org, tid, reportType string, stime, etime time.Time) (string, error) {
	switch reportType {
	case reports.TypeURLLinks:
		return o.builder.URLLinks(org, tid, stime, etime), nil
	case reports.TypeURLTable:
		return o.builder.URLTable(org, tid, stime, etime), nil
	case reports.TypeEventTable:
		return o.builder.EventTable(org, tid, stime, etime), nil
	case reports.TypePageviewTimeSeries:
		// Extra history ahead of the range seeds the trailing windows.
		lookback := stime.AddDate(0, 0, -timeseries.Lookback())
		return o.builder.PageviewDaily(org, tid, lookback, etime), nil
	default:
		return "", fmt.Errorf("unknown report type %q", reportType)
	}
}

// Start submits the bulk query for one report and returns its execution id
// without waiting on it.
func (o *Orchestrator) Start(ctx context.Context, org, tid, reportType string, stime, etime time.Time) (string, error) {
	sql, err := o.buildSQL(org, tid, reportType, stime, etime)
	if err != nil {
		return "", err
	}

	id, err := o.executor.Submit(ctx, sql)
	if err != nil {
		return "", err
	}

	o.logger.Info("Started report query",
		slog.String("tid", tid),
		slog.String("type", reportType),
		slog.String("execution_id", id))
	return id, nil
}

// Collect waits for a started execution to finish, ingests its result set
// and writes the report documents. It returns the keys of every written
// object. Nothing is written unless the query succeeded and the full result
// set decoded.
func (o *Orchestrator) Collect(ctx context.Context, org, tid, reportType, executionID string, stime, etime time.Time) ([]string, error) {
	if !ValidType(reportType) {
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}

	if _, err := o.executor.Complete(ctx, query.Request{Org: org, TID: tid}, executionID); err != nil {
		return nil, err
	}

	rc, err := o.executor.Fetch(ctx, executionID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var keys []string
	write := func(doc reports.Document) error {
		key, err := o.writer.Write(ctx, org, doc, stime, etime)
		if err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	}

	switch reportType {
	case reports.TypeURLLinks:
		rows, err := reports.DecodeLinkRows(rc)
		if err != nil {
			return nil, err
		}
		urls, links := reports.MergeLinks(rows)

		linksDoc := reports.Document{Meta: reports.NewMeta(tid, reports.TypeURLLinks, stime, etime), URLs: urls, URLLinks: links}
		graphDoc := reports.Document{Meta: reports.NewMeta(tid, reports.TypeEventGraph, stime, etime), Result: rows}
		if err := write(linksDoc); err != nil {
			return nil, err
		}
		if err := write(graphDoc); err != nil {
			return nil, err
		}
		if err := o.seedEndpointDoc(ctx, org, tid, urls); err != nil {
			return nil, err
		}

	case reports.TypeURLTable:
		rows, err := reports.DecodeURLTableRows(rc)
		if err != nil {
			return nil, err
		}
		doc := reports.Document{Meta: reports.NewMeta(tid, reports.TypeURLTable, stime, etime), Table: reports.MergeURLTable(rows)}
		if err := write(doc); err != nil {
			return nil, err
		}

	case reports.TypeEventTable:
		rows, err := reports.DecodeEventTableRows(rc)
		if err != nil {
			return nil, err
		}
		doc := reports.Document{Meta: reports.NewMeta(tid, reports.TypeEventTable, stime, etime), EventTable: reports.MergeEventTable(rows)}
		if err := write(doc); err != nil {
			return nil, err
		}

	case reports.TypePageviewTimeSeries:
		counts, err := reports.DecodeDailyCounts(rc)
		if err != nil {
			return nil, err
		}
		lookback := stime.AddDate(0, 0, -timeseries.Lookback())
		filled := timeseries.ZeroFill(counts, lookback, etime)
		rows := timeseries.Roll(filled, stime.Format(timeseries.DateFormat))
		doc := reports.Document{Meta: reports.NewMeta(tid, reports.TypePageviewTimeSeries, stime, etime), Series: rows}
		if err := write(doc); err != nil {
			return nil, err
		}
	}

	o.logger.Info("Collected report",
		slog.String("tid", tid),
		slog.String("type", reportType),
		slog.String("execution_id", executionID),
		slog.Int("documents", len(keys)))
	return keys, nil
}

// seedEndpointDoc writes the endpoint documentation skeleton inferred from
// the observed URLs, unless the container already has one.
func (o *Orchestrator) seedEndpointDoc(ctx context.Context, org, tid string, urls []string) error {
	exists, err := o.writer.HasEndpointDoc(ctx, org, tid)
	if err != nil || exists {
		return err
	}
	_, err = o.writer.WriteEndpointDoc(ctx, org, tid, pathtree.Build(urls).EndpointDoc())
	return err
}

// Run generates one report synchronously.
func (o *Orchestrator) Run(ctx context.Context, org, tid, reportType string, stime, etime time.Time) ([]string, error) {
	id, err := o.Start(ctx, org, tid, reportType, stime, etime)
	if err != nil {
		return nil, err
	}
	return o.Collect(ctx, org, tid, reportType, id, stime, etime)
}

// Presign converts written document keys into time-limited download URLs.
func (o *Orchestrator) Presign(ctx context.Context, keys []string) ([]string, error) {
	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		u, err := o.writer.Presign(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", key, err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}
