// Package reports turns raw bulk-query result sets into the aggregated,
// query-ready report documents the dashboards read.
package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"tagstats/internal/timeseries"
)

// LinkRow is one raw dimension combination from the url_links query, also
// the row shape of the event_graph document.
type LinkRow struct {
	URL       string `json:"url"`
	PrevURL   string `json:"p_url"`
	Title     string `json:"title"`
	State     string `json:"state"`
	PrevState string `json:"p_state"`
	Label     string `json:"label"`
	AID       string `json:"a_id"`
	XPath     string `json:"xpath"`
	Class     string `json:"class"`
	Count     int64  `json:"count"`
}

// URLTableRow is one hour-bucketed page engagement row. Numeric measures are
// zero-coerced on ingestion: the engine's outer joins yield empty fields,
// which merge as zero rather than poisoning sums.
type URLTableRow struct {
	Datetime          string   `json:"datetime"`
	URL               string   `json:"url"`
	Title             string   `json:"title"`
	PrevURL           string   `json:"p_url"`
	Count             int64    `json:"count"`
	SessionCount      int64    `json:"session_count"`
	UserCount         int64    `json:"user_count"`
	ScrollCount       int64    `json:"s_count"`
	SumScrollY        float64  `json:"sum_scroll_y"`
	MaxScrollY        float64  `json:"max_scroll_y"`
	EventCount        int64    `json:"event_count"`
	WidgetClickCount  int64    `json:"w_click_count"`
	TrivialClickCount int64    `json:"t_click_count"`
	PltCount          int64    `json:"plt_count"`
	SumPlt            float64  `json:"sum_plt"`
	MaxPlt            float64  `json:"max_plt"`
	AvgScrollY        *float64 `json:"avg_scroll_y"`
	AvgPlt            *float64 `json:"avg_plt"`
}

// EventTableRow is one flat event count per url/title/state/label.
type EventTableRow struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	State string `json:"state"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// URLLink is one merged navigation edge between two normalized URLs.
type URLLink struct {
	URL     string `json:"url"`
	PrevURL string `json:"p_url"`
	Title   string `json:"title"`
	Count   int64  `json:"count"`
}

// table is a header-indexed CSV result set.
type table struct {
	index map[string]int
	rows  [][]string
}

func readTable(r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read result csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("result csv has no header row")
	}

	t := &table{index: make(map[string]int, len(records[0])), rows: records[1:]}
	for i, col := range records[0] {
		t.index[col] = i
	}
	for _, col := range required {
		if _, ok := t.index[col]; !ok {
			return nil, fmt.Errorf("result csv is missing column %q", col)
		}
	}
	return t, nil
}

func (t *table) str(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// int64At parses an integer measure, coercing empty/absent to zero.
func (t *table) int64At(row []string, col string) int64 {
	s := t.str(row, col)
	if s == "" {
		return 0
	}
	// Decimal-typed measures may arrive as "12.0".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// floatAt parses a numeric measure, coercing empty/absent to zero.
func (t *table) floatAt(row []string, col string) float64 {
	s := t.str(row, col)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// DecodeLinkRows reads a url_links result set.
func DecodeLinkRows(r io.Reader) ([]LinkRow, error) {
	t, err := readTable(r, "url", "p_url", "state", "count")
	if err != nil {
		return nil, err
	}
	rows := make([]LinkRow, 0, len(t.rows))
	for _, rec := range t.rows {
		rows = append(rows, LinkRow{
			URL:       t.str(rec, "url"),
			PrevURL:   t.str(rec, "p_url"),
			Title:     t.str(rec, "title"),
			State:     t.str(rec, "state"),
			PrevState: t.str(rec, "p_state"),
			Label:     t.str(rec, "label"),
			AID:       t.str(rec, "a_id"),
			XPath:     t.str(rec, "xpath"),
			Class:     t.str(rec, "class"),
			Count:     t.int64At(rec, "count"),
		})
	}
	return rows, nil
}

// DecodeURLTableRows reads a url_table result set.
func DecodeURLTableRows(r io.Reader) ([]URLTableRow, error) {
	t, err := readTable(r, "datetime", "url", "p_url", "count")
	if err != nil {
		return nil, err
	}
	rows := make([]URLTableRow, 0, len(t.rows))
	for _, rec := range t.rows {
		rows = append(rows, URLTableRow{
			Datetime:          t.str(rec, "datetime"),
			URL:               t.str(rec, "url"),
			Title:             t.str(rec, "title"),
			PrevURL:           t.str(rec, "p_url"),
			Count:             t.int64At(rec, "count"),
			SessionCount:      t.int64At(rec, "session_count"),
			UserCount:         t.int64At(rec, "user_count"),
			ScrollCount:       t.int64At(rec, "s_count"),
			SumScrollY:        t.floatAt(rec, "sum_scroll_y"),
			MaxScrollY:        t.floatAt(rec, "max_scroll_y"),
			EventCount:        t.int64At(rec, "event_count"),
			WidgetClickCount:  t.int64At(rec, "w_click_count"),
			TrivialClickCount: t.int64At(rec, "t_click_count"),
			PltCount:          t.int64At(rec, "plt_count"),
			SumPlt:            t.floatAt(rec, "sum_plt"),
			MaxPlt:            t.floatAt(rec, "max_plt"),
		})
	}
	return rows, nil
}

// DecodeEventTableRows reads an event_table result set.
func DecodeEventTableRows(r io.Reader) ([]EventTableRow, error) {
	t, err := readTable(r, "url", "state", "count")
	if err != nil {
		return nil, err
	}
	rows := make([]EventTableRow, 0, len(t.rows))
	for _, rec := range t.rows {
		rows = append(rows, EventTableRow{
			URL:   t.str(rec, "url"),
			Title: t.str(rec, "title"),
			State: t.str(rec, "state"),
			Label: t.str(rec, "label"),
			Count: t.int64At(rec, "count"),
		})
	}
	return rows, nil
}

// DecodeDailyCounts reads a daily pageview rollup result set.
func DecodeDailyCounts(r io.Reader) ([]timeseries.DailyCount, error) {
	t, err := readTable(r, "date", "pageview_count")
	if err != nil {
		return nil, err
	}
	counts := make([]timeseries.DailyCount, 0, len(t.rows))
	for _, rec := range t.rows {
		counts = append(counts, timeseries.DailyCount{
			Date:          t.str(rec, "date"),
			PageviewCount: t.int64At(rec, "pageview_count"),
			SessionCount:  t.int64At(rec, "session_count"),
			UserCount:     t.int64At(rec, "user_count"),
		})
	}
	return counts, nil
}
