// Package timeseries computes trailing moving sums over daily count series.
// The query engine returns a plain per-day rollup; the rolling windows the
// dashboard charts need are derived here so the query stays cheap.
package timeseries

import "time"

// DateFormat is the calendar-date key used throughout report documents.
const DateFormat = "2006-01-02"

// Windows are the trailing window sizes, in days, applied to every series.
var Windows = []int{3, 7, 14, 30}

// Lookback returns the number of extra days of history a caller must request
// ahead of its reporting range so every window is fully seeded.
func Lookback() int {
	return Windows[len(Windows)-1]
}

// DailyCount is one day of raw pageview activity.
type DailyCount struct {
	Date          string `json:"date"`
	PageviewCount int64  `json:"pageview_count"`
	SessionCount  int64  `json:"session_count"`
	UserCount     int64  `json:"user_count"`
}

// Row is one day of the rolled series.
type Row struct {
	Date                string `json:"date"`
	PageviewCount       int64  `json:"pageview_count"`
	PageviewCount3Days  int64  `json:"pageview_count_3days"`
	PageviewCount7Days  int64  `json:"pageview_count_7days"`
	PageviewCount14Days int64  `json:"pageview_count_14days"`
	PageviewCount30Days int64  `json:"pageview_count_30days"`
	SessionCount        int64  `json:"session_count"`
	SessionCount3Days   int64  `json:"session_count_3days"`
	SessionCount7Days   int64  `json:"session_count_7days"`
	SessionCount14Days  int64  `json:"session_count_14days"`
	SessionCount30Days  int64  `json:"session_count_30days"`
	UserCount           int64  `json:"user_count"`
	UserCount3Days      int64  `json:"user_count_3days"`
	UserCount7Days      int64  `json:"user_count_7days"`
	UserCount14Days     int64  `json:"user_count_14days"`
	UserCount30Days     int64  `json:"user_count_30days"`
}

// ZeroFill returns a gap-free, date-ordered copy of daily covering the closed
// range [from, to]. Dates absent from the input get zero counts.
func ZeroFill(daily []DailyCount, from, to time.Time) []DailyCount {
	byDate := make(map[string]DailyCount, len(daily))
	for _, d := range daily {
		byDate[d.Date] = d
	}

	var out []DailyCount
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := day.Format(DateFormat)
		if d, ok := byDate[key]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, DailyCount{Date: key})
	}
	return out
}

// Roll computes the trailing window sums over a gap-free, date-ordered daily
// series and returns only the rows on or after startDate. The rows before
// startDate are lookback scratch that seeds the windows; the input must hold
// at least Lookback()-1 days of it for the sums at startDate to be exact.
func Roll(daily []DailyCount, startDate string) []Row {
	n := len(daily)
	pv := make([]int64, n+1)
	sess := make([]int64, n+1)
	usr := make([]int64, n+1)
	for i, d := range daily {
		pv[i+1] = pv[i] + d.PageviewCount
		sess[i+1] = sess[i] + d.SessionCount
		usr[i+1] = usr[i] + d.UserCount
	}

	trailing := func(prefix []int64, i, w int) int64 {
		lo := i + 1 - w
		if lo < 0 {
			lo = 0
		}
		return prefix[i+1] - prefix[lo]
	}

	var out []Row
	for i, d := range daily {
		if d.Date < startDate {
			continue
		}
		out = append(out, Row{
			Date:                d.Date,
			PageviewCount:       d.PageviewCount,
			PageviewCount3Days:  trailing(pv, i, 3),
			PageviewCount7Days:  trailing(pv, i, 7),
			PageviewCount14Days: trailing(pv, i, 14),
			PageviewCount30Days: trailing(pv, i, 30),
			SessionCount:        d.SessionCount,
			SessionCount3Days:   trailing(sess, i, 3),
			SessionCount7Days:   trailing(sess, i, 7),
			SessionCount14Days:  trailing(sess, i, 14),
			SessionCount30Days:  trailing(sess, i, 30),
			UserCount:           d.UserCount,
			UserCount3Days:      trailing(usr, i, 3),
			UserCount7Days:      trailing(usr, i, 7),
			UserCount14Days:     trailing(usr, i, 14),
			UserCount30Days:     trailing(usr, i, 30),
		})
	}
	return out
}
