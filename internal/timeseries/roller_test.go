package timeseries_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstats/internal/timeseries"
)

func day(offset int) time.Time {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestRollAllOnesSeries(t *testing.T) {
	// 40 days of ones, reporting over the last 10 with 30 days of lookback.
	var daily []timeseries.DailyCount
	for i := 0; i < 40; i++ {
		daily = append(daily, timeseries.DailyCount{
			Date:          day(i).Format(timeseries.DateFormat),
			PageviewCount: 1,
			SessionCount:  1,
			UserCount:     1,
		})
	}
	start := day(30).Format(timeseries.DateFormat)

	rows := timeseries.Roll(daily, start)
	require.Len(t, rows, 10)
	for _, r := range rows {
		assert.Equal(t, int64(1), r.PageviewCount)
		assert.Equal(t, int64(3), r.PageviewCount3Days)
		assert.Equal(t, int64(7), r.PageviewCount7Days)
		assert.Equal(t, int64(14), r.PageviewCount14Days)
		assert.Equal(t, int64(30), r.PageviewCount30Days)
		assert.Equal(t, int64(7), r.SessionCount7Days)
		assert.Equal(t, int64(30), r.UserCount30Days)
	}
}

func TestRollTruncatesLookback(t *testing.T) {
	daily := []timeseries.DailyCount{
		{Date: "2024-03-01", PageviewCount: 5},
		{Date: "2024-03-02", PageviewCount: 7},
		{Date: "2024-03-03", PageviewCount: 2},
	}
	rows := timeseries.Roll(daily, "2024-03-03")
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-03-03", rows[0].Date)
	assert.Equal(t, int64(2), rows[0].PageviewCount)
	assert.Equal(t, int64(14), rows[0].PageviewCount3Days)
}

func TestZeroFill(t *testing.T) {
	daily := []timeseries.DailyCount{
		{Date: "2024-03-02", PageviewCount: 4, SessionCount: 2, UserCount: 1},
	}
	filled := timeseries.ZeroFill(daily, day(0), day(3))
	require.Len(t, filled, 4)
	assert.Equal(t, "2024-03-01", filled[0].Date)
	assert.Zero(t, filled[0].PageviewCount)
	assert.Equal(t, int64(4), filled[1].PageviewCount)
	assert.Zero(t, filled[2].PageviewCount)
	assert.Equal(t, "2024-03-04", filled[3].Date)
}

func TestLookbackMatchesLargestWindow(t *testing.T) {
	assert.Equal(t, 30, timeseries.Lookback())
}
