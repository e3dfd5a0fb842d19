package jobs_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstats/internal/jobs"
	"tagstats/internal/query"
	"tagstats/internal/storage"
	"tagstats/internal/testsupport"
)

type recordingPutter struct {
	items []storage.MonthlyUsage
}

func (p *recordingPutter) PutMonthly(_ context.Context, usage storage.MonthlyUsage) error {
	p.items = append(p.items, usage)
	return nil
}

func TestBuildMonthlyUsageGroupsByOrganization(t *testing.T) {
	csv := "type,org,tid,size\n" +
		"athena_scan,acme,shop,1024\n" +
		"athena_scan,acme,blog,512\n" +
		"collect,acme,shop,2048\n" +
		"athena_scan,umbrella,portal,128\n"

	items, err := jobs.BuildMonthlyUsage(strings.NewReader(csv), 2024, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)

	acme := items[0]
	assert.Equal(t, "acme", acme.Organization)
	assert.Equal(t, int64(2024*1000+2), acme.Month)
	assert.Equal(t, int64(1536), acme.AthenaScanSize)
	assert.Equal(t, int64(2048), acme.CollectSize)
	assert.Len(t, acme.Details, 3)

	assert.Equal(t, "umbrella", items[1].Organization)
	assert.Equal(t, int64(128), items[1].AthenaScanSize)
}

func TestBuildMonthlyUsageLeavesUnknownTypesInDetailsOnly(t *testing.T) {
	csv := "type,org,tid,size\n" +
		"athena_scan,acme,shop,100\n" +
		"collect,acme,shop,200\n" +
		"replay,acme,shop,999\n"

	items, err := jobs.BuildMonthlyUsage(strings.NewReader(csv), 2024, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, int64(100), items[0].AthenaScanSize)
	assert.Equal(t, int64(200), items[0].CollectSize)
	require.Len(t, items[0].Details, 3, "unknown types still appear in the details")
	assert.Equal(t, "replay", items[0].Details[2].Type)
}

func TestBuildMonthlyUsageRejectsMissingColumns(t *testing.T) {
	_, err := jobs.BuildMonthlyUsage(strings.NewReader("type,org,size\n"), 2024, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tid")
}

func TestUsageJobRollsUpPreviousMonth(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: testsupport.Succeeded(),
		CSV:    "type,org,tid,size\nathena_scan,acme,shop,64\n",
	}
	ex := query.NewExecutor(svc, query.DefaultPolicy(), nil, testsupport.Logger()).
		WithSleeper(&testsupport.RecordingSleeper{})
	putter := &recordingPutter{}

	job := jobs.NewUsageJob(ex, query.Builder{Table: "analytics.usage"}, putter, testsupport.Logger()).
		WithClock(func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) })

	require.NoError(t, job.Run())

	require.Len(t, svc.Submitted, 1)
	assert.Contains(t, svc.Submitted[0], "WHERE year = 2024 AND month = 2", "rolls up the previous month")

	require.Len(t, putter.items, 1)
	assert.Equal(t, int64(2024*1000+2), putter.items[0].Month)
	assert.Equal(t, int64(64), putter.items[0].AthenaScanSize)
}
