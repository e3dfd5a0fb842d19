package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstats/internal/pipeline"
	"tagstats/internal/query"
	"tagstats/internal/reports"
	"tagstats/internal/testsupport"
)

var (
	stime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	etime = time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)
)

func newOrchestrator(svc *testsupport.FakeQueryService, store *testsupport.MemoryObjectStore) *pipeline.Orchestrator {
	ex := query.NewExecutor(svc, query.DefaultPolicy(), nil, testsupport.Logger()).
		WithSleeper(&testsupport.RecordingSleeper{})
	writer := reports.NewWriter(store, "stats/").WithSuffix(func() string { return "suffix" })
	return pipeline.New(ex, query.Builder{Table: "analytics.events"}, writer, testsupport.Logger())
}

func TestRunURLLinksWritesLinksGraphAndEndpointDocs(t *testing.T) {
	csv := "url,p_url,title,state,p_state,label,a_id,xpath,class,count\n" +
		`"http://a.com/x?s=1","http://a.com/","X","pageview","","","","","",1` + "\n" +
		`"http://a.com/x","http://a.com/","X","pageview","","","","","",2` + "\n"
	svc := &testsupport.FakeQueryService{Script: testsupport.Succeeded(), CSV: csv}
	store := testsupport.NewMemoryObjectStore()

	o := newOrchestrator(svc, store)
	keys, err := o.Run(context.Background(), "acme", "shop", reports.TypeURLLinks, stime, etime)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	assert.Equal(t, "stats/acme/shop/20240101000000_20240107235959_url_links_suffix.json", keys[0])
	assert.Equal(t, "stats/acme/shop/20240101000000_20240107235959_event_graph_suffix.json", keys[1])

	body, err := store.Get(context.Background(), keys[0])
	require.NoError(t, err)
	var doc reports.Document
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, reports.Version, doc.Meta.Version)
	assert.Equal(t, []string{"http://a.com/x", "http://a.com/"}, doc.URLs)
	require.Len(t, doc.URLLinks, 1)
	assert.Equal(t, int64(3), doc.URLLinks[0].Count, "query-string variants merge")

	docBody, err := store.Get(context.Background(), reports.EndpointDocKey("acme", "shop"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"paths":{"/":{},"/x":{}}}`, string(docBody))
}

func TestRunDoesNotClobberExistingEndpointDoc(t *testing.T) {
	csv := "url,p_url,title,state,p_state,label,a_id,xpath,class,count\n" +
		`"http://a.com/x","","X","pageview","","","","","",1` + "\n"
	svc := &testsupport.FakeQueryService{Script: testsupport.Succeeded(), CSV: csv}
	store := testsupport.NewMemoryObjectStore()

	edited := []byte(`{"paths":{"/custom":{}}}`)
	key := reports.EndpointDocKey("acme", "shop")
	require.NoError(t, store.Put(context.Background(), key, edited, "application/json"))

	o := newOrchestrator(svc, store)
	_, err := o.Run(context.Background(), "acme", "shop", reports.TypeURLLinks, stime, etime)
	require.NoError(t, err)

	body, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, edited, body, "edited endpoint docs survive report runs")
}

func TestRunTimeSeriesRollsWindows(t *testing.T) {
	// One pageview on every day of the range plus the lookback.
	csv := "date,pageview_count,session_count,user_count\n"
	for day := stime.AddDate(0, 0, -30); !day.After(etime); day = day.AddDate(0, 0, 1) {
		csv += day.Format("2006-01-02") + ",1,1,1\n"
	}
	svc := &testsupport.FakeQueryService{Script: testsupport.Succeeded(), CSV: csv}
	store := testsupport.NewMemoryObjectStore()

	o := newOrchestrator(svc, store)
	keys, err := o.Run(context.Background(), "acme", "shop", reports.TypePageviewTimeSeries, stime, etime)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	body, err := store.Get(context.Background(), keys[0])
	require.NoError(t, err)
	var doc reports.Document
	require.NoError(t, json.Unmarshal(body, &doc))

	require.Len(t, doc.Series, 7, "lookback days are scratch, not output")
	assert.Equal(t, "2024-01-01", doc.Series[0].Date)
	assert.Equal(t, int64(7), doc.Series[0].PageviewCount7Days)
	assert.Equal(t, int64(30), doc.Series[0].PageviewCount30Days)
}

func TestRunFailedQueryWritesNothing(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: []query.Status{
			{State: query.StateRunning},
			{State: query.StateFailed, Reason: "HIVE_BAD_DATA"},
		},
	}
	store := testsupport.NewMemoryObjectStore()

	o := newOrchestrator(svc, store)
	_, err := o.Run(context.Background(), "acme", "shop", reports.TypeURLTable, stime, etime)

	var failed *query.FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "HIVE_BAD_DATA", failed.Reason)
	assert.Empty(t, store.Objects, "no documents on failure")
}

func TestStartRejectsUnknownType(t *testing.T) {
	svc := &testsupport.FakeQueryService{Script: testsupport.Succeeded()}
	o := newOrchestrator(svc, testsupport.NewMemoryObjectStore())

	_, err := o.Start(context.Background(), "acme", "shop", "bogus", stime, etime)
	require.Error(t, err)
	assert.Empty(t, svc.Submitted)
}

func TestPresignReturnsOneURLPerKey(t *testing.T) {
	o := newOrchestrator(&testsupport.FakeQueryService{}, testsupport.NewMemoryObjectStore())

	urls, err := o.Presign(context.Background(), []string{"stats/a.json", "stats/b.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://signed.example/stats/a.json",
		"https://signed.example/stats/b.json",
	}, urls)
}
