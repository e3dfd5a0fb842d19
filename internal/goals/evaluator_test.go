package goals_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstats/internal/containers"
	"tagstats/internal/goals"
	"tagstats/internal/query"
	"tagstats/internal/testsupport"
)

type fakeContainerStore struct {
	items []containers.Container
}

func (f *fakeContainerStore) Get(_ context.Context, tid string) (*containers.Container, error) {
	for i := range f.items {
		if f.items[i].TID == tid {
			return &f.items[i], nil
		}
	}
	return nil, containers.ErrNotFound
}

func (f *fakeContainerStore) ScanWithGoals(_ context.Context, visit func(containers.Container) error) error {
	for _, c := range f.items {
		if len(c.Goals) == 0 {
			continue
		}
		if err := visit(c); err != nil {
			return err
		}
	}
	return nil
}

func newEvaluator(svc *testsupport.FakeQueryService, cs containers.Store, rs goals.ResultStore) *goals.Evaluator {
	ex := query.NewExecutor(svc, query.DefaultPolicy(), nil, testsupport.Logger()).
		WithSleeper(&testsupport.RecordingSleeper{})
	return goals.NewEvaluator(cs, ex, rs, "analytics.events", testsupport.Logger())
}

func TestUpsertReplacesSameDateAndSorts(t *testing.T) {
	records := []goals.ResultRecord{
		{Date: "2024-01-02", EventCount: 5, UserCount: 2},
	}

	records = goals.Upsert(records, goals.ResultRecord{Date: "2024-01-01", EventCount: 1, UserCount: 1})
	records = goals.Upsert(records, goals.ResultRecord{Date: "2024-01-02", EventCount: 9, UserCount: 4})

	require.Len(t, records, 2)
	assert.Equal(t, "2024-01-01", records[0].Date)
	assert.Equal(t, int64(9), records[1].EventCount, "re-evaluation replaces the day's record")
	assert.Equal(t, int64(4), records[1].UserCount)
}

func TestEvaluateDateWritesResultDocument(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: testsupport.Succeeded(),
		CSV:    "e_count,u_count\n5,3\n",
	}
	store := testsupport.NewMemoryObjectStore()
	rs := goals.NewDocumentResultStore(store, "stats/")

	c := &containers.Container{TID: "shop", Organization: "acme"}
	g := containers.Goal{ID: "g1", Target: "signup"}
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	ev := newEvaluator(svc, &fakeContainerStore{}, rs)
	require.NoError(t, ev.EvaluateDate(context.Background(), c, g, day))

	body, err := store.Get(context.Background(), "stats/acme/shop_g1_goal_result.json")
	require.NoError(t, err)

	var records []goals.ResultRecord
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, goals.ResultRecord{Date: "2024-03-05", EventCount: 5, UserCount: 3}, records[0])
}

func TestEvaluateDateUpsertsZeroCounts(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: testsupport.Succeeded(),
		CSV:    "e_count,u_count\n0,0\n",
	}
	store := testsupport.NewMemoryObjectStore()
	rs := goals.NewDocumentResultStore(store, "stats/")

	c := &containers.Container{TID: "shop", Organization: "root"}
	g := containers.Goal{ID: "g1", Target: "signup"}
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	ev := newEvaluator(svc, &fakeContainerStore{}, rs)
	require.NoError(t, ev.EvaluateDate(context.Background(), c, g, day))

	// Root org containers live directly under the prefix.
	records, err := rs.Load(context.Background(), "root", "shop", "g1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Zero(t, records[0].EventCount, "a day with no matches still gets a record")
}

func TestEvaluateRangeUpsertsReturnedDays(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: testsupport.Succeeded(),
		CSV:    "date,e_count,u_count\n20240305,4,2\n20240307,1,1\n",
	}
	store := testsupport.NewMemoryObjectStore()
	rs := goals.NewDocumentResultStore(store, "stats/")

	c := &containers.Container{TID: "shop", Organization: "acme"}
	g := containers.Goal{ID: "g1", Target: "signup"}
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	ev := newEvaluator(svc, &fakeContainerStore{}, rs)
	require.NoError(t, ev.EvaluateRange(context.Background(), c, g, start, end))

	records, err := rs.Load(context.Background(), "acme", "shop", "g1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-03-05", records[0].Date)
	assert.Equal(t, "2024-03-07", records[1].Date)
	assert.Equal(t, int64(4), records[0].EventCount)
}

func TestEvaluateDateRejectsInvalidGoalWithoutQuerying(t *testing.T) {
	svc := &testsupport.FakeQueryService{Script: testsupport.Succeeded()}
	rs := goals.NewDocumentResultStore(testsupport.NewMemoryObjectStore(), "stats/")

	c := &containers.Container{TID: "shop", Organization: "acme"}
	bad := containers.Goal{ID: "g1", Target: "sign(up", TargetMatch: containers.MatchRegex}

	ev := newEvaluator(svc, &fakeContainerStore{}, rs)
	require.Error(t, ev.EvaluateDate(context.Background(), c, bad, time.Now()))
	assert.Empty(t, svc.Submitted, "invalid goals never reach the query engine")
}

func TestEvaluateAllForDateContinuesPastFailures(t *testing.T) {
	svc := &testsupport.FakeQueryService{
		Script: testsupport.Succeeded(),
		CSV:    "e_count,u_count\n2,1\n",
	}
	store := testsupport.NewMemoryObjectStore()
	rs := goals.NewDocumentResultStore(store, "stats/")

	cs := &fakeContainerStore{items: []containers.Container{
		{TID: "a", Organization: "acme", Goals: []containers.Goal{
			{ID: "bad", Target: "x(", TargetMatch: containers.MatchRegex},
			{ID: "good", Target: "signup"},
		}},
		{TID: "b", Organization: "acme"},
	}}

	ev := newEvaluator(svc, cs, rs)
	err := ev.EvaluateAllForDate(context.Background(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.Error(t, err, "failures are reported after the batch completes")

	records, loadErr := rs.Load(context.Background(), "acme", "a", "good")
	require.NoError(t, loadErr)
	require.Len(t, records, 1, "the healthy goal still evaluated")
}
