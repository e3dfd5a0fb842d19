package query_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tagstats/internal/query"
)

var (
	stime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	etime = time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)
)

func TestBaseCriteriaPrunesPartitionsAndTime(t *testing.T) {
	c := query.BaseCriteria("acme", "shop", stime, etime)

	assert.Contains(t, c, "org = 'acme'")
	assert.Contains(t, c, "tid = 'shop'")
	assert.Contains(t, c, "year * 10000 + month * 100 + day >= 20240101")
	assert.Contains(t, c, "year * 10000 + month * 100 + day <= 20240107")
	assert.Contains(t, c, "datetime >= timestamp '2024-01-01 00:00:00'")
	assert.Contains(t, c, "datetime <= timestamp '2024-01-07 23:59:59'")
	assert.Contains(t, c, "JSON_EXTRACT_SCALAR(qs, '$.o_s') IS NOT NULL")
}

func TestEscapeLiteralDoublesQuotes(t *testing.T) {
	assert.Equal(t, "o''reilly", query.EscapeLiteral("o'reilly"))
	c := query.BaseCriteria("o'rg", "t'id", stime, etime)
	assert.Contains(t, c, "org = 'o''rg'")
	assert.Contains(t, c, "tid = 't''id'")
}

func TestRegexLiteralQuotesMetacharacters(t *testing.T) {
	assert.Equal(t, `/cart\?x=1`, query.RegexLiteral("/cart?x=1"))
	assert.Equal(t, `it''s\.done`, query.RegexLiteral("it's.done"))
}

func TestDayCriteriaUnpaddedPartitions(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	c := query.DayCriteria("acme", "shop", day)
	assert.Equal(t, "org = 'acme' AND tid = 'shop' AND year = 2024 AND month = 3 AND day = 5", c)
}

func TestReportQueriesCarryGrouping(t *testing.T) {
	b := query.Builder{Table: "analytics.events"}

	links := b.URLLinks("acme", "shop", stime, etime)
	assert.Contains(t, links, "JSON_EXTRACT_SCALAR(qs, '$.o_pl') AS p_url")
	assert.Contains(t, links, "arbitrary(JSON_EXTRACT_SCALAR(qs, '$.o_xpath')) AS xpath")
	assert.Contains(t, links, "GROUP BY")

	events := b.EventTable("acme", "shop", stime, etime)
	assert.Contains(t, events, "JSON_EXTRACT_SCALAR(qs, '$.el') AS label")

	daily := b.PageviewDaily("acme", "shop", stime, etime)
	assert.Contains(t, daily, "COUNT(DISTINCT JSON_EXTRACT_SCALAR(qs, '$.o_psid')) AS session_count")
	assert.Contains(t, daily, "JSON_EXTRACT_SCALAR(qs, '$.o_s') = 'pageview'")

	table := b.URLTable("acme", "shop", stime, etime)
	assert.Contains(t, table, "LIKE 'scroll_%'")
	assert.Contains(t, table, "LIKE 'click_widget_%'")
	assert.Contains(t, table, "LIKE 'click_trivial_%'")
	assert.Contains(t, table, "MAX(CAST(JSON_EXTRACT_SCALAR(qs, '$.plt') AS decimal)) AS max_plt")
}

func TestUsageRollupQuery(t *testing.T) {
	b := query.Builder{Table: "analytics.usage"}
	sql := b.UsageRollup(2024, 2)
	assert.Contains(t, sql, "WHERE year = 2024 AND month = 2")
	assert.Contains(t, sql, "GROUP BY type, org, tid")
}
