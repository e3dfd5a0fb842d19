package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Builder assembles the report queries against the raw event log. All
// user-influenced literals pass through EscapeLiteral / RegexLiteral; the
// engine offers no parameter binding for DDL-less bulk queries, so quoting
// is centralized here.
type Builder struct {
	Table string
}

// EscapeLiteral doubles single quotes for embedding in a SQL string literal.
func EscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// RegexLiteral quotes regex metacharacters and SQL quotes, for anchored
// literal matching inside regexp_like.
func RegexLiteral(s string) string {
	return EscapeLiteral(regexp.QuoteMeta(s))
}

// BaseCriteria restricts a query to one container and time range, pruning on
// the physical date partitions before the exact datetime bounds apply.
func BaseCriteria(org, tid string, stime, etime time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, " org = '%s'", EscapeLiteral(org))
	fmt.Fprintf(&b, " AND tid = '%s'", EscapeLiteral(tid))
	fmt.Fprintf(&b, " AND year * 10000 + month * 100 + day >= %s", stime.Format("20060102"))
	fmt.Fprintf(&b, " AND year * 10000 + month * 100 + day <= %s", etime.Format("20060102"))
	fmt.Fprintf(&b, " AND datetime >= timestamp '%s'", stime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, " AND datetime <= timestamp '%s'", etime.Format("2006-01-02 15:04:05"))
	b.WriteString(" AND JSON_EXTRACT_SCALAR(qs, '$.o_s') IS NOT NULL")
	return b.String()
}

// DayCriteria restricts a query to one container and one calendar day using
// only the physical partitions.
func DayCriteria(org, tid string, day time.Time) string {
	return fmt.Sprintf("org = '%s' AND tid = '%s' AND year = %d AND month = %d AND day = %d",
		EscapeLiteral(org), EscapeLiteral(tid), day.Year(), int(day.Month()), day.Day())
}

// DateRangeCriteria restricts a query to one container and a closed calendar
// date range using the partition columns.
func DateRangeCriteria(org, tid string, start, end time.Time) string {
	return fmt.Sprintf("org = '%s' AND tid = '%s' AND year * 10000 + month * 100 + day >= %s AND year * 10000 + month * 100 + day <= %s",
		EscapeLiteral(org), EscapeLiteral(tid), start.Format("20060102"), end.Format("20060102"))
}

// URLLinks produces the per-dimension event counts feeding the url_links and
// event_graph reports.
func (b Builder) URLLinks(org, tid string, stime, etime time.Time) string {
	return fmt.Sprintf(`SELECT
JSON_EXTRACT_SCALAR(qs, '$.dl') AS url,
JSON_EXTRACT_SCALAR(qs, '$.o_pl') AS p_url,
JSON_EXTRACT_SCALAR(qs, '$.dt') AS title,
JSON_EXTRACT_SCALAR(qs, '$.o_s') AS state,
JSON_EXTRACT_SCALAR(qs, '$.o_ps') AS p_state,
JSON_EXTRACT_SCALAR(qs, '$.el') AS label,
JSON_EXTRACT_SCALAR(qs, '$.o_a_id') AS a_id,
arbitrary(JSON_EXTRACT_SCALAR(qs, '$.o_xpath')) AS xpath,
arbitrary(JSON_EXTRACT_SCALAR(qs, '$.o_a_class')) AS class,
COUNT(*) AS count
FROM %s
WHERE%s
GROUP BY
JSON_EXTRACT_SCALAR(qs, '$.dl'),
JSON_EXTRACT_SCALAR(qs, '$.o_pl'),
JSON_EXTRACT_SCALAR(qs, '$.dt'),
JSON_EXTRACT_SCALAR(qs, '$.o_s'),
JSON_EXTRACT_SCALAR(qs, '$.o_ps'),
JSON_EXTRACT_SCALAR(qs, '$.el'),
JSON_EXTRACT_SCALAR(qs, '$.o_a_id')
`, b.Table, BaseCriteria(org, tid, stime, etime))
}

// EventTable produces the flat event counts per url/title/state/label.
func (b Builder) EventTable(org, tid string, stime, etime time.Time) string {
	return fmt.Sprintf(`SELECT
JSON_EXTRACT_SCALAR(qs, '$.dl') AS url,
JSON_EXTRACT_SCALAR(qs, '$.dt') AS title,
JSON_EXTRACT_SCALAR(qs, '$.o_s') AS state,
JSON_EXTRACT_SCALAR(qs, '$.el') AS label,
COUNT(*) AS count
FROM %s
WHERE%s
GROUP BY
JSON_EXTRACT_SCALAR(qs, '$.dl'),
JSON_EXTRACT_SCALAR(qs, '$.dt'),
JSON_EXTRACT_SCALAR(qs, '$.o_s'),
JSON_EXTRACT_SCALAR(qs, '$.el')
`, b.Table, BaseCriteria(org, tid, stime, etime))
}

// PageviewDaily produces the zero-unpadded daily pageview/session/user
// rollup; the time-series roller derives the trailing windows from it.
func (b Builder) PageviewDaily(org, tid string, stime, etime time.Time) string {
	return fmt.Sprintf(`SELECT
format_datetime(datetime, 'Y-MM-dd') AS date,
COUNT(*) AS pageview_count,
COUNT(DISTINCT JSON_EXTRACT_SCALAR(qs, '$.o_psid')) AS session_count,
COUNT(DISTINCT JSON_EXTRACT_SCALAR(qs, '$.cid')) AS user_count
FROM %s
WHERE JSON_EXTRACT_SCALAR(qs, '$.o_s') = 'pageview' AND%s
GROUP BY format_datetime(datetime, 'Y-MM-dd')
ORDER BY 1 ASC
`, b.Table, BaseCriteria(org, tid, stime, etime))
}

// URLTable produces the hour-bucketed per-page engagement table: pageview,
// session and user counts joined with scroll depth, raw event, widget and
// trivial click, and page-load-time rollups.
func (b Builder) URLTable(org, tid string, stime, etime time.Time) string {
	criteria := BaseCriteria(org, tid, stime, etime)
	const hourBucket = "format_datetime(datetime, 'yyyy-MM-dd HH:00:00ZZ')"
	return fmt.Sprintf(`WITH
scroll AS (
SELECT datet, url, p_url, COUNT(y) AS s_count, SUM(CAST(y AS decimal)) AS sum_scroll_y, MAX(CAST(y AS decimal)) AS max_scroll_y
FROM (
SELECT %[2]s AS datet,
JSON_EXTRACT_SCALAR(qs, '$.dl') AS url,
JSON_EXTRACT_SCALAR(qs, '$.o_pl') AS p_url,
MAX(JSON_EXTRACT_SCALAR(qs, '$.o_e_y')) AS y,
JSON_EXTRACT_SCALAR(qs, '$.cid') AS cid
FROM %[1]s
WHERE JSON_EXTRACT_SCALAR(qs, '$.o_s') LIKE 'scroll_%%' AND%[3]s
GROUP BY %[2]s, JSON_EXTRACT_SCALAR(qs, '$.dl'), JSON_EXTRACT_SCALAR(qs, '$.o_pl'), JSON_EXTRACT_SCALAR(qs, '$.cid')
) tmp
GROUP BY datet, url, p_url
),
event AS (
SELECT %[2]s AS datet,
JSON_EXTRACT_SCALAR(qs, '$.dl') AS url,
JSON_EXTRACT_SCALAR(qs, '$.o_pl') AS p_url,
COUNT(datetime) AS event_count
FROM %[1]s
WHERE%[3]s
GROUP BY %[2]s, JSON_EXTRACT_SCALAR(qs, '$.dl'), JSON_EXTRACT_SCALAR(qs, '$.o_pl')
),
widget_click AS (
SELECT %[2]s AS datet,
JSON_EXTRACT_SCALAR(qs, '$.dl') AS url,
JSON_EXTRACT_SCALAR(qs, '$.o_pl') AS p_url,
COUNT(datetime) AS w_click_count
FROM %[1]s
WHERE JSON_EXTRACT_SCALAR(qs, '$.o_s') LIKE 'click_widget_%%' AND%[3]s
GROUP BY %[2]s, JSON_EXTRACT_SCALAR(qs, '$.dl'), JSON_EXTRACT_SCALAR(qs, '$.o_pl')
),
trivial_click AS (
SELECT %[2]s AS datet,
JSON_EXTRACT_SCALAR(qs, '$.dl') AS url,
JSON_EXTRACT_SCALAR(qs, '$.o_pl') AS p_url,
COUNT(datetime) AS t_click_count
FROM %[1]s
WHERE JSON_EXTRACT_SCALAR(qs, '$.o_s') LIKE 'click_trivial_%%' AND%[3]s
GROUP BY %[2]s, JSON_EXTRACT_SCALAR(qs, '$.dl'), JSON_EXTRACT_SCALAR(qs, '$.o_pl')
),
plt AS (
SELECT %[2]s AS datet,
JSON_EXTRACT_SCALAR(qs, '$.dl') AS url,
JSON_EXTRACT_SCALAR(qs, '$.o_pl') AS p_url,
COUNT(JSON_EXTRACT_SCALAR(qs, '$.plt')) AS plt_count,
SUM(CAST(JSON_EXTRACT_SCALAR(qs, '$.plt') AS decimal)) AS sum_plt,
MAX(CAST(JSON_EXTRACT_SCALAR(qs, '$.plt') AS decimal)) AS max_plt
FROM %[1]s
WHERE JSON_EXTRACT_SCALAR(qs, '$.o_s') = 'pageview'
AND CAST(JSON_EXTRACT_SCALAR(qs, '$.plt') AS decimal) > 0
AND CAST(JSON_EXTRACT_SCALAR(qs, '$.plt') AS decimal) <= 30000
AND%[3]s
GROUP BY %[2]s, JSON_EXTRACT_SCALAR(qs, '$.dl'), JSON_EXTRACT_SCALAR(qs, '$.o_pl')
)
SELECT
%[2]s AS datetime,
JSON_EXTRACT_SCALAR(qs, '$.dl') AS url,
arbitrary(JSON_EXTRACT_SCALAR(qs, '$.dt')) AS title,
JSON_EXTRACT_SCALAR(qs, '$.o_pl') AS p_url,
COUNT(qs) AS count,
COUNT(DISTINCT JSON_EXTRACT_SCALAR(qs, '$.o_psid')) AS session_count,
COUNT(DISTINCT JSON_EXTRACT_SCALAR(qs, '$.cid')) AS user_count,
scroll.s_count,
scroll.sum_scroll_y,
scroll.max_scroll_y,
event.event_count,
widget_click.w_click_count,
trivial_click.t_click_count,
plt.plt_count,
plt.sum_plt,
plt.max_plt
FROM %[1]s
LEFT OUTER JOIN scroll ON (scroll.url = JSON_EXTRACT_SCALAR(qs, '$.dl') AND scroll.p_url = JSON_EXTRACT_SCALAR(qs, '$.o_pl') AND scroll.datet = %[2]s)
LEFT OUTER JOIN event ON (event.url = JSON_EXTRACT_SCALAR(qs, '$.dl') AND event.p_url = JSON_EXTRACT_SCALAR(qs, '$.o_pl') AND event.datet = %[2]s)
LEFT OUTER JOIN widget_click ON (widget_click.url = JSON_EXTRACT_SCALAR(qs, '$.dl') AND widget_click.p_url = JSON_EXTRACT_SCALAR(qs, '$.o_pl') AND widget_click.datet = %[2]s)
LEFT OUTER JOIN trivial_click ON (trivial_click.url = JSON_EXTRACT_SCALAR(qs, '$.dl') AND trivial_click.p_url = JSON_EXTRACT_SCALAR(qs, '$.o_pl') AND trivial_click.datet = %[2]s)
LEFT OUTER JOIN plt ON (plt.url = JSON_EXTRACT_SCALAR(qs, '$.dl') AND plt.p_url = JSON_EXTRACT_SCALAR(qs, '$.o_pl') AND plt.datet = %[2]s)
WHERE JSON_EXTRACT_SCALAR(qs, '$.o_s') = 'pageview' AND%[3]s
GROUP BY %[2]s,
JSON_EXTRACT_SCALAR(qs, '$.dl'),
JSON_EXTRACT_SCALAR(qs, '$.o_pl'),
s_count, sum_scroll_y, max_scroll_y, event_count, w_click_count, t_click_count, plt_count, sum_plt, max_plt
ORDER BY count DESC
`, b.Table, hourBucket, criteria)
}

// UsageRollup sums usage record sizes per type/org/container for one month.
func (b Builder) UsageRollup(year, month int) string {
	return fmt.Sprintf(`SELECT
type, org, tid, SUM(size) AS size
FROM %s
WHERE year = %d AND month = %d
GROUP BY type, org, tid
`, b.Table, year, month)
}
