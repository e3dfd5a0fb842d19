// Package goals evaluates conversion goals against the raw event log and
// maintains the per-goal result documents the dashboards read.
package goals

import (
	"fmt"
	"strings"
	"time"

	"go.elara.ws/pcre"

	"tagstats/internal/containers"
	"tagstats/internal/query"
)

// hostPattern skips the scheme and host of a page URL so path rules match the
// path alone.
const hostPattern = `^https?://[^/]+`

func mode(m string) string {
	if m == "" {
		return containers.MatchEq
	}
	return m
}

// Validate checks a goal's rules before they are embedded into a query.
// Regex rules must compile; unknown match modes are rejected rather than
// silently treated as literals.
func Validate(g containers.Goal) error {
	if g.ID == "" || g.Target == "" {
		return fmt.Errorf("goal %q: id and target are required", g.ID)
	}
	rules := []struct {
		field, value, match string
	}{
		{"target", g.Target, g.TargetMatch},
		{"path", g.Path, g.PathMatch},
		{"label", g.Label, g.LabelMatch},
	}
	for _, r := range rules {
		if r.value == "" {
			continue
		}
		switch mode(r.match) {
		case containers.MatchEq, containers.MatchPrefix:
		case containers.MatchRegex:
			if _, err := pcre.Compile(r.value); err != nil {
				return fmt.Errorf("goal %q: %s regex: %w", g.ID, r.field, err)
			}
		default:
			return fmt.Errorf("goal %q: unknown %s match mode %q", g.ID, r.field, r.match)
		}
	}
	return nil
}

// Criteria renders the goal's rules as a conjunction over the raw event
// columns. Each rule applies its own match mode.
func Criteria(g containers.Goal) string {
	parts := []string{
		fieldCriterion("JSON_EXTRACT_SCALAR(qs, '$.o_s')", g.Target, mode(g.TargetMatch)),
	}
	if g.Path != "" {
		parts = append(parts, pathCriterion(g.Path, mode(g.PathMatch)))
	}
	if g.Label != "" {
		parts = append(parts, fieldCriterion("JSON_EXTRACT_SCALAR(qs, '$.el')", g.Label, mode(g.LabelMatch)))
	}
	return strings.Join(parts, " AND ")
}

func fieldCriterion(col, value, match string) string {
	switch match {
	case containers.MatchPrefix:
		return fmt.Sprintf("regexp_like(%s, '^%s')", col, query.RegexLiteral(value))
	case containers.MatchRegex:
		return fmt.Sprintf("regexp_like(%s, '%s')", col, query.EscapeLiteral(value))
	default:
		return fmt.Sprintf("%s = '%s'", col, query.EscapeLiteral(value))
	}
}

// pathCriterion matches a rule against the page URL's path component. For
// exact matches the end is anchored; regex rules see the URL with the scheme
// and host stripped off.
func pathCriterion(value, match string) string {
	const col = "JSON_EXTRACT_SCALAR(qs, '$.dl')"
	switch match {
	case containers.MatchPrefix:
		return fmt.Sprintf("regexp_like(%s, '%s%s')", col, hostPattern, query.RegexLiteral(value))
	case containers.MatchRegex:
		return fmt.Sprintf("regexp_like(regexp_replace(%s, '%s', ''), '%s')", col, hostPattern, query.EscapeLiteral(value))
	default:
		return fmt.Sprintf("regexp_like(%s, '%s%s$')", col, hostPattern, query.RegexLiteral(value))
	}
}

// CountQuery counts matching events and distinct users over one calendar day.
func CountQuery(table, org, tid string, g containers.Goal, day time.Time) string {
	return fmt.Sprintf(`SELECT
COUNT(*) AS e_count,
COUNT(DISTINCT JSON_EXTRACT_SCALAR(qs, '$.cid')) AS u_count
FROM %s
WHERE %s AND %s
`, table, query.DayCriteria(org, tid, day), Criteria(g))
}

// RangeCountQuery counts matching events and distinct users per day across a
// closed date range, grouped on the partition columns so the whole backfill
// costs a single scan.
func RangeCountQuery(table, org, tid string, g containers.Goal, start, end time.Time) string {
	return fmt.Sprintf(`SELECT
year * 10000 + month * 100 + day AS date,
COUNT(*) AS e_count,
COUNT(DISTINCT JSON_EXTRACT_SCALAR(qs, '$.cid')) AS u_count
FROM %s
WHERE %s AND %s
GROUP BY year * 10000 + month * 100 + day
ORDER BY 1 ASC
`, table, query.DateRangeCriteria(org, tid, start, end), Criteria(g))
}
