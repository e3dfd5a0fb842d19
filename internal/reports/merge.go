package reports

import (
	"strings"

	"tagstats/internal/urlnorm"
)

// groupKey joins key parts with a separator that cannot occur in URLs or
// event names, so composite keys never collide.
func groupKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// mergeBy folds rows into one row per key. The first row of a group seeds it
// (first-seen-wins for descriptive fields); combine folds each later row's
// measures in. Output keeps first-seen order.
func mergeBy[R any](rows []R, key func(*R) string, combine func(dst *R, src *R)) []R {
	out := make([]R, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i := range rows {
		k := key(&rows[i])
		if j, ok := index[k]; ok {
			combine(&out[j], &rows[i])
			continue
		}
		index[k] = len(out)
		out = append(out, rows[i])
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// MergeURLTable groups url_table rows by normalized (url, p_url, hour
// bucket), summing counters, taking the max of the max-measures, and
// deriving the per-group averages once at the end.
func MergeURLTable(rows []URLTableRow) []URLTableRow {
	for i := range rows {
		rows[i].URL = urlnorm.Normalize(rows[i].URL)
		rows[i].PrevURL = urlnorm.Normalize(rows[i].PrevURL)
	}

	merged := mergeBy(rows,
		func(r *URLTableRow) string { return groupKey(r.URL, r.PrevURL, r.Datetime) },
		func(dst, src *URLTableRow) {
			dst.Count += src.Count
			dst.SessionCount += src.SessionCount
			dst.UserCount += src.UserCount
			dst.ScrollCount += src.ScrollCount
			dst.SumScrollY += src.SumScrollY
			dst.MaxScrollY = maxFloat(dst.MaxScrollY, src.MaxScrollY)
			dst.EventCount += src.EventCount
			dst.WidgetClickCount += src.WidgetClickCount
			dst.TrivialClickCount += src.TrivialClickCount
			dst.PltCount += src.PltCount
			dst.SumPlt += src.SumPlt
			dst.MaxPlt = maxFloat(dst.MaxPlt, src.MaxPlt)
		})

	for i := range merged {
		if merged[i].ScrollCount > 0 {
			avg := merged[i].SumScrollY / float64(merged[i].ScrollCount)
			merged[i].AvgScrollY = &avg
		}
		if merged[i].PltCount > 0 {
			avg := merged[i].SumPlt / float64(merged[i].PltCount)
			merged[i].AvgPlt = &avg
		}
	}
	return merged
}

// MergeEventTable groups event_table rows by normalized url and state,
// summing counts.
func MergeEventTable(rows []EventTableRow) []EventTableRow {
	for i := range rows {
		rows[i].URL = urlnorm.Normalize(rows[i].URL)
	}
	return mergeBy(rows,
		func(r *EventTableRow) string { return groupKey(r.URL, r.State) },
		func(dst, src *EventTableRow) { dst.Count += src.Count })
}

// MergeLinks builds the url_links payload from raw rows: the distinct
// normalized URLs in first-seen order, and one edge per (url, p_url) pair
// with counts summed across raw dimension combinations.
func MergeLinks(rows []LinkRow) ([]string, []URLLink) {
	var urls []string
	seen := map[string]bool{}
	appendURL := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	links := make([]URLLink, 0, len(rows))
	for _, r := range rows {
		url := urlnorm.Normalize(r.URL)
		prev := urlnorm.Normalize(r.PrevURL)
		appendURL(url)
		appendURL(prev)
		links = append(links, URLLink{URL: url, PrevURL: prev, Title: r.Title, Count: r.Count})
	}

	merged := mergeBy(links,
		func(l *URLLink) string { return groupKey(l.URL, l.PrevURL) },
		func(dst, src *URLLink) { dst.Count += src.Count })

	return urls, merged
}
