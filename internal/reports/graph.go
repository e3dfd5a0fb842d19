package reports

import (
	"regexp"
	"strings"

	"tagstats/internal/urlnorm"
)

var paramSegment = regexp.MustCompile(`\\\{[^}]+\\\}`)

// MatchEndpoint reports whether a normalized URL matches an endpoint
// pattern. Parameter segments written as {name} match any single path
// segment, so "/users/{id}" covers "/users/42".
func MatchEndpoint(pattern, url string) bool {
	if url == "" {
		return false
	}
	quoted := paramSegment.ReplaceAllString(regexp.QuoteMeta(pattern), "[^/]+")
	re, err := regexp.Compile("^" + quoted + "$")
	if err != nil {
		return false
	}
	return re.MatchString(url)
}

// GraphRow is a filtered event-graph row. The Prev* descriptor fields are
// populated when the row's previous state is a click whose own rows fell
// outside the filtered set; they carry the click's identity so the funnel
// view can still render the step.
type GraphRow struct {
	LinkRow
	PrevTitle string `json:"p_title,omitempty"`
	PrevLabel string `json:"p_label,omitempty"`
	PrevXPath string `json:"p_xpath,omitempty"`
	PrevAID   string `json:"p_a_id,omitempty"`
	PrevClass string `json:"p_class,omitempty"`
}

// FilterGraph narrows raw event-graph rows to those whose normalized url or
// p_url matches the endpoint pattern, merging duplicates that normalization
// collapses, then decorates dangling previous click states.
func FilterGraph(rows []LinkRow, endpoint string) []GraphRow {
	states := map[string]bool{}
	prevStates := map[string]bool{}

	var filtered []GraphRow
	for _, r := range rows {
		url := urlnorm.Normalize(r.URL)
		prev := urlnorm.Normalize(r.PrevURL)
		if !MatchEndpoint(endpoint, url) && !MatchEndpoint(endpoint, prev) {
			continue
		}
		r.URL = url
		r.PrevURL = prev
		states[r.State] = true
		prevStates[r.PrevState] = true
		filtered = append(filtered, GraphRow{LinkRow: r})
	}

	merged := mergeBy(filtered,
		func(g *GraphRow) string { return groupKey(g.URL, g.PrevURL, g.State, g.PrevState) },
		func(dst, src *GraphRow) { dst.Count += src.Count })

	// Click states that only survive as someone's previous state lost their
	// own rows to the filter; recover their descriptors from the raw set.
	for state := range prevStates {
		if state == "" || states[state] || !strings.HasPrefix(state, "click_") {
			continue
		}
		src, ok := findState(rows, state)
		if !ok {
			continue
		}
		for i := range merged {
			if merged[i].PrevState != state {
				continue
			}
			merged[i].PrevTitle = src.Label
			merged[i].PrevLabel = src.Label
			merged[i].PrevXPath = src.XPath
			merged[i].PrevAID = src.AID
			merged[i].PrevClass = src.Class
		}
	}

	return merged
}

func findState(rows []LinkRow, state string) (LinkRow, bool) {
	for _, r := range rows {
		if r.State == state {
			return r, true
		}
	}
	return LinkRow{}, false
}
