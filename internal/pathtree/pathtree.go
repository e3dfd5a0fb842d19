// Package pathtree infers the set of concrete endpoints a site exposes from
// the page URLs observed in its traffic. The URLs are split into path
// segments and arranged as a prefix tree; a node is marked when some URL
// terminates exactly there, and only marked nodes are emitted. The result
// seeds a container's endpoint documentation.
package pathtree

import (
	"net/url"
	"sort"
	"strings"
)

type node struct {
	segment  string
	exists   bool
	children []*node
}

func (n *node) child(segment string) *node {
	for _, c := range n.children {
		if c.segment == segment {
			return c
		}
	}
	c := &node{segment: segment}
	n.children = append(n.children, c)
	return c
}

// Tree is a prefix tree of observed URL path segments.
type Tree struct {
	root node
}

// EndpointDoc is the swagger-style skeleton derived from a tree.
type EndpointDoc struct {
	Paths map[string]struct{} `json:"paths"`
}

// Build constructs a tree from a set of URLs. Empty values and the
// "undefined" sentinel are ignored; duplicate URLs are idempotent.
func Build(urls []string) *Tree {
	t := &Tree{}
	for _, raw := range urls {
		if raw == "" || strings.EqualFold(raw, "undefined") {
			continue
		}
		t.add(pathOf(raw))
	}
	return t
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Scheme != "" || u.Host != "" {
		return u.Path
	}
	return raw
}

func (t *Tree) add(path string) {
	if path == "" || path == "/" {
		t.root.exists = true
		return
	}

	segments := strings.Split(path, "/")
	current := &t.root
	for i, segment := range segments {
		if i == 0 {
			// Leading empty segment before the first slash.
			continue
		}
		current = current.child(segment)
		if i == len(segments)-1 {
			current.exists = true
		}
	}
}

// Paths returns every root-to-node path whose node was observed as a
// terminal, sorted ascending. "/" is included when the bare root was seen.
func (t *Tree) Paths() []string {
	var result []string
	if t.root.exists {
		result = append(result, "/")
	}

	var walk func(prefix string, children []*node)
	walk = func(prefix string, children []*node) {
		for _, c := range children {
			if c.exists {
				result = append(result, prefix+c.segment)
			}
			walk(prefix+c.segment+"/", c.children)
		}
	}
	walk("/", t.root.children)

	sort.Strings(result)
	return result
}

// EndpointDoc renders the tree as the endpoint documentation skeleton.
func (t *Tree) EndpointDoc() EndpointDoc {
	doc := EndpointDoc{Paths: map[string]struct{}{}}
	for _, p := range t.Paths() {
		doc.Paths[p] = struct{}{}
	}
	return doc
}
