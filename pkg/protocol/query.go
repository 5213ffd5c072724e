// Package protocol speaks the document store's scroll/slice REST dialect:
// it builds request bodies and paths and decodes responses into cursors,
// hit batches and raw introspection values.
package protocol

import (
	"strings"

	"github.com/goccy/go-json"
)

// ScrollTTL is the keep-alive requested for every scroll cursor.
const ScrollTTL = "1m"

// ScrollPath is the continuation endpoint shared by all indices.
const ScrollPath = "/_search/scroll"

type sliceClause struct {
	ID  int `json:"id"`
	Max int `json:"max"`
}

type initialQuery struct {
	Size  int          `json:"size"`
	Slice *sliceClause `json:"slice,omitempty"`
}

type scrollQuery struct {
	Scroll   string `json:"scroll"`
	ScrollID string `json:"scroll_id"`
}

type clearScrollQuery struct {
	ScrollID []string `json:"scroll_id"`
}

// BuildInitialQuery returns the body of a slice's first search. The store
// rejects a slice clause with max 1, so single-slice dumps omit it.
func BuildInitialQuery(pageSize, sliceID, sliceMax int) []byte {
	q := initialQuery{Size: pageSize}
	if sliceMax > 1 {
		q.Slice = &sliceClause{ID: sliceID, Max: sliceMax}
	}
	return mustMarshal(q)
}

// BuildScrollQuery returns the body fetching the page after cursor.
func BuildScrollQuery(cursor string) []byte {
	return mustMarshal(scrollQuery{Scroll: ScrollTTL, ScrollID: cursor})
}

// BuildClearScrollQuery returns the body releasing cursor on the store.
func BuildClearScrollQuery(cursor string) []byte {
	return mustMarshal(clearScrollQuery{ScrollID: []string{cursor}})
}

// mustMarshal encodes the fixed query shapes above, which cannot fail.
func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("protocol: marshal query: " + err.Error())
	}
	return b
}

// SearchPath opens a scroll over index.
func SearchPath(index string) string {
	return "/" + index + "/_search?scroll=" + ScrollTTL
}

// CountPath counts the documents of index.
func CountPath(index string) string {
	return "/" + index + "/_count"
}

// MappingPath returns the mappings of index.
func MappingPath(index string) string {
	return "/" + index + "/_mapping"
}

// IndexPath returns settings, mappings and aliases of index.
func IndexPath(index string) string {
	return "/" + index
}

// URL joins host and path without doubling the separator.
func URL(host, path string) string {
	return strings.TrimRight(host, "/") + path
}
