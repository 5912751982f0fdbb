package domain

import (
	"strings"
	"time"
)

// SearchRequest is a filtered scan against one index.
type SearchRequest struct {
	Index   string
	DocType string
	Query   Query

	// Fields restricts the returned source to these dotted paths.
	// Empty means the full document.
	Fields []string

	// PageSize is the number of hits fetched per round-trip.
	PageSize int

	// KeepAlive is how long the store keeps the cursor open between pages.
	KeepAlive time.Duration
}

// Query is a conjunction of filters.
type Query struct {
	Ranges []RangeFilter
	Terms  []TermsFilter
}

// RangeFilter matches documents whose date field lies in [GTE, LTE].
type RangeFilter struct {
	Field string
	GTE   time.Time
	LTE   time.Time
}

// TermsFilter matches documents whose field equals one of Values.
// Comparison is case-insensitive.
type TermsFilter struct {
	Field  string
	Values []string
}

// Hit is one document returned by a scroll.
type Hit struct {
	Index  string
	ID     string
	Source map[string]any
}

// LookupPath resolves a dotted path such as "processed_crash.product"
// inside nested mappings.
func LookupPath(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
