// Package feed derives the displayed post sequence from the canonical
// collection: a text filter followed by a stable sort.
package feed

import (
	"sort"
	"strings"

	"github.com/five82/rebbit/internal/board"
)

// SortKey selects the feed ordering.
type SortKey string

const (
	SortNew SortKey = "new"
	SortTop SortKey = "top"
	// SortHot currently ranks exactly like SortTop.
	SortHot SortKey = "hot"
)

// SortKeys lists the orderings in selector order.
func SortKeys() []SortKey {
	return []SortKey{SortHot, SortNew, SortTop}
}

// ParseSortKey maps a user-supplied name to a SortKey, defaulting to SortNew.
func ParseSortKey(name string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(name))) {
	case SortTop:
		return SortTop
	case SortHot:
		return SortHot
	default:
		return SortNew
	}
}

// Next returns the ordering after k in selector order.
func (k SortKey) Next() SortKey {
	keys := SortKeys()
	for i, key := range keys {
		if key == k {
			return keys[(i+1)%len(keys)]
		}
	}
	return SortNew
}

// Label returns a display label.
func (k SortKey) Label() string {
	switch k {
	case SortTop:
		return "Top"
	case SortHot:
		return "Hot"
	default:
		return "New"
	}
}

// Project filters posts by query (when non-blank) and sorts them by key.
// The input slice is never modified.
func Project(posts []board.Post, query string, key SortKey) []board.Post {
	out := make([]board.Post, 0, len(posts))
	filter := strings.TrimSpace(query) != ""
	for _, p := range posts {
		if filter && !p.Matches(query) {
			continue
		}
		out = append(out, p)
	}

	switch key {
	case SortTop, SortHot:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Upvotes > out[j].Upvotes
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}
