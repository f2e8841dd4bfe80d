// Package rank orders lookup matches for display.
package rank

import (
	"sort"
	"unicode/utf8"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/index"
)

// Result is one ranked entry.
type Result struct {
	index.Entry

	// Exact is set when the display name equals the query, ignoring case.
	Exact bool
	// Group is shared by overloads: same display name (ignoring case) and scope.
	Group string
}

// Group collects consecutive-by-rank overloads under one heading.
type Group struct {
	Key         string
	DisplayName string
	Scope       string
	Results     []Result
}

// Rank orders entries for key and returns at most limit results; limit <= 0
// keeps everything. Ordering:
//
//  1. exact display name matches first
//  2. shorter display names first
//  3. scope, then display name, then emission order
//
// Entries sharing an anchor collapse to the best ranked one. Truncation
// happens only after the full ordering and deduplication.
func Rank(entries []index.Entry, key index.Key, limit int) []Result {
	if len(entries) == 0 {
		return nil
	}

	type ranked struct {
		Result
		length int
	}
	items := make([]ranked, len(entries))
	for i, e := range entries {
		items[i] = ranked{
			Result: Result{
				Entry: e,
				Exact: index.Normalize(e.DisplayName) == key,
				Group: e.GroupKey(),
			},
			length: utf8.RuneCountInString(e.DisplayName),
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Exact != b.Exact {
			return a.Exact
		}
		if a.length != b.length {
			return a.length < b.length
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.Order < b.Order
	})

	filter := utils.NewAnchorFilter(len(items))
	results := make([]Result, 0, len(items))
	for _, it := range items {
		if !filter.ShouldInclude(it.Anchor) {
			continue
		}
		results = append(results, it.Result)
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// GroupBy folds ranked results into overload groups. A group sits at the
// position of its best ranked member and keeps its members in rank order.
func GroupBy(results []Result) []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, r := range results {
		i, ok := pos[r.Group]
		if !ok {
			i = len(groups)
			pos[r.Group] = i
			groups = append(groups, Group{Key: r.Group, DisplayName: r.DisplayName, Scope: r.Scope})
		}
		groups[i].Results = append(groups[i].Results, r)
	}
	return groups
}
