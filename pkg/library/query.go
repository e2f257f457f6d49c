// Package library is the client-side view-model of a player's game log:
// an owned in-memory cache, the search/filter/sort pipeline over it, the
// mutation handler that keeps it in sync with the collection service, and
// the derived summary.
package library

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"gamelog/pkg/domain"
)

// SortKey selects one of the supported orderings.
type SortKey string

const (
	SortDateDesc   SortKey = "date-desc"
	SortDateAsc    SortKey = "date-asc"
	SortRatingDesc SortKey = "rating-desc"
	SortRatingAsc  SortKey = "rating-asc"
	SortHoursDesc  SortKey = "hours-desc"
	SortHoursAsc   SortKey = "hours-asc"

	DefaultSort = SortDateDesc
)

var sortKeys = []SortKey{SortDateDesc, SortDateAsc, SortRatingDesc, SortRatingAsc, SortHoursDesc, SortHoursAsc}

func SortKeys() []SortKey { return slices.Clone(sortKeys) }

// ParseSortKey never fails: anything unrecognised is DefaultSort.
func ParseSortKey(s string) SortKey {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(sortKeys, k) {
		return k
	}
	return DefaultSort
}

// PlatformAll disables the platform filter.
const PlatformAll domain.Platform = ""

// ParsePlatformFilter maps "", "all" and unknown values to PlatformAll.
func ParsePlatformFilter(s string) domain.Platform {
	if p, ok := domain.ParsePlatform(s); ok {
		return p
	}
	return PlatformAll
}

// Query is the set of view inputs applied to the cached list.
type Query struct {
	Text     string
	Platform domain.Platform
	Sort     SortKey
}

// Apply filters by title text, then by platform, then stable-sorts. The
// input slice is never modified.
func Apply(games []domain.Game, q Query) []domain.Game {
	out := FilterPlatform(FilterText(games, q.Text), q.Platform)
	SortGames(out, q.Sort)
	return out
}

// FilterText keeps games whose title contains text, ignoring case. The
// result is always a fresh slice.
func FilterText(games []domain.Game, text string) []domain.Game {
	// Casers keep state; one per call keeps Apply safe for concurrent use.
	folder := cases.Fold()
	needle := folder.String(text)
	out := make([]domain.Game, 0, len(games))
	for _, g := range games {
		if needle == "" || strings.Contains(folder.String(g.Title), needle) {
			out = append(out, g)
		}
	}
	return out
}

// FilterPlatform keeps games on platform p; PlatformAll keeps everything.
func FilterPlatform(games []domain.Game, p domain.Platform) []domain.Game {
	out := make([]domain.Game, 0, len(games))
	for _, g := range games {
		if p == PlatformAll || g.Platform == p {
			out = append(out, g)
		}
	}
	return out
}

// SortGames sorts in place; equal keys keep their relative order.
func SortGames(games []domain.Game, key SortKey) {
	cmp := comparator(ParseSortKey(string(key)))
	slices.SortStableFunc(games, cmp)
}

func comparator(key SortKey) func(a, b domain.Game) int {
	switch key {
	case SortDateAsc:
		return func(a, b domain.Game) int { return strings.Compare(a.CompletionDate, b.CompletionDate) }
	case SortRatingDesc:
		return func(a, b domain.Game) int { return b.Rating - a.Rating }
	case SortRatingAsc:
		return func(a, b domain.Game) int { return a.Rating - b.Rating }
	case SortHoursDesc:
		return func(a, b domain.Game) int { return b.HoursPlayed - a.HoursPlayed }
	case SortHoursAsc:
		return func(a, b domain.Game) int { return a.HoursPlayed - b.HoursPlayed }
	default:
		// Dates are YYYY-MM-DD so string order is chronological.
		return func(a, b domain.Game) int { return strings.Compare(b.CompletionDate, a.CompletionDate) }
	}
}
