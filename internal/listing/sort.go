package listing

import (
	"slices"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"expohub/internal/models"
)

type SortBy string

const (
	Newest       SortBy = "newest"
	Oldest       SortBy = "oldest"
	MostLiked    SortBy = "mostLiked"
	Alphabetical SortBy = "alphabetical"
)

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.English)
)

// Sort returns a re-ordered copy of items. Unknown keys keep the input order.
// Ties keep their relative order, so applying the same key twice changes nothing.
func Sort(items []models.Listing, by SortBy) []models.Listing {
	out := slices.Clone(items)
	switch by {
	case Newest:
		slices.SortStableFunc(out, func(a, b models.Listing) int { return b.CreatedAt.Compare(a.CreatedAt) })
	case Oldest:
		slices.SortStableFunc(out, func(a, b models.Listing) int { return a.CreatedAt.Compare(b.CreatedAt) })
	case MostLiked:
		slices.SortStableFunc(out, func(a, b models.Listing) int { return b.Likes - a.Likes })
	case Alphabetical:
		// collate.Collator keeps internal buffers and is not safe for concurrent use.
		collatorMu.Lock()
		defer collatorMu.Unlock()
		slices.SortStableFunc(out, func(a, b models.Listing) int { return collator.CompareString(a.Title, b.Title) })
	}
	return out
}

func ParseSortBy(s string) (SortBy, bool) {
	switch SortBy(s) {
	case Newest, Oldest, MostLiked, Alphabetical:
		return SortBy(s), true
	}
	return "", false
}
