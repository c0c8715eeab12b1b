package feeds

import (
	"templefeed/models"
	"templefeed/query"
)

// ContextPostFilter drops posts that belong to a temple's own discussion
// thread. They are only shown in that context, never in the general feed.
type ContextPostFilter struct{}

func (f *ContextPostFilter) Keep(item models.FeedItem) bool {
	if item.Meta.Post == nil {
		return true
	}
	return item.Meta.Post.TempleId == ""
}

// generalFilters keep only the content shown in the general feed
var generalFilters = []query.ItemFilter{&ContextPostFilter{}}

func applyFilters(items []models.FeedItem, filters []query.ItemFilter) []models.FeedItem {
	if len(filters) == 0 {
		return items
	}
	kept := make([]models.FeedItem, 0, len(items))
	for _, item := range items {
		keep := true
		for _, filter := range filters {
			if !filter.Keep(item) {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, item)
		}
	}
	return kept
}

var _ query.ItemFilter = (*ContextPostFilter)(nil)
