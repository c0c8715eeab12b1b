package feeds

import (
	"cmp"
	"slices"

	"templefeed/models"
)

// ScoredItem pairs an item with its per request score. Scores never leave
// the server.
type ScoredItem struct {
	Item  models.FeedItem
	Score float64
}

const (
	followedPerRound = 1
	othersPerRound   = 3
)

// Rank orders scored items by descending score and cuts the result to
// pageSize. Ties keep their input order. Outside trending mode, items from
// followed authors are spread through the page: one followed item, then up to
// three others, repeated.
func Rank(scored []ScoredItem, trending bool, user models.UserContext, pageSize int) []models.FeedItem {
	if pageSize <= 0 || len(scored) == 0 {
		return []models.FeedItem{}
	}

	sorted := slices.Clone(scored)
	slices.SortStableFunc(sorted, func(a, b ScoredItem) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if trending {
		return topN(sorted, pageSize)
	}

	var followed, other []models.FeedItem
	for _, s := range sorted {
		if user.Follows(s.Item.Meta.AuthorId) {
			followed = append(followed, s.Item)
		} else {
			other = append(other, s.Item)
		}
	}
	return interleave(followed, other, pageSize)
}

func topN(sorted []ScoredItem, n int) []models.FeedItem {
	n = min(n, len(sorted))
	out := make([]models.FeedItem, 0, n)
	for _, s := range sorted[:n] {
		out = append(out, s.Item)
	}
	return out
}

func interleave(followed, other []models.FeedItem, pageSize int) []models.FeedItem {
	out := make([]models.FeedItem, 0, min(pageSize, len(followed)+len(other)))
	fi, oi := 0, 0
	for len(out) < pageSize && (fi < len(followed) || oi < len(other)) {
		for i := 0; i < followedPerRound && fi < len(followed) && len(out) < pageSize; i++ {
			out = append(out, followed[fi])
			fi++
		}
		for i := 0; i < othersPerRound && oi < len(other) && len(out) < pageSize; i++ {
			out = append(out, other[oi])
			oi++
		}
	}
	return out
}

// Paginate wraps a ranked page. The cursor is the id of the last item and is
// omitted for an empty page.
func Paginate(page []models.FeedItem) models.FeedResponse {
	if page == nil {
		page = []models.FeedItem{}
	}
	resp := models.FeedResponse{Feed: page}
	if len(page) > 0 {
		cursor := page[len(page)-1].Id
		resp.Cursor = &cursor
	}
	return resp
}
