package feeds_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templefeed/feeds"
	"templefeed/models"
)

func scoredItem(id, author string, score float64) feeds.ScoredItem {
	return feeds.ScoredItem{
		Item:  models.FeedItem{Id: id, Kind: models.KindPost, Meta: models.Meta{AuthorId: author}},
		Score: score,
	}
}

func ids(items []models.FeedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Id)
	}
	return out
}

func TestRankInterleaveCadence(t *testing.T) {
	var scored []feeds.ScoredItem
	for i := 0; i < 5; i++ {
		scored = append(scored, scoredItem(fmt.Sprintf("f%d", i), "alice", float64(500-i)))
	}
	for i := 0; i < 15; i++ {
		scored = append(scored, scoredItem(fmt.Sprintf("o%d", i), "bob", float64(100-i)))
	}
	uc := userFollowing("alice")

	page := feeds.Rank(scored, false, uc, 16)
	require.Len(t, page, 16)
	for i, it := range page {
		if i%4 == 0 {
			assert.Equal(t, "alice", it.Meta.AuthorId, "position %d", i)
		} else {
			assert.Equal(t, "bob", it.Meta.AuthorId, "position %d", i)
		}
	}
	assert.Equal(t, []string{"f0", "o0", "o1", "o2", "f1", "o3", "o4", "o5"}, ids(page[:8]))
}

func TestRankTrendingIsPlainSort(t *testing.T) {
	scored := []feeds.ScoredItem{
		scoredItem("a", "alice", 10),
		scoredItem("b", "bob", 30),
		scoredItem("c", "carol", 20),
		scoredItem("d", "alice", 40),
	}
	uc := userFollowing("alice")

	page := feeds.Rank(scored, true, uc, 3)
	assert.Equal(t, []string{"d", "b", "c"}, ids(page))
}

func TestRankKeepsInputOrderForTies(t *testing.T) {
	scored := []feeds.ScoredItem{
		scoredItem("a", "", 1),
		scoredItem("b", "", 2),
		scoredItem("c", "", 1),
		scoredItem("d", "", 2),
	}
	page := feeds.Rank(scored, true, models.AnonymousContext(), 10)
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(page))
}

func TestRankEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		scored   []feeds.ScoredItem
		pageSize int
		expected []string
	}{
		{
			name:     "no candidates",
			scored:   nil,
			pageSize: 10,
			expected: []string{},
		},
		{
			name: "no followed items",
			scored: []feeds.ScoredItem{
				scoredItem("o1", "bob", 3),
				scoredItem("o2", "bob", 2),
				scoredItem("o3", "bob", 1),
			},
			pageSize: 2,
			expected: []string{"o1", "o2"},
		},
		{
			name: "only followed items",
			scored: []feeds.ScoredItem{
				scoredItem("f1", "alice", 1),
				scoredItem("f2", "alice", 3),
				scoredItem("f3", "alice", 2),
			},
			pageSize: 10,
			expected: []string{"f2", "f3", "f1"},
		},
		{
			name: "followed run out first",
			scored: []feeds.ScoredItem{
				scoredItem("f1", "alice", 50),
				scoredItem("o1", "bob", 9),
				scoredItem("o2", "bob", 8),
				scoredItem("o3", "bob", 7),
				scoredItem("o4", "bob", 6),
				scoredItem("o5", "bob", 5),
			},
			pageSize: 10,
			expected: []string{"f1", "o1", "o2", "o3", "o4", "o5"},
		},
		{
			name: "zero page size",
			scored: []feeds.ScoredItem{
				scoredItem("o1", "bob", 3),
			},
			pageSize: 0,
			expected: []string{},
		},
	}

	uc := userFollowing("alice")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := feeds.Rank(tt.scored, false, uc, tt.pageSize)
			assert.Equal(t, tt.expected, ids(page))
		})
	}
}

func TestPaginate(t *testing.T) {
	empty := feeds.Paginate(nil)
	assert.NotNil(t, empty.Feed)
	assert.Nil(t, empty.Cursor)

	page := feeds.Paginate([]models.FeedItem{{Id: "post-1"}, {Id: "video-2"}})
	require.NotNil(t, page.Cursor)
	assert.Equal(t, "video-2", *page.Cursor)
}
