package client_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templefeed/client"
	"templefeed/models"
)

func items(prefix string, n int) []models.FeedItem {
	out := make([]models.FeedItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.FeedItem{Id: fmt.Sprintf("%s-%d", prefix, i), Kind: models.KindPost})
	}
	return out
}

func ids(items []models.FeedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Id)
	}
	return out
}

func assertUnique(t *testing.T, items []models.FeedItem) {
	t.Helper()
	seen := map[string]struct{}{}
	for _, it := range items {
		_, dup := seen[it.Id]
		require.False(t, dup, "duplicate id %s", it.Id)
		seen[it.Id] = struct{}{}
	}
}

func TestDeferredFlush(t *testing.T) {
	store := client.NewFeedStore()
	store.Replace(items("post", 20))
	buffer := client.NewMergeBuffer(50)

	live := items("live", 3)
	for _, it := range live {
		buffer.AddLive(it)
	}

	assert.Equal(t, client.FlushDeferred, buffer.Flush(store, true))
	assert.Equal(t, 20, store.Len())
	pending, _ := buffer.Pending()
	assert.Len(t, pending, 3)

	assert.Equal(t, client.FlushPrepended, buffer.Flush(store, false))
	got := store.Items()
	require.Len(t, got, 23)
	assert.Equal(t, []string{"live-0", "live-1", "live-2"}, ids(got[:3]))
	assert.Equal(t, "post-0", got[3].Id)

	pending, _ = buffer.Pending()
	assert.Empty(t, pending)
	assert.Equal(t, client.FlushNothing, buffer.Flush(store, false))
}

func TestRefreshWinsOverAdds(t *testing.T) {
	store := client.NewFeedStore()
	store.Replace(items("post", 5))
	buffer := client.NewMergeBuffer(50)

	buffer.AddLive(models.FeedItem{Id: "live-0"})
	buffer.SetRefresh(items("old", 2))
	buffer.SetRefresh(items("fresh", 4))

	assert.Equal(t, client.FlushRefreshed, buffer.Flush(store, false))
	assert.Equal(t, []string{"fresh-0", "fresh-1", "fresh-2", "fresh-3"}, ids(store.Items()))

	pending, hasRefresh := buffer.Pending()
	assert.Empty(t, pending)
	assert.False(t, hasRefresh)
}

func TestPendingAddsAreCapped(t *testing.T) {
	buffer := client.NewMergeBuffer(50)
	for _, it := range items("live", 60) {
		buffer.AddLive(it)
	}
	pending, _ := buffer.Pending()
	require.Len(t, pending, 50)
	assert.Equal(t, "live-10", pending[0].Id)
	assert.Equal(t, "live-59", pending[49].Id)
}

func TestStoreNeverHoldsDuplicates(t *testing.T) {
	store := client.NewFeedStore()
	buffer := client.NewMergeBuffer(50)

	initial := append(items("post", 3), models.FeedItem{Id: "post-1"})
	store.Replace(initial)
	assert.Equal(t, []string{"post-0", "post-1", "post-2"}, ids(store.Items()))

	buffer.AddLive(models.FeedItem{Id: "post-2"})
	buffer.AddLive(models.FeedItem{Id: "live-0"})
	buffer.AddLive(models.FeedItem{Id: "live-0"})
	buffer.Flush(store, false)
	assertUnique(t, store.Items())
	assert.Equal(t, []string{"live-0", "post-0", "post-1", "post-2"}, ids(store.Items()))

	buffer.SetRefresh([]models.FeedItem{{Id: "a"}, {Id: "b"}, {Id: "a"}})
	buffer.Flush(store, false)
	assertUnique(t, store.Items())

	for round := 0; round < 5; round++ {
		for _, it := range items("live", 4) {
			buffer.AddLive(it)
		}
		buffer.Flush(store, false)
		assertUnique(t, store.Items())
	}
	assert.Equal(t, 6, store.Len())
}

func TestStoreVersion(t *testing.T) {
	store := client.NewFeedStore()
	v := store.Version()
	assert.Zero(t, store.Prepend(nil))
	assert.Equal(t, v, store.Version())

	assert.Equal(t, 2, store.Prepend(items("x", 2)))
	assert.Greater(t, store.Version(), v)
	assert.True(t, store.Contains("x-1"))
	assert.False(t, store.Contains("y-1"))
}
