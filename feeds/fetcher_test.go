package feeds_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templefeed/db"
	"templefeed/feeds"
	"templefeed/models"
	"templefeed/query"
)

type fetchCall struct {
	category query.Category
	limit    int
	before   time.Time
}

type fakeStore struct {
	mu       sync.Mutex
	docs     map[query.Category][]models.Document
	failures map[query.Category]error
	block    map[query.Category]bool
	calls    []fetchCall

	blockCursor bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[query.Category][]models.Document{},
		failures: map[query.Category]error{},
		block:    map[query.Category]bool{},
	}
}

func (s *fakeStore) add(category query.Category, id string, createdAt time.Time, body map[string]interface{}) {
	raw, _ := json.Marshal(body)
	s.docs[category] = append(s.docs[category], models.Document{
		Collection: string(category),
		Id:         id,
		CreatedAt:  createdAt,
		Body:       raw,
	})
}

func (s *fakeStore) FetchCategory(ctx context.Context, category query.Category, limit int, before time.Time) ([]models.Document, error) {
	s.mu.Lock()
	s.calls = append(s.calls, fetchCall{category: category, limit: limit, before: before})
	block := s.block[category]
	err := s.failures[category]
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	var out []models.Document
	for _, doc := range s.docs[category] {
		if !before.IsZero() && !doc.CreatedAt.Before(before) {
			continue
		}
		out = append(out, doc)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) ResolveCursor(ctx context.Context, category query.Category, docId string) (time.Time, error) {
	if s.blockCursor {
		<-ctx.Done()
		return time.Time{}, ctx.Err()
	}
	for _, doc := range s.docs[category] {
		if doc.Id == docId {
			return doc.CreatedAt, nil
		}
	}
	return time.Time{}, db.ErrNotFound
}

func (s *fakeStore) RecentPosts(ctx context.Context, limit int) ([]models.Document, error) {
	return s.FetchCategory(ctx, query.Posts, limit, time.Time{})
}

func (s *fakeStore) PostsSince(ctx context.Context, since time.Time, limit int) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range s.docs[query.Posts] {
		if !doc.CreatedAt.Before(since) {
			out = append(out, doc)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) limitFor(category query.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, call := range s.calls {
		if call.category == category {
			return call.limit
		}
	}
	return -1
}

func TestFetchLimit(t *testing.T) {
	assert.Equal(t, 40, feeds.FetchLimit(query.Posts, 20))
	assert.Equal(t, 100, feeds.FetchLimit(query.Posts, 80))
	assert.Equal(t, 20, feeds.FetchLimit(query.Videos, 20))
	assert.Equal(t, 5, feeds.FetchLimit(query.Deities, 5))
}

func TestFetchOverfetchesPostsAndDropsContextPosts(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 8; i++ {
		body := map[string]interface{}{"title": "post", "authorId": "u"}
		if i%2 == 0 {
			body["templeId"] = "temple-9"
		}
		store.add(query.Posts, fmt.Sprintf("p%d", i), now.Add(-time.Duration(i)*time.Minute), body)
	}
	fetcher := feeds.NewFetcher(store, nil, time.Second)

	items, err := fetcher.Fetch(context.Background(), query.Request{Filter: "posts", PageSize: 3}, now)
	require.NoError(t, err)
	assert.Equal(t, 6, store.limitFor(query.Posts))
	assert.Equal(t, []string{"post-p1", "post-p3", "post-p5"}, ids(items))
}

func TestFetchDegradesOnCategoryFailure(t *testing.T) {
	store := newFakeStore()
	store.add(query.Posts, "p1", now, map[string]interface{}{"title": "hello"})
	store.add(query.Temples, "t1", now, map[string]interface{}{"name": "Meenakshi"})
	store.failures[query.Videos] = errors.New("boom")
	store.block[query.Stories] = true

	fetcher := feeds.NewFetcher(store, nil, 100*time.Millisecond)
	items, err := fetcher.Fetch(context.Background(), query.Request{PageSize: 10}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"post-p1", "temple-t1"}, ids(items))
}

func TestFetchAllSourcesFailed(t *testing.T) {
	store := newFakeStore()
	for _, category := range query.AllCategories {
		store.failures[category] = errors.New("down")
	}
	fetcher := feeds.NewFetcher(store, nil, time.Second)

	_, err := fetcher.Fetch(context.Background(), query.Request{PageSize: 10}, now)
	assert.ErrorIs(t, err, feeds.ErrAllSourcesFailed)

	_, err = fetcher.Fetch(context.Background(), query.Request{Filter: "videos", PageSize: 10}, now)
	assert.ErrorIs(t, err, feeds.ErrAllSourcesFailed)
}

func TestFetchResolvesCursor(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 4; i++ {
		store.add(query.Posts, fmt.Sprintf("p%d", i), now.Add(-time.Duration(i)*time.Hour), map[string]interface{}{"title": "x"})
	}
	store.add(query.Videos, "v1", now.Add(-30*time.Minute), map[string]interface{}{"title": "v"})
	store.add(query.Videos, "v2", now.Add(-3*time.Hour), map[string]interface{}{"title": "v"})
	fetcher := feeds.NewFetcher(store, nil, time.Second)

	items, err := fetcher.Fetch(context.Background(), query.Request{PageSize: 10, LastCursor: "post-p1"}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"post-p2", "post-p3", "video-v2"}, ids(items))

	tests := []string{"post-missing", "bogus-p1", "nodash"}
	for _, cursor := range tests {
		t.Run(cursor, func(t *testing.T) {
			items, err := fetcher.Fetch(context.Background(), query.Request{Filter: "posts", PageSize: 10, LastCursor: cursor}, now)
			require.NoError(t, err)
			assert.Len(t, items, 4)
		})
	}
}

func TestFetchTimeoutBoundsCursorLookup(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 4; i++ {
		store.add(query.Posts, fmt.Sprintf("p%d", i), now.Add(-time.Duration(i)*time.Hour), map[string]interface{}{"title": "x"})
	}
	store.blockCursor = true
	fetcher := feeds.NewFetcher(store, nil, 50*time.Millisecond)

	type result struct {
		items []models.FeedItem
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := fetcher.Fetch(context.Background(), query.Request{Filter: "posts", PageSize: 10, LastCursor: "post-p1"}, now)
		done <- result{items, err}
	}()

	select {
	case res := <-done:
		// an unresolved cursor falls back to the first page
		require.NoError(t, res.err)
		assert.Len(t, res.items, 4)
	case <-time.After(time.Second):
		t.Fatal("cursor lookup was not bounded by the fetch timeout")
	}
}
