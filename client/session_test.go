package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templefeed/client"
	"templefeed/models"
	"templefeed/query"
)

// pagingServer answers every /feed call with a fresh generation of items
func pagingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		json.NewEncoder(w).Encode(models.FeedResponse{Feed: items(fmt.Sprintf("gen%d", n), 2)})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSessionStartAndRefresh(t *testing.T) {
	srv, calls := pagingServer(t)

	var mu sync.Mutex
	var changes [][]string
	session := client.NewSession(client.SessionConfig{
		ServerURL:     srv.URL,
		Request:       query.Request{PageSize: 2, LastCursor: "post-1"},
		FlushInterval: time.Hour,
		OnChange: func(items []models.FeedItem) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, ids(items))
		},
	}, nil)

	require.NoError(t, session.Start(context.Background()))
	defer session.Close()

	assert.Equal(t, []string{"gen1-0", "gen1-1"}, ids(session.Store().Items()))
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, session.Refresh(context.Background()))
	assert.Eventually(t, func() bool {
		got := session.Store().Items()
		return len(got) == 2 && got[0].Id == "gen2-0"
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	assert.Equal(t, []string{"gen1-0", "gen1-1"}, changes[0])
	assert.Equal(t, []string{"gen2-0", "gen2-1"}, changes[1])
}

func TestSessionRefreshWaitsForPlayback(t *testing.T) {
	srv, _ := pagingServer(t)

	playback := client.NewPlaybackRegistry()
	session := client.NewSession(client.SessionConfig{
		ServerURL:     srv.URL,
		FlushInterval: time.Hour,
	}, playback)
	require.NoError(t, session.Start(context.Background()))
	defer session.Close()

	playback.Play("video-1")
	require.NoError(t, session.Refresh(context.Background()))

	pending, err := session.Pending()
	require.NoError(t, err)
	assert.True(t, pending.HasRefresh)
	assert.Equal(t, "gen1-0", session.Store().Items()[0].Id)

	playback.End("video-1")
	assert.Eventually(t, func() bool {
		return session.Store().Items()[0].Id == "gen2-0"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionStartFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	session := client.NewSession(client.SessionConfig{ServerURL: srv.URL}, nil)
	err := session.Start(context.Background())
	assert.ErrorIs(t, err, client.ErrFeedUnavailable)
	session.Close()
}
