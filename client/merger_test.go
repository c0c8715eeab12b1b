package client_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templefeed/client"
)

type fakeGuard struct {
	mu      sync.Mutex
	playing bool
}

func (g *fakeGuard) set(playing bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.playing = playing
}

func (g *fakeGuard) IsProtectedMediaPlaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playing
}

func TestPlaybackRegistry(t *testing.T) {
	registry := client.NewPlaybackRegistry()
	assert.False(t, registry.IsProtectedMediaPlaying())

	registry.Register("video-1")
	assert.False(t, registry.IsProtectedMediaPlaying())

	registry.Play("video-1")
	assert.True(t, registry.IsProtectedMediaPlaying())
	assert.Equal(t, client.PlaybackStarted, (<-registry.Events()).Type)

	registry.SetVisible(false)
	assert.False(t, registry.IsProtectedMediaPlaying())
	assert.Equal(t, client.PlaybackStopped, (<-registry.Events()).Type)

	registry.SetVisible(true)
	assert.True(t, registry.IsProtectedMediaPlaying())
	<-registry.Events()

	registry.Play("audio-1")
	registry.End("video-1")
	assert.True(t, registry.IsProtectedMediaPlaying())

	registry.Pause("audio-1")
	assert.False(t, registry.IsProtectedMediaPlaying())
	assert.Equal(t, client.PlaybackStopped, (<-registry.Events()).Type)

	registry.Play("audio-1")
	registry.Unregister("audio-1")
	assert.False(t, registry.IsProtectedMediaPlaying())
}

func TestMergerDefersWhilePlaying(t *testing.T) {
	store := client.NewFeedStore()
	store.Replace(items("post", 20))
	registry := client.NewPlaybackRegistry()
	registry.Play("video-1")
	<-registry.Events()

	flushed := make(chan client.FlushResult, 4)
	merger := client.NewMerger(store, registry, client.MergerConfig{
		FlushInterval: time.Hour,
		OnFlush: func(result client.FlushResult, store *client.FeedStore) {
			flushed <- result
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go merger.Run(ctx, registry.Events())

	for _, it := range items("live", 3) {
		require.NoError(t, merger.AddLive(it))
	}

	pending, err := merger.Pending()
	require.NoError(t, err)
	assert.Len(t, pending.Adds, 3)
	assert.False(t, pending.HasRefresh)
	assert.Equal(t, 20, store.Len())

	// stopping playback flushes without waiting for the ticker
	registry.Pause("video-1")
	select {
	case result := <-flushed:
		assert.Equal(t, client.FlushPrepended, result)
	case <-time.After(5 * time.Second):
		t.Fatal("no flush after playback stopped")
	}

	got := store.Items()
	require.Len(t, got, 23)
	assert.Equal(t, []string{"live-0", "live-1", "live-2"}, ids(got[:3]))

	pending, err = merger.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending.Adds)
}

func TestMergerFlushesImmediatelyWhenIdle(t *testing.T) {
	store := client.NewFeedStore()
	merger := client.NewMerger(store, nil, client.MergerConfig{FlushInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go merger.Run(ctx, nil)

	require.NoError(t, merger.Refresh(items("fresh", 3)))
	require.NoError(t, merger.AddLive(items("live", 1)[0]))

	// Pending is answered after both messages were handled
	pending, err := merger.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending.Adds)
	assert.Equal(t, []string{"live-0", "fresh-0", "fresh-1", "fresh-2"}, ids(store.Items()))

	cancel()
	<-merger.Done()
	assert.ErrorIs(t, merger.AddLive(items("late", 1)[0]), client.ErrMergerStopped)
	_, err = merger.Pending()
	assert.ErrorIs(t, err, client.ErrMergerStopped)
}

func TestMergerTickerFlushes(t *testing.T) {
	store := client.NewFeedStore()
	playing := &fakeGuard{}
	playing.set(true)
	merger := client.NewMerger(store, playing, client.MergerConfig{FlushInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go merger.Run(ctx, nil)

	require.NoError(t, merger.AddLive(items("live", 1)[0]))
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, store.Len())

	playing.set(false)
	assert.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
}
