package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"templefeed/firehose"
	"templefeed/models"
	"templefeed/query"
)

// SessionConfig describes one client feed session
type SessionConfig struct {
	ServerURL      string
	Request        query.Request
	RequestTimeout time.Duration
	FlushInterval  time.Duration
	MaxPendingAdds int
	// RefreshEvery triggers a background refresh, zero disables it
	RefreshEvery time.Duration
	// Live subscribes to the server's live endpoint
	Live         bool
	LiveCompress bool
	// OnChange is called with the new contents after every store change
	OnChange func(items []models.FeedItem)
}

// Session wires the API, the live subscription and the merger around one
// FeedStore
type Session struct {
	config   SessionConfig
	api      *API
	store    *FeedStore
	playback *PlaybackRegistry
	merger   *Merger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates a session. A nil playback registry gets a fresh one.
func NewSession(config SessionConfig, playback *PlaybackRegistry) *Session {
	if playback == nil {
		playback = NewPlaybackRegistry()
	}
	config.Request.LastCursor = ""

	s := &Session{
		config:   config,
		api:      NewAPI(config.ServerURL, config.RequestTimeout),
		store:    NewFeedStore(),
		playback: playback,
	}
	s.merger = NewMerger(s.store, playback, MergerConfig{
		FlushInterval:  config.FlushInterval,
		MaxPendingAdds: config.MaxPendingAdds,
		OnFlush: func(result FlushResult, store *FeedStore) {
			s.notify()
		},
	})
	return s
}

func (s *Session) Store() *FeedStore {
	return s.store
}

func (s *Session) Playback() *PlaybackRegistry {
	return s.playback
}

func (s *Session) Pending() (PendingState, error) {
	return s.merger.Pending()
}

func (s *Session) notify() {
	if s.config.OnChange != nil {
		s.config.OnChange(s.store.Items())
	}
}

// Start loads the first page and starts the merge loop, the live subscription
// and the periodic refresh. It fails only when no page could be loaded.
func (s *Session) Start(ctx context.Context) error {
	resp, err := s.api.Feed(ctx, s.config.Request)
	if err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	s.store.Replace(resp.Feed)
	s.notify()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.merger.Run(ctx, s.playback.Events())
	}()

	if s.config.Live {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.subscribe(ctx)
		}()
	}

	if s.config.RefreshEvery > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(s.config.RefreshEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := s.Refresh(ctx); err != nil {
						log.WithError(err).Warn("Background refresh failed")
					}
				}
			}
		}()
	}
	return nil
}

func (s *Session) subscribe(ctx context.Context) {
	events := make(chan models.LiveEvent, 64)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-events:
				if err := s.merger.AddLive(event.Item); err != nil {
					return
				}
			}
		}
	}()

	err := firehose.Subscribe(ctx, firehose.LiveConfig{
		Hosts:     []string{s.config.ServerURL},
		Compress:  s.config.LiveCompress,
		UserAgent: "templefeed-client",
	}, events)
	if err != nil {
		log.WithError(err).Error("Live subscription failed")
	}
}

// Refresh fetches the first page again and queues it as a replacement
func (s *Session) Refresh(ctx context.Context) error {
	resp, err := s.api.Feed(ctx, s.config.Request)
	if err != nil {
		return err
	}
	return s.merger.Refresh(resp.Feed)
}

// Close tears down the live subscription and the merge loop
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
