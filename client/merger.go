package client

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"templefeed/models"
)

const DefaultFlushInterval = 1500 * time.Millisecond

// ErrMergerStopped is returned when a message is sent after Run returned
var ErrMergerStopped = errors.New("merger stopped")

type addLiveMsg struct {
	item models.FeedItem
}

type refreshMsg struct {
	items []models.FeedItem
}

type pendingMsg struct {
	reply chan PendingState
}

// PendingState is a snapshot of what the merger still holds back
type PendingState struct {
	Adds       []models.FeedItem
	HasRefresh bool
}

// MergerConfig tunes a Merger
type MergerConfig struct {
	FlushInterval  time.Duration
	MaxPendingAdds int
	// OnFlush is called from the merger goroutine after the store changed
	OnFlush func(result FlushResult, store *FeedStore)
}

// Merger is the single goroutine that owns the merge buffer. Producers send
// it live items and refresh snapshots; it flushes them into the store after
// every message, on every playback stop and on a fixed interval.
type Merger struct {
	store  *FeedStore
	guard  PlaybackGuard
	buffer *MergeBuffer
	config MergerConfig

	inbox   chan interface{}
	stopped chan struct{}
}

func NewMerger(store *FeedStore, guard PlaybackGuard, config MergerConfig) *Merger {
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	return &Merger{
		store:   store,
		guard:   guard,
		buffer:  NewMergeBuffer(config.MaxPendingAdds),
		config:  config,
		inbox:   make(chan interface{}, 64),
		stopped: make(chan struct{}),
	}
}

// Run processes messages until ctx is done. playback may be nil.
func (m *Merger) Run(ctx context.Context, playback <-chan PlaybackEvent) {
	defer close(m.stopped)

	ticker := time.NewTicker(m.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.flush()
		case event := <-playback:
			log.Debugf("Playback %s", event.Type)
			if event.Type == PlaybackStopped {
				m.flush()
			}
		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case addLiveMsg:
				m.buffer.AddLive(msg.item)
			case refreshMsg:
				m.buffer.SetRefresh(msg.items)
			case pendingMsg:
				adds, hasRefresh := m.buffer.Pending()
				msg.reply <- PendingState{Adds: adds, HasRefresh: hasRefresh}
				continue
			}
			m.flush()
		}
	}
}

func (m *Merger) flush() {
	deferring := m.guard != nil && m.guard.IsProtectedMediaPlaying()
	result := m.buffer.Flush(m.store, deferring)
	switch result {
	case FlushNothing:
		return
	case FlushDeferred:
		log.Debug("Protected media playing, deferring feed update")
		return
	}
	log.WithFields(log.Fields{
		"result": result.String(),
		"items":  m.store.Len(),
	}).Debug("Flushed feed updates")
	if m.config.OnFlush != nil {
		m.config.OnFlush(result, m.store)
	}
}

func (m *Merger) send(msg interface{}) error {
	select {
	case <-m.stopped:
		return ErrMergerStopped
	default:
	}
	select {
	case m.inbox <- msg:
		return nil
	case <-m.stopped:
		return ErrMergerStopped
	}
}

// AddLive queues an item observed on the live subscription
func (m *Merger) AddLive(item models.FeedItem) error {
	return m.send(addLiveMsg{item: item})
}

// Refresh queues a complete replacement snapshot
func (m *Merger) Refresh(items []models.FeedItem) error {
	return m.send(refreshMsg{items: items})
}

// Pending asks the merger what it still holds back
func (m *Merger) Pending() (PendingState, error) {
	reply := make(chan PendingState, 1)
	if err := m.send(pendingMsg{reply: reply}); err != nil {
		return PendingState{}, err
	}
	select {
	case state := <-reply:
		return state, nil
	case <-m.stopped:
		return PendingState{}, ErrMergerStopped
	}
}

// Done is closed once Run has returned
func (m *Merger) Done() <-chan struct{} {
	return m.stopped
}
