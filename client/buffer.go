package client

import (
	"templefeed/models"
)

const DefaultMaxPendingAdds = 50

// FlushResult tells what a flush attempt did
type FlushResult int

const (
	FlushNothing FlushResult = iota
	FlushDeferred
	FlushRefreshed
	FlushPrepended
)

func (r FlushResult) String() string {
	switch r {
	case FlushDeferred:
		return "deferred"
	case FlushRefreshed:
		return "refreshed"
	case FlushPrepended:
		return "prepended"
	}
	return "nothing"
}

// MergeBuffer holds updates that have not reached the store yet. It is not
// safe for concurrent use; the Merger owns it.
type MergeBuffer struct {
	maxAdds        int
	pendingAdds    []models.FeedItem
	pendingRefresh []models.FeedItem
	hasRefresh     bool
}

func NewMergeBuffer(maxAdds int) *MergeBuffer {
	if maxAdds <= 0 {
		maxAdds = DefaultMaxPendingAdds
	}
	return &MergeBuffer{maxAdds: maxAdds}
}

// AddLive queues a live item, keeping only the most recent maxAdds
func (b *MergeBuffer) AddLive(item models.FeedItem) {
	b.pendingAdds = append(b.pendingAdds, item)
	if over := len(b.pendingAdds) - b.maxAdds; over > 0 {
		b.pendingAdds = append([]models.FeedItem(nil), b.pendingAdds[over:]...)
	}
}

// SetRefresh replaces any queued refresh with items
func (b *MergeBuffer) SetRefresh(items []models.FeedItem) {
	b.pendingRefresh = append([]models.FeedItem{}, items...)
	b.hasRefresh = true
}

// Pending returns the queued adds and whether a refresh is waiting
func (b *MergeBuffer) Pending() ([]models.FeedItem, bool) {
	return append([]models.FeedItem{}, b.pendingAdds...), b.hasRefresh
}

// Flush applies the queued updates to store unless deferring. A refresh
// replaces the store and discards queued adds; otherwise unseen adds are
// prepended in arrival order.
func (b *MergeBuffer) Flush(store *FeedStore, deferring bool) FlushResult {
	if !b.hasRefresh && len(b.pendingAdds) == 0 {
		return FlushNothing
	}
	if deferring {
		return FlushDeferred
	}
	if b.hasRefresh {
		store.Replace(b.pendingRefresh)
		b.pendingRefresh = nil
		b.hasRefresh = false
		b.pendingAdds = nil
		return FlushRefreshed
	}
	store.Prepend(b.pendingAdds)
	b.pendingAdds = nil
	return FlushPrepended
}
