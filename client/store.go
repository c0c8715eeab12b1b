// Package client keeps a local, live-updating copy of the feed: it loads pages
// from a feed server, merges live and refreshed items, and holds back changes
// while protected media is playing.
package client

import (
	"sync"

	"templefeed/models"
)

// FeedStore is the ordered list of items shown to the user. It never holds
// two items with the same id.
type FeedStore struct {
	mu      sync.RWMutex
	items   []models.FeedItem
	ids     map[string]struct{}
	version uint64
}

func NewFeedStore() *FeedStore {
	return &FeedStore{ids: map[string]struct{}{}}
}

// Items returns a copy of the current list
func (s *FeedStore) Items() []models.FeedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeedItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *FeedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *FeedStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Version increases with every mutation
func (s *FeedStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Replace swaps the whole list. Later duplicates of an id are dropped.
func (s *FeedStore) Replace(items []models.FeedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(items))
	kept := make([]models.FeedItem, 0, len(items))
	for _, it := range items {
		if _, seen := ids[it.Id]; seen {
			continue
		}
		ids[it.Id] = struct{}{}
		kept = append(kept, it)
	}
	s.items = kept
	s.ids = ids
	s.version++
}

// Prepend puts the unseen items in front of the list, keeping their order.
// It returns how many were added.
func (s *FeedStore) Prepend(items []models.FeedItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]models.FeedItem, 0, len(items))
	for _, it := range items {
		if _, seen := s.ids[it.Id]; seen {
			continue
		}
		s.ids[it.Id] = struct{}{}
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return 0
	}
	s.items = append(fresh, s.items...)
	s.version++
	return len(fresh)
}
