// Package feeds builds the ranked home feed: it fetches candidates from every
// content category, scores and interleaves them, and pages the result.
package feeds

import (
	"context"
	"time"

	"templefeed/models"
	"templefeed/query"
)

// DocumentStore is the read side of the content collections
type DocumentStore interface {
	FetchCategory(ctx context.Context, category query.Category, limit int, before time.Time) ([]models.Document, error)
	ResolveCursor(ctx context.Context, category query.Category, docId string) (time.Time, error)
	RecentPosts(ctx context.Context, limit int) ([]models.Document, error)
	PostsSince(ctx context.Context, since time.Time, limit int) ([]models.Document, error)
}

// ProfileStore reads the ranking signals of a user
type ProfileStore interface {
	GetProfile(ctx context.Context, userId string) (*models.Profile, error)
	GetFollowing(ctx context.Context, userId string) ([]string, error)
}

// Publisher receives live events for connected clients
type Publisher interface {
	Publish(event models.LiveEvent)
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time
