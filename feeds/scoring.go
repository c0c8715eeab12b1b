package feeds

import (
	"math"
	"strings"
	"time"

	"templefeed/models"
	"templefeed/query"
)

const (
	FollowBoost        = 200.0
	RecencyWindowDays  = 100.0
	TrendingMultiplier = 3.0
	AffinityBoost      = 50.0
	PlayableBoost      = 10.0
)

// FollowScoring boosts items written by followed authors
type FollowScoring struct{}

func (s *FollowScoring) Score(item models.FeedItem, sc query.ScoringContext) float64 {
	if sc.User.Follows(item.Meta.AuthorId) {
		return FollowBoost
	}
	return 0
}

// RecencyScoring decays linearly to zero at RecencyWindowDays
type RecencyScoring struct{}

func (s *RecencyScoring) Score(item models.FeedItem, sc query.ScoringContext) float64 {
	created := item.CreatedTime()
	if created.IsZero() {
		return 0
	}
	days := sc.Now.Sub(created).Hours() / 24
	return math.Max(0, RecencyWindowDays-days)
}

// EngagementScoring rewards likes, views and comments on a log scale
type EngagementScoring struct{}

func (s *EngagementScoring) Score(item models.FeedItem, sc query.ScoringContext) float64 {
	m := 1.0
	if sc.Trending {
		m = TrendingMultiplier
	}
	return math.Log10(float64(item.Meta.Likes)+1)*10*m +
		math.Log10(float64(item.Meta.Views)+1)*5*m +
		math.Log10(float64(item.Meta.CommentsCount)+1)*3*m
}

// AffinityScoring counts matches between the item's deities and the user's
// favorites. Every matched pair counts.
type AffinityScoring struct{}

func (s *AffinityScoring) Score(item models.FeedItem, sc query.ScoringContext) float64 {
	if len(item.Meta.AssociatedDeities) == 0 || len(sc.User.FavoriteDeities) == 0 {
		return 0
	}
	matches := 0
	for _, deity := range item.Meta.AssociatedDeities {
		d := strings.ToLower(deity)
		for favorite := range sc.User.FavoriteDeities {
			f := strings.ToLower(favorite)
			if strings.Contains(d, f) || strings.Contains(f, d) {
				matches++
			}
		}
	}
	return float64(matches) * AffinityBoost
}

// TypeScoring prefers playable content
type TypeScoring struct{}

func (s *TypeScoring) Score(item models.FeedItem, sc query.ScoringContext) float64 {
	if item.Kind.Playable() {
		return PlayableBoost
	}
	return 0
}

// DefaultScoring is the additive scoring pipeline used for the feed
var DefaultScoring = []query.ScoringStrategy{
	&FollowScoring{},
	&RecencyScoring{},
	&EngagementScoring{},
	&AffinityScoring{},
	&TypeScoring{},
}

// Score computes the relevance of item. It is pure: now is passed in rather
// than read from the clock.
func Score(item models.FeedItem, user models.UserContext, trending bool, now time.Time) float64 {
	return defaultBuilder.ScoreItem(item, query.ScoringContext{User: user, Trending: trending, Now: now})
}

var defaultBuilder = NewDefaultFeedBuilder()

var _ query.ScoringStrategy = (*FollowScoring)(nil)
var _ query.ScoringStrategy = (*RecencyScoring)(nil)
var _ query.ScoringStrategy = (*EngagementScoring)(nil)
var _ query.ScoringStrategy = (*AffinityScoring)(nil)
var _ query.ScoringStrategy = (*TypeScoring)(nil)
