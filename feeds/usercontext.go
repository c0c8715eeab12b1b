package feeds

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"templefeed/db"
	"templefeed/models"
)

// UserContextLoader reads and caches the ranking signals of users
type UserContextLoader struct {
	store ProfileStore
	cache *cache.Cache
}

// NewUserContextLoader caches loaded contexts for ttl. A zero ttl disables
// caching.
func NewUserContextLoader(store ProfileStore, ttl time.Duration) *UserContextLoader {
	loader := &UserContextLoader{store: store}
	if ttl > 0 {
		loader.cache = cache.New(ttl, 2*ttl)
	}
	return loader
}

// Load returns the context of userId. An empty id yields the anonymous
// context. Store failures degrade the affected part to an empty set.
func (l *UserContextLoader) Load(ctx context.Context, userId string) models.UserContext {
	if userId == "" || l.store == nil {
		return models.AnonymousContext()
	}
	if l.cache != nil {
		if cached, ok := l.cache.Get(userId); ok {
			return cached.(models.UserContext)
		}
	}

	uc := models.AnonymousContext()
	var profile *models.Profile
	var following []string
	var profileErr, followingErr error

	var g errgroup.Group
	g.Go(func() error {
		profile, profileErr = l.store.GetProfile(ctx, userId)
		if errors.Is(profileErr, db.ErrNotFound) {
			profileErr = nil
		}
		return nil
	})
	g.Go(func() error {
		following, followingErr = l.store.GetFollowing(ctx, userId)
		return nil
	})
	_ = g.Wait()

	if profileErr != nil {
		log.WithFields(log.Fields{"userId": userId, "error": profileErr}).Warn("Failed to load profile")
	} else if profile != nil {
		uc.FavoriteDeities = models.ToSet(profile.FavoriteDeities)
		uc.Interests = models.ToSet(profile.Interests)
	}
	if followingErr != nil {
		log.WithFields(log.Fields{"userId": userId, "error": followingErr}).Warn("Failed to load following")
	} else {
		uc.FollowingUserIds = models.ToSet(following)
	}

	if l.cache != nil && profileErr == nil && followingErr == nil {
		l.cache.SetDefault(userId, uc)
	}
	return uc
}
