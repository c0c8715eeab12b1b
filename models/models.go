package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind tags the shape of a FeedItem
type Kind string

const (
	KindPost   Kind = "post"
	KindVideo  Kind = "video"
	KindTemple Kind = "temple"
	KindStory  Kind = "story"
	KindDeity  Kind = "deity"
	KindMedia  Kind = "media"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPost, KindVideo, KindTemple, KindStory, KindDeity, KindMedia:
		return true
	}
	return false
}

// Playable reports whether items of this kind carry protected media
func (k Kind) Playable() bool {
	return k == KindVideo || k == KindMedia
}

// Localized maps a language code to a localized string
type Localized map[string]string

// Get returns the text for lang, falling back to English
func (l Localized) Get(lang string) string {
	if s, ok := l[lang]; ok {
		return s
	}
	return l["en"]
}

// FeedItem is a normalized, kind-tagged content unit
type FeedItem struct {
	Id          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       Localized `json:"title,omitempty"`
	Description Localized `json:"description,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	MediaUrl    string    `json:"mediaUrl,omitempty"`
	CreatedAt   string    `json:"createdAt"`
	Meta        Meta      `json:"meta"`
}

// CreatedTime parses CreatedAt. The zero time is returned for malformed values.
func (i FeedItem) CreatedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, i.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Meta is the attribute bag of a FeedItem. The common counters are shared by all
// kinds; exactly one of the kind specific extensions is set.
type Meta struct {
	AuthorId          string   `json:"authorId,omitempty"`
	Likes             int64    `json:"likes"`
	Views             int64    `json:"views"`
	CommentsCount     int64    `json:"commentsCount"`
	AssociatedDeities []string `json:"associatedDeities,omitempty"`

	Post   *PostMeta   `json:"post,omitempty"`
	Video  *VideoMeta  `json:"video,omitempty"`
	Temple *TempleMeta `json:"temple,omitempty"`
	Story  *StoryMeta  `json:"story,omitempty"`
	Deity  *DeityMeta  `json:"deity,omitempty"`
}

type PostMeta struct {
	// TempleId is set for posts that belong to a temple's discussion thread
	TempleId  string    `json:"templeId,omitempty"`
	MediaType string    `json:"mediaType,omitempty"`
	Survey    *Survey   `json:"survey,omitempty"`
	Question  *Question `json:"question,omitempty"`
}

type Survey struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type Question struct {
	Text    string `json:"text"`
	Answers int64  `json:"answers"`
}

type VideoMeta struct {
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

type TempleMeta struct {
	Location *Location `json:"location,omitempty"`
	City     string    `json:"city,omitempty"`
	State    string    `json:"state,omitempty"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type StoryMeta struct {
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type DeityMeta struct {
	Aliases []string `json:"aliases,omitempty"`
}

// UserContext holds the ranking signals of the requesting user
type UserContext struct {
	FavoriteDeities  map[string]struct{}
	Interests        map[string]struct{}
	FollowingUserIds map[string]struct{}
}

// AnonymousContext returns a context with three empty sets
func AnonymousContext() UserContext {
	return UserContext{
		FavoriteDeities:  map[string]struct{}{},
		Interests:        map[string]struct{}{},
		FollowingUserIds: map[string]struct{}{},
	}
}

// Follows reports whether authorId is followed. Empty ids never match.
func (uc UserContext) Follows(authorId string) bool {
	if authorId == "" {
		return false
	}
	_, ok := uc.FollowingUserIds[authorId]
	return ok
}

// ToSet builds a set from values, skipping blanks
func ToSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

type FeedResponse struct {
	Feed   []FeedItem `json:"feed"`
	Cursor *string    `json:"cursor,omitempty"`
}

// LiveEvent is pushed to live subscribers when new content is observed
type LiveEvent struct {
	Type string   `json:"type"`
	Item FeedItem `json:"item"`
}

const LiveEventCreate = "create"

// Document is a raw record of one of the source collections
type Document struct {
	Collection string          `json:"collection"`
	Id         string          `json:"id"`
	CreatedAt  time.Time       `json:"createdAt"`
	Body       json.RawMessage `json:"body"`
}

// Profile is the stored preference record of a user
type Profile struct {
	UserId          string   `json:"userId"`
	FavoriteDeities []string `json:"favoriteDeities"`
	Interests       []string `json:"interests"`
}

// Follow is a follower -> followee edge
type Follow struct {
	FollowerId string `json:"followerId"`
	FolloweeId string `json:"followeeId"`
}

// CreateDocumentEvent fired when a document is ingested
type CreateDocumentEvent struct {
	Document Document
}

// DeleteDocumentEvent fired when a document is removed
type DeleteDocumentEvent struct {
	Collection string
	Id         string
}

type UpsertProfileEvent struct {
	Profile Profile
}

type FollowEvent struct {
	Follow Follow
}
