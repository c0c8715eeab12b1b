package feeds_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templefeed/feeds"
	"templefeed/models"
)

type fixedDetector string

func (d fixedDetector) Detect(string) (string, bool) { return string(d), d != "" }

func doc(collection, id, body string) models.Document {
	return models.Document{Collection: collection, Id: id, CreatedAt: now, Body: []byte(body)}
}

func TestNormalize(t *testing.T) {
	normalizer := feeds.NewNormalizer(fixedDetector("hi"))

	tests := []struct {
		name  string
		doc   models.Document
		check func(t *testing.T, it models.FeedItem)
	}{
		{
			name: "plain post",
			doc:  doc("posts", "1", `{"title":"Aarti tonight","content":"Join us","userId":"u1","likes":["a","b","c"],"views":12}`),
			check: func(t *testing.T, it models.FeedItem) {
				assert.Equal(t, "post-1", it.Id)
				assert.Equal(t, models.KindPost, it.Kind)
				assert.Equal(t, models.Localized{"hi": "Aarti tonight"}, it.Title)
				assert.Equal(t, models.Localized{"hi": "Join us"}, it.Description)
				assert.Equal(t, "u1", it.Meta.AuthorId)
				assert.Equal(t, int64(3), it.Meta.Likes)
				assert.Equal(t, int64(12), it.Meta.Views)
				assert.Equal(t, now.Format(time.RFC3339Nano), it.CreatedAt)
			},
		},
		{
			name: "localized title",
			doc:  doc("temples", "kashi", `{"name":{"en":"Kashi Vishwanath","hi":"काशी विश्वनाथ","ta":""},"city":"Varanasi"}`),
			check: func(t *testing.T, it models.FeedItem) {
				assert.Equal(t, models.KindTemple, it.Kind)
				assert.Equal(t, models.Localized{"en": "Kashi Vishwanath", "hi": "काशी विश्वनाथ"}, it.Title)
				require.NotNil(t, it.Meta.Temple)
				assert.Equal(t, "Varanasi", it.Meta.Temple.City)
			},
		},
		{
			name: "post with audio becomes media",
			doc:  doc("posts", "2", `{"mediaType":"AUDIO","mediaUrl":"https://cdn/x.mp3"}`),
			check: func(t *testing.T, it models.FeedItem) {
				assert.Equal(t, models.KindMedia, it.Kind)
				assert.Equal(t, "https://cdn/x.mp3", it.MediaUrl)
			},
		},
		{
			name: "video media type without url stays a post",
			doc:  doc("posts", "3", `{"mediaType":"video"}`),
			check: func(t *testing.T, it models.FeedItem) {
				assert.Equal(t, models.KindPost, it.Kind)
			},
		},
		{
			name: "thumbnail skips video urls",
			doc:  doc("videos", "4", `{"thumbnail":"https://cdn/clip.mp4","imageUrl":"","images":["https://cdn/v/stream.m3u8?x=1","https://cdn/poster.jpg"],"videoUrl":"https://cdn/clip.mp4"}`),
			check: func(t *testing.T, it models.FeedItem) {
				assert.Equal(t, models.KindVideo, it.Kind)
				assert.Equal(t, "https://cdn/poster.jpg", it.Thumbnail)
				assert.Equal(t, "https://cdn/clip.mp4", it.MediaUrl)
			},
		},
		{
			name: "thumbnail never falls back to media",
			doc:  doc("videos", "5", `{"thumbnail":"https://cdn/clip.webm","videoUrl":"https://cdn/clip.webm"}`),
			check: func(t *testing.T, it models.FeedItem) {
				assert.Empty(t, it.Thumbnail)
			},
		},
		{
			name: "deity aliases",
			doc:  doc("deities", "ganesha", `{"name":"Ganesha","aliases":["Vinayaka","Ganapati"],"associatedDeities":["ganesha",""]}`),
			check: func(t *testing.T, it models.FeedItem) {
				assert.Equal(t, models.KindDeity, it.Kind)
				require.NotNil(t, it.Meta.Deity)
				assert.Equal(t, []string{"Vinayaka", "Ganapati"}, it.Meta.Deity.Aliases)
				assert.Equal(t, []string{"ganesha"}, it.Meta.AssociatedDeities)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := normalizer.Normalize(tt.doc, now)
			require.NoError(t, err)
			tt.check(t, it)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	normalizer := feeds.NewNormalizer(nil)

	tests := []struct {
		name string
		doc  models.Document
	}{
		{name: "missing id", doc: doc("posts", " ", `{}`)},
		{name: "unknown collection", doc: doc("comments", "1", `{}`)},
		{name: "malformed body", doc: doc("posts", "1", `{"title":`)},
		{name: "expired story", doc: doc("stories", "1", `{"expiresAt":"2026-02-01T00:00:00Z"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := normalizer.Normalize(tt.doc, now)
			assert.Error(t, err)
		})
	}

	items := normalizer.NormalizeAll([]models.Document{
		doc("posts", "", `{}`),
		doc("stories", "live", `{"expiresAt":"2026-04-01T00:00:00Z"}`),
	}, now)
	assert.Equal(t, []string{"story-live"}, ids(items))
}

func TestNormalizePlainTextFallsBackToEnglish(t *testing.T) {
	it, err := feeds.NewNormalizer(nil).Normalize(doc("posts", "1", `{"title":"Hello"}`), now)
	require.NoError(t, err)
	assert.Equal(t, models.Localized{"en": "Hello"}, it.Title)
}

func TestIsVideoURL(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"https://cdn/a.mp4", true},
		{"https://cdn/a.MOV", true},
		{"https://cdn/live/index.m3u8?token=1", true},
		{"https://cdn/a.jpg", false},
		{"https://cdn/video/a.png", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, feeds.IsVideoURL(tt.url))
		})
	}
}
