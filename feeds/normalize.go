package feeds

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"templefeed/models"
	"templefeed/query"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".webm": {}, ".m3u8": {}, ".mkv": {}, ".avi": {}, ".m4v": {},
}

// rawText is a title or description stored either as a plain string or as a
// map of language code to string
type rawText struct {
	plain     string
	localized map[string]string
}

func (t *rawText) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.plain)
	}
	return json.Unmarshal(data, &t.localized)
}

func (t rawText) empty() bool {
	return strings.TrimSpace(t.plain) == "" && len(t.localized) == 0
}

// count accepts a number or an array of ids (e.g. a likes list)
type count int64

func (c *count) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var ids []json.RawMessage
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		*c = count(len(ids))
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n < 0 {
		n = 0
	}
	*c = count(n)
	return nil
}

type rawDocument struct {
	Title       rawText `json:"title"`
	Name        rawText `json:"name"`
	Description rawText `json:"description"`
	Content     rawText `json:"content"`

	Thumbnail    string   `json:"thumbnail"`
	ThumbnailUrl string   `json:"thumbnailUrl"`
	ImageUrl     string   `json:"imageUrl"`
	CoverImage   string   `json:"coverImage"`
	Images       []string `json:"images"`
	MediaUrl     string   `json:"mediaUrl"`
	VideoUrl     string   `json:"videoUrl"`
	MediaType    string   `json:"mediaType"`

	AuthorId          string   `json:"authorId"`
	UserId            string   `json:"userId"`
	Likes             count    `json:"likes"`
	Views             count    `json:"views"`
	CommentsCount     count    `json:"commentsCount"`
	AssociatedDeities []string `json:"associatedDeities"`

	TempleId string           `json:"templeId"`
	Survey   *models.Survey   `json:"survey"`
	Question *models.Question `json:"question"`

	Duration float64          `json:"duration"`
	Location *models.Location `json:"location"`
	City     string           `json:"city"`
	State    string           `json:"state"`

	ExpiresAt string   `json:"expiresAt"`
	Aliases   []string `json:"aliases"`
}

// Normalizer validates raw documents and converts them into feed items
type Normalizer struct {
	detector LanguageDetector
}

func NewNormalizer(detector LanguageDetector) *Normalizer {
	if detector == nil {
		detector = noDetector{}
	}
	return &Normalizer{detector: detector}
}

// NormalizeAll converts docs, dropping the ones that fail validation
func (n *Normalizer) NormalizeAll(docs []models.Document, now time.Time) []models.FeedItem {
	items := make([]models.FeedItem, 0, len(docs))
	for _, doc := range docs {
		item, err := n.Normalize(doc, now)
		if err != nil {
			log.WithFields(log.Fields{
				"collection": doc.Collection,
				"id":         doc.Id,
				"error":      err,
			}).Debug("Dropping document")
			continue
		}
		items = append(items, item)
	}
	return items
}

// Normalize converts a single document
func (n *Normalizer) Normalize(doc models.Document, now time.Time) (models.FeedItem, error) {
	category := query.Category(doc.Collection)
	prefix := category.Prefix()
	if prefix == "" {
		return models.FeedItem{}, fmt.Errorf("unknown collection %q", doc.Collection)
	}
	if strings.TrimSpace(doc.Id) == "" {
		return models.FeedItem{}, fmt.Errorf("missing id")
	}

	var raw rawDocument
	if err := json.Unmarshal(doc.Body, &raw); err != nil {
		return models.FeedItem{}, fmt.Errorf("malformed body: %w", err)
	}

	item := models.FeedItem{
		Id:        prefix + "-" + doc.Id,
		CreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		Meta: models.Meta{
			AuthorId:          lo.Ternary(raw.AuthorId != "", raw.AuthorId, raw.UserId),
			Likes:             int64(raw.Likes),
			Views:             int64(raw.Views),
			CommentsCount:     int64(raw.CommentsCount),
			AssociatedDeities: lo.Compact(raw.AssociatedDeities),
		},
	}

	title := raw.Title
	if title.empty() {
		title = raw.Name
	}
	description := raw.Description
	if description.empty() {
		description = raw.Content
	}
	item.Title = n.localize(title)
	item.Description = n.localize(description)

	switch category {
	case query.Posts:
		item.Kind = models.KindPost
		item.MediaUrl = raw.MediaUrl
		mediaType := strings.ToLower(raw.MediaType)
		if (mediaType == "video" || mediaType == "audio") && raw.MediaUrl != "" {
			item.Kind = models.KindMedia
		}
		item.Meta.Post = &models.PostMeta{
			TempleId:  raw.TempleId,
			MediaType: mediaType,
			Survey:    raw.Survey,
			Question:  raw.Question,
		}
	case query.Videos:
		item.Kind = models.KindVideo
		item.MediaUrl = lo.Ternary(raw.VideoUrl != "", raw.VideoUrl, raw.MediaUrl)
		item.Meta.Video = &models.VideoMeta{DurationSeconds: raw.Duration}
	case query.Temples:
		item.Kind = models.KindTemple
		item.Meta.Temple = &models.TempleMeta{Location: raw.Location, City: raw.City, State: raw.State}
	case query.Stories:
		item.Kind = models.KindStory
		item.MediaUrl = lo.Ternary(raw.VideoUrl != "", raw.VideoUrl, raw.MediaUrl)
		if raw.ExpiresAt != "" {
			expiresAt, err := time.Parse(time.RFC3339Nano, raw.ExpiresAt)
			if err == nil && expiresAt.Before(now) {
				return models.FeedItem{}, fmt.Errorf("story expired at %s", raw.ExpiresAt)
			}
		}
		item.Meta.Story = &models.StoryMeta{ExpiresAt: raw.ExpiresAt}
	case query.Deities:
		item.Kind = models.KindDeity
		item.Meta.Deity = &models.DeityMeta{Aliases: raw.Aliases}
	}

	candidates := append([]string{raw.Thumbnail, raw.ThumbnailUrl, raw.ImageUrl, raw.CoverImage}, raw.Images...)
	item.Thumbnail, _ = lo.Find(candidates, func(u string) bool {
		return strings.TrimSpace(u) != "" && !IsVideoURL(u)
	})

	return item, nil
}

func (n *Normalizer) localize(text rawText) models.Localized {
	if len(text.localized) > 0 {
		localized := lo.PickBy(text.localized, func(_ string, v string) bool {
			return strings.TrimSpace(v) != ""
		})
		if len(localized) == 0 {
			return nil
		}
		return localized
	}
	if strings.TrimSpace(text.plain) == "" {
		return nil
	}
	code, ok := n.detector.Detect(text.plain)
	if !ok {
		code = "en"
	}
	return models.Localized{code: text.plain}
}

// IsVideoURL reports whether u points at a video file or stream
func IsVideoURL(u string) bool {
	p := u
	if parsed, err := url.Parse(u); err == nil {
		p = parsed.Path
	}
	_, ok := videoExtensions[strings.ToLower(path.Ext(p))]
	return ok
}
