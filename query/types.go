package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"templefeed/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Category is one of the independently stored content collections
type Category string

const (
	Posts   Category = "posts"
	Videos  Category = "videos"
	Temples Category = "temples"
	Stories Category = "stories"
	Deities Category = "deities"
)

// AllCategories in the order their results are merged
var AllCategories = []Category{Posts, Videos, Temples, Stories, Deities}

// Prefix is the id prefix of items sourced from the category
func (c Category) Prefix() string {
	switch c {
	case Posts:
		return "post"
	case Videos:
		return "video"
	case Temples:
		return "temple"
	case Stories:
		return "story"
	case Deities:
		return "deity"
	}
	return ""
}

// CategoryForPrefix maps an id prefix back to its category
func CategoryForPrefix(prefix string) (Category, bool) {
	for _, c := range AllCategories {
		if c.Prefix() == prefix {
			return c, true
		}
	}
	return "", false
}

// Request holds the /feed query parameters
type Request struct {
	UserId     string `query:"userId"`
	PageSize   int    `query:"pageSize" validate:"gte=0"`
	LastCursor string `query:"lastCursor"`
	Filter     string `query:"filter" validate:"omitempty,oneof=posts videos temples stories deities"`
	Trending   bool   `query:"trending"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrInvalidRequest wraps every request validation failure
var ErrInvalidRequest = errors.New("invalid feed request")

// ValidateLimits checks the request and applies defaultPageSize when no page
// size was given
func (r *Request) ValidateLimits(defaultPageSize, maxPageSize int) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.PageSize > maxPageSize {
		return fmt.Errorf("%w: pageSize must be at most %d", ErrInvalidRequest, maxPageSize)
	}
	if r.PageSize == 0 {
		r.PageSize = defaultPageSize
	}
	return nil
}

// Categories returns the categories selected by the filter
func (r Request) Categories() []Category {
	if r.Filter == "" {
		return AllCategories
	}
	return []Category{Category(r.Filter)}
}

// ItemFilter removes items after they have been fetched and normalized
type ItemFilter interface {
	Keep(item models.FeedItem) bool
}

// ScoringContext carries the request wide inputs of a scoring pass
type ScoringContext struct {
	User     models.UserContext
	Trending bool
	Now      time.Time
}

// ScoringStrategy scores one aspect of an item. The final score is the sum of
// all strategies.
type ScoringStrategy interface {
	Score(item models.FeedItem, sc ScoringContext) float64
}
