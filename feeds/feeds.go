package feeds

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"templefeed/config"
	"templefeed/models"
	"templefeed/query"
)

// Service generates feed pages
type Service struct {
	fetcher    *Fetcher
	users      *UserContextLoader
	builder    *FeedBuilder
	store      DocumentStore
	normalizer *Normalizer
	now        Clock

	defaultPageSize int
	maxPageSize     int
}

type ServiceOption func(*Service)

// WithClock replaces the wall clock used for recency and story expiry
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.now = clock
	}
}

// WithBuilder replaces the default scoring pipeline
func WithBuilder(builder *FeedBuilder) ServiceOption {
	return func(s *Service) {
		s.builder = builder
	}
}

func NewService(store DocumentStore, profiles ProfileStore, cfg config.FeedConfig, opts ...ServiceOption) *Service {
	normalizer := NewNormalizer(NewLanguageDetector(cfg.Languages))
	s := &Service{
		fetcher:    NewFetcher(store, normalizer, cfg.FetchTimeout),
		users:      NewUserContextLoader(profiles, cfg.UserContextTTL),
		builder:    NewDefaultFeedBuilder(),
		store:      store,
		normalizer: normalizer,
		now:        time.Now,

		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
	if s.defaultPageSize <= 0 {
		s.defaultPageSize = query.DefaultPageSize
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = query.MaxPageSize
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs one feed request: load the user context, fetch candidates,
// score, rank and page them.
func (s *Service) Generate(ctx context.Context, req query.Request) (*models.FeedResponse, error) {
	if err := req.ValidateLimits(s.defaultPageSize, s.maxPageSize); err != nil {
		return nil, err
	}
	now := s.now()

	mode := "normal"
	if req.Trending {
		mode = "trending"
	}
	feedRequests.WithLabelValues(mode).Inc()

	uc := s.users.Load(ctx, req.UserId)

	candidates, err := s.fetcher.Fetch(ctx, req, now)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	scored := s.builder.Build(candidates, query.ScoringContext{User: uc, Trending: req.Trending, Now: now})
	page := Rank(scored, req.Trending, uc, req.PageSize)

	log.WithFields(log.Fields{
		"userId":     req.UserId,
		"filter":     req.Filter,
		"trending":   req.Trending,
		"candidates": len(candidates),
		"returned":   len(page),
	}).Debug("Generated feed")

	resp := Paginate(page)
	return &resp, nil
}

// Recent returns the newest general posts without ranking
func (s *Service) Recent(ctx context.Context, limit int) (*models.FeedResponse, error) {
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	limit = min(limit, s.maxPageSize)

	docs, err := s.store.RecentPosts(ctx, min(2*limit, maxPostFetch))
	if err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}
	items := applyFilters(s.normalizer.NormalizeAll(docs, s.now()), s.fetcher.filters)
	if len(items) > limit {
		items = items[:limit]
	}
	resp := Paginate(items)
	return &resp, nil
}

// Normalizer returns the normalizer shared by the service and its watcher
func (s *Service) Normalizer() *Normalizer {
	return s.normalizer
}
