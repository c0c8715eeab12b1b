package feeds

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"templefeed/models"
	"templefeed/query"
)

// ErrAllSourcesFailed is returned when no requested category could be read
var ErrAllSourcesFailed = errors.New("all content sources failed")

const maxPostFetch = 100

// Fetcher retrieves candidate items from every requested category in parallel
type Fetcher struct {
	store      DocumentStore
	normalizer *Normalizer
	timeout    time.Duration
	filters    []query.ItemFilter
}

// NewFetcher creates a fetcher. Without explicit filters, context posts are
// removed from the results.
func NewFetcher(store DocumentStore, normalizer *Normalizer, timeout time.Duration, filters ...query.ItemFilter) *Fetcher {
	if len(filters) == 0 {
		filters = generalFilters
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	return &Fetcher{store: store, normalizer: normalizer, timeout: timeout, filters: filters}
}

// FetchLimit is the number of documents read from category for one page
func FetchLimit(category query.Category, pageSize int) int {
	if category == query.Posts {
		return min(2*pageSize, maxPostFetch)
	}
	return pageSize
}

// Fetch returns the normalized candidates of all categories selected by req,
// merged in category order. A failing category contributes nothing.
func (f *Fetcher) Fetch(ctx context.Context, req query.Request, now time.Time) ([]models.FeedItem, error) {
	categories := req.Categories()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	before := f.resolveCursor(ctx, req.LastCursor)

	results := make([][]models.FeedItem, len(categories))
	failed := make([]bool, len(categories))

	var g errgroup.Group
	for i, category := range categories {
		i, category := i, category
		g.Go(func() error {
			items, err := f.fetchCategory(ctx, category, req.PageSize, before, now)
			if err != nil {
				log.WithFields(log.Fields{
					"category": category,
					"error":    err,
				}).Warn("Category fetch failed")
				categoryFetchFailures.WithLabelValues(string(category)).Inc()
				failed[i] = true
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	allFailed := true
	merged := make([]models.FeedItem, 0)
	for i := range categories {
		if !failed[i] {
			allFailed = false
		}
		merged = append(merged, results[i]...)
	}
	if allFailed && len(categories) > 0 {
		return nil, ErrAllSourcesFailed
	}
	return merged, nil
}

func (f *Fetcher) fetchCategory(ctx context.Context, category query.Category, pageSize int, before time.Time, now time.Time) ([]models.FeedItem, error) {
	start := time.Now()
	defer func() {
		categoryFetchDuration.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())
	}()

	docs, err := f.store.FetchCategory(ctx, category, FetchLimit(category, pageSize), before)
	if err != nil {
		return nil, err
	}
	items := applyFilters(f.normalizer.NormalizeAll(docs, now), f.filters)
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	return items, nil
}

// resolveCursor turns the id of the last item of the previous page into a
// recency bound. Unknown cursors start from the first page.
func (f *Fetcher) resolveCursor(ctx context.Context, cursor string) time.Time {
	if cursor == "" {
		return time.Time{}
	}
	prefix, docId, ok := strings.Cut(cursor, "-")
	if !ok || docId == "" {
		log.WithField("cursor", cursor).Debug("Ignoring malformed cursor")
		return time.Time{}
	}
	category, ok := query.CategoryForPrefix(prefix)
	if !ok {
		log.WithField("cursor", cursor).Debug("Ignoring cursor with unknown prefix")
		return time.Time{}
	}
	before, err := f.store.ResolveCursor(ctx, category, docId)
	if err != nil {
		log.WithFields(log.Fields{
			"cursor": cursor,
			"error":  err,
		}).Debug("Could not resolve cursor")
		return time.Time{}
	}
	return before
}
