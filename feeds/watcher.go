package feeds

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"templefeed/models"
)

// Watcher polls the post collection and publishes newly observed general
// posts to live subscribers
type Watcher struct {
	store      DocumentStore
	normalizer *Normalizer
	publisher  Publisher
	interval   time.Duration
	batchSize  int
	now        Clock

	since time.Time
	// ids already published with created_at == since
	boundary map[string]struct{}
}

const defaultPollInterval = 5 * time.Second

func NewWatcher(store DocumentStore, normalizer *Normalizer, publisher Publisher, interval time.Duration, batchSize int) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Watcher{
		store:      store,
		normalizer: normalizer,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		now:        time.Now,
		boundary:   map[string]struct{}{},
	}
}

// Run starts from the newest stored post and polls until ctx is done
func (w *Watcher) Run(ctx context.Context, latest time.Time) {
	w.since = latest
	if w.since.IsZero() {
		w.since = w.now().UTC()
	}
	w.boundary = map[string]struct{}{}
	if !latest.IsZero() {
		// the newest posts themselves were already visible to /feed
		for limit := w.batchSize; ; limit *= 2 {
			docs, err := w.store.PostsSince(ctx, latest, limit)
			if err != nil {
				break
			}
			for _, doc := range docs {
				if doc.CreatedAt.Equal(latest) {
					w.boundary[doc.Id] = struct{}{}
				}
			}
			if len(docs) < limit || len(w.boundary) < len(docs) {
				break
			}
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithFields(log.Fields{
		"since":    w.since,
		"interval": w.interval,
	}).Info("Watching for new posts")

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping post watcher")
			return
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				log.WithError(err).Warn("Post watcher poll failed")
			}
		}
	}
}

// Poll publishes every post created since the last poll and returns how many
// events were published
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	// every boundary post is read again, so the batch is counted past them
	docs, err := w.store.PostsSince(ctx, w.since, w.batchSize+len(w.boundary))
	if err != nil {
		return 0, err
	}

	fresh := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.CreatedAt.Equal(w.since) {
			if _, seen := w.boundary[doc.Id]; seen {
				continue
			}
		}
		fresh = append(fresh, doc)
		if doc.CreatedAt.After(w.since) {
			w.since = doc.CreatedAt
			w.boundary = map[string]struct{}{}
		}
		w.boundary[doc.Id] = struct{}{}
	}

	items := applyFilters(w.normalizer.NormalizeAll(fresh, w.now()), generalFilters)
	for _, item := range items {
		w.publisher.Publish(models.LiveEvent{Type: models.LiveEventCreate, Item: item})
		watcherBroadcasts.Inc()
	}
	return len(items), nil
}
