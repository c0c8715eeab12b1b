package feeds

import (
	"templefeed/models"
	"templefeed/query"
)

// FeedBuilder scores candidate items with weighted scoring layers
type FeedBuilder struct {
	scoringLayers []scoringLayer
}

type scoringLayer struct {
	strategy query.ScoringStrategy
	weight   float64
}

func NewFeedBuilder() *FeedBuilder {
	return &FeedBuilder{
		scoringLayers: make([]scoringLayer, 0),
	}
}

// NewDefaultFeedBuilder returns the additive pipeline used for /feed, every
// scoring component at weight 1
func NewDefaultFeedBuilder() *FeedBuilder {
	b := NewFeedBuilder()
	for _, strategy := range DefaultScoring {
		b.AddScoringLayer(strategy, 1.0)
	}
	return b
}

func (b *FeedBuilder) AddScoringLayer(strategy query.ScoringStrategy, weight float64) {
	b.scoringLayers = append(b.scoringLayers, scoringLayer{
		strategy: strategy,
		weight:   weight,
	})
}

// ScoreItem sums the weighted scores of all layers
func (b *FeedBuilder) ScoreItem(item models.FeedItem, sc query.ScoringContext) float64 {
	total := 0.0
	for _, layer := range b.scoringLayers {
		total += layer.weight * layer.strategy.Score(item, sc)
	}
	return total
}

// Build attaches a score to every item. Input order is preserved so the
// ranker can break ties by it.
func (b *FeedBuilder) Build(items []models.FeedItem, sc query.ScoringContext) []ScoredItem {
	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		scored = append(scored, ScoredItem{Item: item, Score: b.ScoreItem(item, sc)})
	}
	return scored
}
