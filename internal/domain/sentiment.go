package domain

import "context"

// SentimentScorer returns the normalized sentiment of a text in [-1, 1].
type SentimentScorer interface {
	Score(ctx context.Context, text string) (float64, error)
}
