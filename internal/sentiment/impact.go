package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/darthbatman/TypeSense/internal/domain"
)

const (
	windowSize  = 3
	paddingText = " "
)

// padding precedes every batch so the first real message has a full window
// and window 0 is a fixed neutral baseline.
var padding = [windowSize]domain.Message{
	{Author: "\x00padding-0", Text: paddingText},
	{Author: "\x00padding-1", Text: paddingText},
	{Author: "\x00padding-2", Text: paddingText},
}

// Calculator attributes sentiment to individual messages.
type Calculator struct {
	scorer domain.SentimentScorer
}

func NewCalculator(scorer domain.SentimentScorer) *Calculator {
	return &Calculator{scorer: scorer}
}

// Compute returns one record per message, in input order. Record j carries
// score(window j+1) - score(window j), where window i covers padded[i:i+3]
// and window j+1 is the first window ending in message j.
//
// Windows are scored sequentially. Any scorer error aborts the batch and no
// records are returned.
func (c *Calculator) Compute(ctx context.Context, messages []domain.Message) ([]domain.ImpactRecord, error) {
	if len(messages) == 0 {
		return []domain.ImpactRecord{}, nil
	}

	padded := make([]domain.Message, 0, len(padding)+len(messages))
	padded = append(padded, padding[:]...)
	padded = append(padded, messages...)

	records := make([]domain.ImpactRecord, 0, len(messages))

	previous, err := c.scoreWindow(ctx, padded, 0)
	if err != nil {
		return nil, err
	}

	for i := 1; i+windowSize <= len(padded); i++ {
		current, err := c.scoreWindow(ctx, padded, i)
		if err != nil {
			return nil, err
		}

		msg := padded[i+windowSize-1]
		records = append(records, domain.ImpactRecord{
			ContentID:      ContentID(msg.Text),
			SentimentDelta: current - previous,
			Author:         msg.Author,
		})
		previous = current
	}

	return records, nil
}

func (c *Calculator) scoreWindow(ctx context.Context, padded []domain.Message, start int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("window %d: %w: %w", start, domain.ErrScoringFailed, err)
	}

	score, err := c.scorer.Score(ctx, WindowContext(padded[start:start+windowSize]))
	if err != nil {
		return 0, fmt.Errorf("window %d: %w: %w", start, domain.ErrScoringFailed, err)
	}
	return score, nil
}

// WindowContext joins the window's texts with single spaces.
func WindowContext(window []domain.Message) string {
	texts := make([]string, len(window))
	for i, m := range window {
		texts[i] = m.Text
	}
	return strings.Join(texts, " ")
}
