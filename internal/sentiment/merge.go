package sentiment

import "github.com/darthbatman/TypeSense/internal/domain"

// MergeStats describes what a merge did.
type MergeStats struct {
	Appended int
	Skipped  int
	Evicted  int
}

// Merge appends the batch records whose content id is not yet known, oldest
// first, then keeps only the newest domain.MaxRecords. Duplicates inside the
// batch collapse to their first occurrence. existing is not modified.
func Merge(existing domain.ConversationState, batch []domain.ImpactRecord) domain.ConversationState {
	state, _ := MergeWithStats(existing, batch)
	return state
}

// MergeWithStats is Merge plus counters for metrics and logging.
func MergeWithStats(existing domain.ConversationState, batch []domain.ImpactRecord) (domain.ConversationState, MergeStats) {
	seen := make(map[domain.ContentID]struct{}, len(existing.Records)+len(batch))
	for _, r := range existing.Records {
		seen[r.ContentID] = struct{}{}
	}

	merged := make([]domain.ImpactRecord, 0, len(existing.Records)+len(batch))
	merged = append(merged, existing.Records...)

	var stats MergeStats
	for _, r := range batch {
		if _, ok := seen[r.ContentID]; ok {
			stats.Skipped++
			continue
		}
		seen[r.ContentID] = struct{}{}
		merged = append(merged, r)
		stats.Appended++
	}

	if over := len(merged) - domain.MaxRecords; over > 0 {
		stats.Evicted = over
		merged = merged[over:]
	}

	return domain.ConversationState{Records: merged}, stats
}

// Unseen returns, in order, the messages whose text is not already recorded
// in state. Only these need scoring.
func Unseen(state domain.ConversationState, messages []domain.Message) []domain.Message {
	known := make(map[domain.ContentID]struct{}, len(state.Records))
	for _, r := range state.Records {
		known[r.ContentID] = struct{}{}
	}

	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if _, ok := known[ContentID(m.Text)]; !ok {
			out = append(out, m)
		}
	}
	return out
}
