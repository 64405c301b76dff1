package sentiment

import (
	"fmt"
	"testing"

	"github.com/darthbatman/TypeSense/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(text string, delta float64) domain.ImpactRecord {
	return domain.ImpactRecord{ContentID: ContentID(text), SentimentDelta: delta, Author: "a"}
}

func recs(prefix string, n int) []domain.ImpactRecord {
	out := make([]domain.ImpactRecord, n)
	for i := range out {
		out[i] = rec(fmt.Sprintf("%s-%d", prefix, i), float64(i)/100)
	}
	return out
}

func ids(state domain.ConversationState) []domain.ContentID {
	out := make([]domain.ContentID, len(state.Records))
	for i, r := range state.Records {
		out[i] = r.ContentID
	}
	return out
}

func TestMerge_EmptyBatchIsIdentity(t *testing.T) {
	existing := domain.ConversationState{Records: recs("m", 5)}
	assert.Equal(t, existing, Merge(existing, []domain.ImpactRecord{}))
}

func TestMerge_AppendsInOrder(t *testing.T) {
	existing := domain.ConversationState{Records: recs("old", 2)}
	batch := recs("new", 3)

	merged := Merge(existing, batch)

	want := append(append([]domain.ImpactRecord{}, existing.Records...), batch...)
	assert.Equal(t, want, merged.Records)
}

func TestMerge_OverlappingBatchAppendsOnlyNovel(t *testing.T) {
	existing := domain.ConversationState{Records: recs("m", 4)}
	batch := []domain.ImpactRecord{
		existing.Records[2],
		existing.Records[3],
		rec("fresh-1", 0.1),
		rec("fresh-2", -0.2),
		rec("fresh-3", 0.05),
	}

	merged, stats := MergeWithStats(existing, batch)

	require.Len(t, merged.Records, 7)
	assert.Equal(t, MergeStats{Appended: 3, Skipped: 2}, stats)
	assert.Equal(t, batch[2:], merged.Records[4:])
}

func TestMerge_DuplicatesWithinBatchCollapse(t *testing.T) {
	batch := []domain.ImpactRecord{rec("lol", 0.1), rec("hm", 0), rec("lol", 0.3)}

	merged := Merge(domain.ConversationState{}, batch)

	require.Len(t, merged.Records, 2)
	assert.InDelta(t, 0.1, merged.Records[0].SentimentDelta, 1e-9)
}

func TestMerge_CapEvictsOldestFirst(t *testing.T) {
	existing := domain.ConversationState{Records: recs("old", 18)}
	batch := recs("new", 5)

	merged, stats := MergeWithStats(existing, batch)

	require.Len(t, merged.Records, domain.MaxRecords)
	assert.Equal(t, 3, stats.Evicted)
	assert.Equal(t, existing.Records[3:], merged.Records[:15])
	assert.Equal(t, batch, merged.Records[15:])
}

func TestMerge_OversizedBatchKeepsNewest(t *testing.T) {
	batch := recs("flood", 30)

	merged := Merge(domain.ConversationState{}, batch)

	assert.Equal(t, batch[10:], merged.Records)
}

func TestMerge_Idempotent(t *testing.T) {
	existing := domain.ConversationState{Records: recs("m", 12)}
	batch := append(recs("n", 6), existing.Records[0], existing.Records[11])

	once := Merge(existing, batch)
	twice := Merge(once, batch)

	assert.Equal(t, ids(once), ids(twice))
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	existing := domain.ConversationState{Records: recs("m", 20)}
	snapshot := append([]domain.ImpactRecord{}, existing.Records...)
	batch := recs("n", 4)
	batchSnapshot := append([]domain.ImpactRecord{}, batch...)

	_ = Merge(existing, batch)

	assert.Equal(t, snapshot, existing.Records)
	assert.Equal(t, batchSnapshot, batch)
}

func TestUnseen(t *testing.T) {
	state := domain.ConversationState{Records: []domain.ImpactRecord{rec("hi", 0), rec("how are you", 0)}}
	input := msgs("a", "hi", "b", "how are you", "a", "good", "b", "hi", "a", "bye")

	assert.Equal(t, msgs("a", "good", "a", "bye"), Unseen(state, input))
	assert.Equal(t, input, Unseen(domain.ConversationState{}, input))
	assert.Empty(t, Unseen(state, msgs("a", "hi")))
}
