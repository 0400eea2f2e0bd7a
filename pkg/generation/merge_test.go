package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

func TestMergeActivities_DeduplicatesById(t *testing.T) {
	existing := []models.ActivityEntry{
		{ID: "a-1", Message: "first", Sequence: 1},
		{ID: "a-2", Message: "second", Sequence: 2},
	}
	fetched := []models.ActivityEntry{
		{ID: "a-2", Message: "second redelivered", Sequence: 2},
		{ID: "a-3", Message: "third", Sequence: 3},
	}

	merged := MergeActivities(existing, fetched)

	require.Len(t, merged, 3)
	// The first occurrence wins for a duplicated id.
	assert.Equal(t, "second", merged[1].Message)
	assert.Equal(t, "a-3", merged[2].ID)
}

func TestMergeActivities_OrdersBySequence(t *testing.T) {
	existing := []models.ActivityEntry{{ID: "a-5", Sequence: 5}}
	fetched := []models.ActivityEntry{
		{ID: "a-1", Sequence: 1},
		{ID: "a-3", Sequence: 3},
	}

	merged := MergeActivities(existing, fetched)

	require.Len(t, merged, 3)
	assert.Equal(t, []string{"a-1", "a-3", "a-5"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
}

func TestMergeActivities_IsIdempotent(t *testing.T) {
	fetched := []models.ActivityEntry{
		{ID: "a-1", Sequence: 1},
		{ID: "a-2", Sequence: 2},
	}

	once := MergeActivities(nil, fetched)
	twice := MergeActivities(once, fetched)

	assert.Equal(t, once, twice)
}

func TestMergeActivities_StableForEqualSequences(t *testing.T) {
	existing := []models.ActivityEntry{
		{ID: "a-1", Sequence: 7},
		{ID: "a-2", Sequence: 7},
	}

	merged := MergeActivities(existing, []models.ActivityEntry{{ID: "a-3", Sequence: 7}})

	require.Len(t, merged, 3)
	assert.Equal(t, "a-1", merged[0].ID)
	assert.Equal(t, "a-2", merged[1].ID)
	assert.Equal(t, "a-3", merged[2].ID)
}

func TestMergeStreamEvents_DedupAndOrder(t *testing.T) {
	existing := []models.AgentStreamEvent{
		{EventID: "ev-2", Sequence: 2, Message: "kept"},
	}
	fetched := []models.AgentStreamEvent{
		{EventID: "ev-1", Sequence: 1},
		{EventID: "ev-2", Sequence: 2, Message: "dropped duplicate"},
		{EventID: "ev-3", Sequence: 3},
	}

	merged := MergeStreamEvents(existing, fetched)

	require.Len(t, merged, 3)
	assert.Equal(t, "ev-1", merged[0].EventID)
	assert.Equal(t, "kept", merged[1].Message)
	assert.Equal(t, "ev-3", merged[2].EventID)
}

func TestMergeStreamEvents_EmptyInputs(t *testing.T) {
	assert.Empty(t, MergeStreamEvents(nil, nil))

	only := MergeStreamEvents(nil, []models.AgentStreamEvent{{EventID: "ev-1", Sequence: 1}})
	assert.Len(t, only, 1)
}
