package generation

import (
	"sort"

	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// MergeActivities merges fetched entries into the existing feed: duplicates
// are dropped by id before sorting, order is a stable sort by sequence.
// Applying the same fetch twice is a no-op, so overlapping poll windows and
// realtime redeliveries never duplicate or reshuffle rows.
func MergeActivities(existing, fetched []models.ActivityEntry) []models.ActivityEntry {
	seen := make(map[string]struct{}, len(existing)+len(fetched))
	out := make([]models.ActivityEntry, 0, len(existing)+len(fetched))

	for _, entry := range existing {
		if _, dup := seen[entry.ID]; dup {
			continue
		}

		seen[entry.ID] = struct{}{}
		out = append(out, entry)
	}

	for _, entry := range fetched {
		if _, dup := seen[entry.ID]; dup {
			continue
		}

		seen[entry.ID] = struct{}{}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})

	return out
}

// MergeStreamEvents merges run stream events with the same dedup-then-sort
// rule, keyed by event id and ordered by sequence.
func MergeStreamEvents(existing, fetched []models.AgentStreamEvent) []models.AgentStreamEvent {
	seen := make(map[string]struct{}, len(existing)+len(fetched))
	out := make([]models.AgentStreamEvent, 0, len(existing)+len(fetched))

	for _, ev := range existing {
		if _, dup := seen[ev.EventID]; dup {
			continue
		}

		seen[ev.EventID] = struct{}{}
		out = append(out, ev)
	}

	for _, ev := range fetched {
		if _, dup := seen[ev.EventID]; dup {
			continue
		}

		seen[ev.EventID] = struct{}{}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})

	return out
}
