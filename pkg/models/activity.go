package models

import "time"

// ActivityType classifies one activity feed entry.
type ActivityType string

const (
	ActivityTool     ActivityType = "tool"
	ActivityThinking ActivityType = "thinking"
	ActivitySystem   ActivityType = "system"
)

// ActivityStatus is the display state of one activity entry.
type ActivityStatus string

const (
	ActivityRunning ActivityStatus = "running"
	ActivityDone    ActivityStatus = "done"
	ActivityError   ActivityStatus = "error"
)

// ActivityEntry is one row of the activity feed, derived from one meaningful
// server event. ID is the source event id and is the dedup key; Sequence is
// the server-issued monotonic ordering key.
type ActivityEntry struct {
	ID        string         `json:"id"`
	Type      ActivityType   `json:"type"`
	Message   string         `json:"message"`
	Phase     StepID         `json:"phase,omitempty"`
	Status    ActivityStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
}
