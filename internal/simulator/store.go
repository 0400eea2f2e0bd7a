// Package simulator implements a local mock of the generation backend for
// development and demos: the HTTP API, the socket endpoint and a scripted
// pipeline with user checkpoints.
package simulator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
	"github.com/shintairiku/marketing-automation-sub003/pkg/transport/realtime"
)

// Store keeps simulated processes in memory and optionally publishes
// row-change signals to redis.
type Store struct {
	mu        sync.Mutex
	processes map[string]*Process
	rdb       *redis.Client
}

// Process is one simulated generation process: the snapshot plus the
// append-only event log and the channel delivering client responses to the
// running script.
type Process struct {
	mu        sync.Mutex
	snapshot  models.ProcessSnapshot
	events    []models.EventRecord
	sequence  int64
	Responses chan ClientInput
}

// ClientInput is one decoded client response handed to the script.
type ClientInput struct {
	ResponseType string
	Payload      map[string]any
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{
		processes: make(map[string]*Process),
		rdb:       rdb,
	}
}

// Create registers a new pending process and returns it.
func (s *Store) Create(req models.StartGenerationRequest) *Process {
	proc := &Process{
		snapshot: models.ProcessSnapshot{
			Process: models.GenerationProcess{
				ID:             "proc-" + uuid.New().String()[:8],
				Status:         models.ProcessStatusPending,
				UserPrompt:     req.UserPrompt,
				ReferenceURL:   req.ReferenceURL,
				UploadedImages: req.UploadedImages,
				CreatedAt:      time.Now().UTC(),
				UpdatedAt:      time.Now().UTC(),
			},
		},
		Responses: make(chan ClientInput, 8),
	}

	s.mu.Lock()
	s.processes[proc.snapshot.Process.ID] = proc
	s.mu.Unlock()

	return proc
}

// Get returns the process with the given id.
func (s *Store) Get(id string) (*Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc, ok := s.processes[id]

	return proc, ok
}

// Append records one raw payload in the event log and bumps the sequence.
func (p *Process) Append(payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sequence++
	p.events = append(p.events, models.EventRecord{
		ID:        "evt-" + uuid.New().String()[:8],
		Sequence:  p.sequence,
		CreatedAt: time.Now().UTC(),
		Payload:   data,
	})
}

// Update mutates the snapshot under the process lock.
func (p *Process) Update(fn func(*models.ProcessSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(&p.snapshot)
	p.snapshot.Process.UpdatedAt = time.Now().UTC()
}

// Snapshot returns a copy of the current snapshot.
func (p *Process) Snapshot() models.ProcessSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.snapshot
}

// Events returns the log rows with sequence greater than since.
func (p *Process) Events(since int64) []models.EventRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.EventRecord, 0, len(p.events))

	for _, rec := range p.events {
		if rec.Sequence > since {
			out = append(out, rec)
		}
	}

	return out
}

// NotifyChange publishes a row-change signal for the process when redis is
// configured. The signal carries no event data: clients pull on push.
func (s *Store) NotifyChange(ctx context.Context, processID string) {
	if s.rdb == nil {
		return
	}

	_ = s.rdb.Publish(ctx, realtime.ChannelFor(processID), "updated").Err()
}
