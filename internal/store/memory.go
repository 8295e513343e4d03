package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-blob-pipeline/internal/weather"
)

var (
	// ErrNotFound is returned when no run matches the query.
	ErrNotFound = errors.New("no pipeline run found")
)

// Status is the state of a run or step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Trigger says what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerCLI      Trigger = "cli"
)

// Step is the record of one pipeline step.
type Step struct {
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// Run is the record of one pipeline execution.
type Run struct {
	ID         string         `json:"id"`
	Trigger    Trigger        `json:"trigger"`
	Status     Status         `json:"status"`
	StartedAt  time.Time      `json:"startedAt"` // always UTC
	FinishedAt time.Time      `json:"finishedAt,omitzero"`
	Steps      []Step         `json:"steps"`
	Locations  int            `json:"locations"`
	Rows       int            `json:"rows"`
	Skipped    []weather.Skip `json:"skipped,omitempty"`
	BlobKey    string         `json:"blobKey,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// MemoryStore is a concurrency-safe in-memory history of pipeline runs.
type MemoryStore struct {
	mu sync.RWMutex

	// ordered by StartedAt ascending
	runs []Run
	byID map[string]int

	// retention configuration
	maxHistory int           // max number of runs kept
	maxAge     time.Duration // optional max age for runs
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]int),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveRun inserts or replaces the run with the same ID and enforces retention.
func (s *MemoryStore) SaveRun(run Run) {
	run = cloneRun(run)

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byID[run.ID]; ok {
		s.runs[i] = run
		return
	}

	s.runs = append(s.runs, run)
	sort.SliceStable(s.runs, func(i, j int) bool {
		return s.runs[i].StartedAt.Before(s.runs[j].StartedAt)
	})

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.runs) > s.maxHistory {
		over := len(s.runs) - s.maxHistory
		s.runs = s.runs[over:]
	}

	// Enforce retention by age. Running runs are always kept.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.runs); i++ {
			if s.runs[i].Status == StatusRunning || !s.runs[i].StartedAt.Before(cutoff) {
				break
			}
		}
		s.runs = s.runs[i:]
	}

	s.reindex()
}

func (s *MemoryStore) reindex() {
	s.byID = make(map[string]int, len(s.runs))
	for i, r := range s.runs {
		s.byID[r.ID] = i
	}
}

// Get returns the run with the given ID.
func (s *MemoryStore) Get(id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return cloneRun(s.runs[i]), nil
}

// Latest returns the most recently started run.
func (s *MemoryStore) Latest() (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return Run{}, ErrNotFound
	}
	return cloneRun(s.runs[len(s.runs)-1]), nil
}

// Range returns all runs started between from and to (inclusive).
func (s *MemoryStore) Range(from, to time.Time) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Run
	for _, r := range s.runs {
		if (r.StartedAt.Equal(from) || r.StartedAt.After(from)) &&
			(r.StartedAt.Equal(to) || r.StartedAt.Before(to)) {
			result = append(result, cloneRun(r))
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}

func cloneRun(r Run) Run {
	r.Steps = append([]Step(nil), r.Steps...)
	r.Skipped = append([]weather.Skip(nil), r.Skipped...)
	return r
}
