package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// Run is the summary of one finished pipeline run.
type Run struct {
	ID         string              `json:"id"`
	StartedAt  time.Time           `json:"started_at"`
	DurationMs int64               `json:"duration_ms"`
	Overall    types.Severity      `json:"overall"`
	Total      int                 `json:"total"`
	Red        int                 `json:"red"`
	Yellow     int                 `json:"yellow"`
	Unknown    int                 `json:"unknown"`
	Dampened   int                 `json:"dampened"`
	Tokens     int                 `json:"tokens"`
	Delivered  bool                `json:"delivered"`
	DryRun     bool                `json:"dry_run"`
	Errors     []string            `json:"errors"`
	Issues     []types.Observation `json:"issues"`

	// FinishedAt is stamped by Add.
	FinishedAt time.Time `json:"finished_at"`
}

// Runs is a thread-safe ring of recent runs, newest last.
type Runs struct {
	mu        sync.RWMutex
	runs      []Run
	capacity  int
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Runs store holding at most capacity runs. A zero retention
// keeps runs until they are pushed out by newer ones.
func New(capacity int, retention time.Duration) *Runs {
	if capacity < 1 {
		capacity = 1
	}
	return &Runs{capacity: capacity, retention: retention, now: time.Now}
}

// Add appends r, dropping the oldest run when the store is full.
func (s *Runs) Add(r Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.FinishedAt = s.now()
	if len(s.runs) == s.capacity {
		copy(s.runs, s.runs[1:])
		s.runs = s.runs[:len(s.runs)-1]
	}
	s.runs = append(s.runs, r)
}

// Latest returns the most recent run.
func (s *Runs) Latest() (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return Run{}, false
	}
	return s.runs[len(s.runs)-1], true
}

// Get returns the run with the given ID.
func (s *Runs) Get(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.ID == id {
			return r, true
		}
	}
	return Run{}, false
}

// List returns the retained runs, newest first.
func (s *Runs) List() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, s.runs[i])
	}
	return out
}

// Count returns the number of runs currently held.
func (s *Runs) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Evict removes runs that finished before now minus the retention and
// returns how many were removed.
func (s *Runs) Evict(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.retention)
	kept := s.runs[:0]
	for _, r := range s.runs {
		if r.FinishedAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(s.runs) - len(kept)
	s.runs = kept
	return removed
}

// Run starts the background eviction loop, ticking at half the retention
// (minimum 1 minute). It blocks until ctx is cancelled and returns at once
// when no retention is set.
func (s *Runs) Run(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	interval := s.retention / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted old runs", "count", n)
			}
		}
	}
}
