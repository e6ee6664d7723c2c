package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// State is the run-scoped accumulator.
type State struct {
	RunID     string
	StartedAt time.Time
	Tokens    int
	Errors    []string
}

// Update is one stage's contribution to State.
type Update struct {
	Tokens int
	Errors []string
}

func newState(now time.Time) *State {
	return &State{RunID: uuid.NewString(), StartedAt: now}
}

// Merge adds u to s. Nothing already in s is replaced.
func (s *State) Merge(u Update) {
	s.Tokens += u.Tokens
	s.Errors = append(s.Errors, u.Errors...)
}
