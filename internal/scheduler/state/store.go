// Package state tracks the latest progress of planning runs in memory so a
// client that connects mid-run can be told where things stand.
package state

import (
	"sync"
	"time"
)

// Status values published with progress events.
const (
	StatusProgress  = "PROGRESS"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Run is the last known state of one planning run.
type Run struct {
	RunID      string    `json:"run_id"`
	TeamID     int64     `json:"team_id"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	ScheduleID int64     `json:"schedule_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Done reports whether the run reached a terminal status.
func (r Run) Done() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Store keeps the latest run per team.
type Store struct {
	mu   sync.RWMutex
	runs map[int64]Run
}

// NewStore creates a run store.
func NewStore() *Store {
	return &Store{runs: make(map[int64]Run)}
}

// Put records the latest state of a team's run.
func (s *Store) Put(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.runs[run.TeamID]; ok && prev.RunID == run.RunID && run.StartedAt.IsZero() {
		run.StartedAt = prev.StartedAt
	}
	s.runs[run.TeamID] = run
}

// Latest returns the most recent run of a team.
func (s *Store) Latest(teamID int64) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[teamID]
	return run, ok
}

// Active returns snapshot of runs that have not finished.
func (s *Store) Active() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		if !r.Done() {
			out = append(out, r)
		}
	}
	return out
}

// Prune removes finished runs last updated before cutoff.
func (s *Store) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for team, r := range s.runs {
		if r.Done() && r.UpdatedAt.Before(cutoff) {
			delete(s.runs, team)
			removed++
		}
	}
	return removed
}
