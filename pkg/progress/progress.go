// Package progress is the TTL'd progress board long jobs publish to
// and HTTP readers poll. One writer per job key; reads never block
// writers.
package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status of a tracked job.
type Status string

const (
	StatusComputing Status = "computing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record is one job's progress snapshot.
type Record struct {
	Status     Status    `json:"status"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Percentage int       `json:"percentage"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type entry struct {
	rec       Record
	expiresAt time.Time
	cancelled bool
}

// Store is an in-process TTL key/value board.
type Store struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]*entry
	now func() time.Time
}

// NewStore creates a board whose records expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl, m: make(map[string]*entry), now: time.Now}
}

// RunKey is the progress key of a payroll run compute.
func RunKey(runID string) string { return fmt.Sprintf("payroll_progress_%s", runID) }

// ImportKey is the progress key of a bulk import execute.
func ImportKey(sessionID string) string { return fmt.Sprintf("import_progress_%s", sessionID) }

// Start initialises the record for a job of the given size.
func (s *Store) Start(key string, total int) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = &entry{
		rec: Record{
			Status:    StatusComputing,
			Total:     total,
			StartedAt: now,
			UpdatedAt: now,
		},
		expiresAt: now.Add(s.ttl),
	}
}

// Update publishes processed progress. No-op for unknown keys.
func (s *Store) Update(key string, processed int) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return
	}
	e.rec.Processed = processed
	if e.rec.Total > 0 {
		e.rec.Percentage = processed * 100 / e.rec.Total
	}
	e.rec.UpdatedAt = now
	e.expiresAt = now.Add(s.ttl)
}

// Finish marks a terminal status with an optional message.
func (s *Store) Finish(key string, status Status, message string) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		e = &entry{rec: Record{StartedAt: now}}
		s.m[key] = e
	}
	e.rec.Status = status
	e.rec.Message = message
	if status == StatusCompleted {
		e.rec.Processed = e.rec.Total
		e.rec.Percentage = 100
	}
	e.rec.UpdatedAt = now
	e.expiresAt = now.Add(s.ttl)
}

// Get returns the record when present and unexpired.
func (s *Store) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	if !ok || s.now().After(e.expiresAt) {
		return Record{}, false
	}
	return e.rec, true
}

// Cancel raises the cancellation flag; the job checks it between units.
func (s *Store) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[key]; ok {
		e.cancelled = true
	}
}

// Cancelled reports whether cancellation was requested.
func (s *Store) Cancelled(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	return ok && e.cancelled
}

// Sweep drops expired records. Callers typically run it on a cron.
func (s *Store) Sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.m {
		if now.After(e.expiresAt) {
			delete(s.m, k)
		}
	}
}
