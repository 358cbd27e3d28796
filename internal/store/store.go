package store

import (
	"slices"
	"sync"

	"hireline/internal/domain"
	"hireline/internal/events"
)

// Phase tracks the bulk-load lifecycle of the store.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// State is a read-only view of the store. Slices are never nil and must not be modified.
type State struct {
	Jobs       []domain.JobPosting `json:"jobs"`
	Candidates []domain.Candidate  `json:"candidates"`
	Schedules  []domain.Schedule   `json:"schedules"`
	Phase      Phase               `json:"phase"`
	Error      string              `json:"error,omitempty"`
}

func (s State) IsLoading() bool { return s.Phase == PhaseLoading }

// Store holds the in-memory copies of server-owned collections.
// Every write installs a new slice, so a slice obtained from a reader never changes.
type Store struct {
	mu    sync.RWMutex
	state State
	bus   *events.Bus
}

type Option func(*Store)

// WithBus publishes change events on b instead of a private bus.
func WithBus(b *events.Bus) Option {
	return func(s *Store) {
		if b != nil {
			s.bus = b
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{bus: events.NewBus(), state: emptyState()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func emptyState() State {
	return State{
		Jobs:       []domain.JobPosting{},
		Candidates: []domain.Candidate{},
		Schedules:  []domain.Schedule{},
		Phase:      PhaseIdle,
	}
}

// Subscribe calls fn after every write. Returns a cancel func.
func (s *Store) Subscribe(fn func(events.Event)) func() {
	return s.bus.Subscribe(fn)
}

// Reset drops all data and returns the store to Idle.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = emptyState()
	s.mu.Unlock()
	s.bus.Publish(events.StoreReset, "", 0, nil)
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Jobs() []domain.JobPosting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Jobs
}

func (s *Store) Candidates() []domain.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Candidates
}

func (s *Store) Schedules() []domain.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Schedules
}

func (s *Store) Job(id int64) (domain.JobPosting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOfJob(s.state.Jobs, id); i >= 0 {
		return s.state.Jobs[i], true
	}
	return domain.JobPosting{}, false
}

func (s *Store) Candidate(id int64) (domain.Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOfCandidate(s.state.Candidates, id); i >= 0 {
		return s.state.Candidates[i], true
	}
	return domain.Candidate{}, false
}

// AddJob puts job at the front. A cached job with the same id is replaced.
func (s *Store) AddJob(job domain.JobPosting) {
	s.mu.Lock()
	jobs := make([]domain.JobPosting, 0, len(s.state.Jobs)+1)
	jobs = append(jobs, job)
	for _, j := range s.state.Jobs {
		if j.ID != job.ID {
			jobs = append(jobs, j)
		}
	}
	s.state.Jobs = jobs
	s.mu.Unlock()
	s.bus.Publish(events.JobAdded, "job", job.ID, nil)
}

// UpdateJob replaces the cached job with the same id. Reports false if absent.
func (s *Store) UpdateJob(job domain.JobPosting) bool {
	s.mu.Lock()
	i := indexOfJob(s.state.Jobs, job.ID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	jobs := slices.Clone(s.state.Jobs)
	jobs[i] = job
	s.state.Jobs = jobs
	s.mu.Unlock()
	s.bus.Publish(events.JobUpdated, "job", job.ID, nil)
	return true
}

// RemoveJob drops the job with id. Reports false if absent.
func (s *Store) RemoveJob(id int64) bool {
	s.mu.Lock()
	i := indexOfJob(s.state.Jobs, id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.state.Jobs = slices.Delete(slices.Clone(s.state.Jobs), i, i+1)
	s.mu.Unlock()
	s.bus.Publish(events.JobRemoved, "job", id, nil)
	return true
}

// SetCandidateStatus is the only way a candidate's status changes locally.
// It returns the previous status, or false if the candidate is not cached.
func (s *Store) SetCandidateStatus(id int64, v domain.StatusValue) (domain.CandidateStatus, bool) {
	s.mu.Lock()
	i := indexOfCandidate(s.state.Candidates, id)
	if i < 0 {
		s.mu.Unlock()
		return domain.CandidateStatus{}, false
	}
	candidates := slices.Clone(s.state.Candidates)
	prev := candidates[i].Status
	candidates[i].Status = domain.NewCandidateStatus(v)
	s.state.Candidates = candidates
	s.mu.Unlock()
	s.bus.Publish(events.CandidateStatus, "candidate", id, events.EventPayload{
		"from": string(prev.Value),
		"to":   string(v),
	})
	return prev, true
}

// BeginLoad moves the store to Loading. It returns false, changing nothing,
// when a load is already in progress. Check and set happen under one lock.
func (s *Store) BeginLoad() bool {
	s.mu.Lock()
	if s.state.Phase == PhaseLoading {
		s.mu.Unlock()
		return false
	}
	s.state.Phase = PhaseLoading
	s.state.Error = ""
	s.mu.Unlock()
	s.bus.Publish(events.DataLoading, "", 0, nil)
	return true
}

// CompleteLoad installs freshly fetched collections and clears the error.
// A nil schedules slice leaves the cached schedules in place.
// Duplicate ids are dropped, keeping the first occurrence.
func (s *Store) CompleteLoad(jobs []domain.JobPosting, candidates []domain.Candidate, schedules []domain.Schedule) {
	jobs, droppedJobs := uniqueByID(jobs, func(j domain.JobPosting) int64 { return j.ID })
	candidates, droppedCandidates := uniqueByID(candidates, func(c domain.Candidate) int64 { return c.ID })
	s.mu.Lock()
	s.state.Jobs = jobs
	s.state.Candidates = candidates
	if schedules != nil {
		s.state.Schedules, _ = uniqueByID(schedules, func(sc domain.Schedule) int64 { return sc.ID })
	}
	s.state.Phase = PhaseLoaded
	s.state.Error = ""
	payload := events.EventPayload{
		"jobs":       len(s.state.Jobs),
		"candidates": len(s.state.Candidates),
		"schedules":  len(s.state.Schedules),
	}
	s.mu.Unlock()
	if dropped := droppedJobs + droppedCandidates; dropped > 0 {
		payload["dropped_duplicates"] = dropped
	}
	s.bus.Publish(events.DataLoaded, "", 0, payload)
}

// FailLoad empties every collection and records msg as the store error.
func (s *Store) FailLoad(msg string) {
	s.mu.Lock()
	s.state.Jobs = []domain.JobPosting{}
	s.state.Candidates = []domain.Candidate{}
	s.state.Schedules = []domain.Schedule{}
	s.state.Phase = PhaseFailed
	s.state.Error = msg
	s.mu.Unlock()
	s.bus.Publish(events.DataFailed, "", 0, events.EventPayload{"error": msg})
}

func indexOfJob(jobs []domain.JobPosting, id int64) int {
	return slices.IndexFunc(jobs, func(j domain.JobPosting) bool { return j.ID == id })
}

func indexOfCandidate(candidates []domain.Candidate, id int64) int {
	return slices.IndexFunc(candidates, func(c domain.Candidate) bool { return c.ID == id })
}

func uniqueByID[T any](items []T, id func(T) int64) ([]T, int) {
	out := make([]T, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		k := id(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out, len(items) - len(out)
}
