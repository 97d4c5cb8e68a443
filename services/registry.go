package services

import (
	"cyberia/types"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrJobNotFound is returned when no record exists for an app id.
	ErrJobNotFound = errors.New("job not found")
	// ErrStaleRun is returned when a write comes from a run that has been
	// superseded by a newer start for the same app id.
	ErrStaleRun = errors.New("job run superseded")
)

// StateObserver is notified after every committed change.
type StateObserver func(appID int, state types.JobState)

// Registry is the shared store of job state records, keyed by app id
type Registry interface {
	Reset(appID int, runID string) types.JobState
	Update(appID int, runID string, fn func(*types.JobState)) (types.JobState, error)
	Get(appID int) (types.JobState, bool)
	All() map[int]types.JobState
}

// registry guards the app id to record mapping. Every commit is stamped
// with a per-app sequence number under mu; observers only ever see
// increasing sequences for an app.
type registry struct {
	jobs     map[int]*types.JobState
	seqs     map[int]uint64
	mu       sync.RWMutex
	observer StateObserver
	now      func() time.Time

	notifyMu  sync.Mutex
	delivered map[int]uint64
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(observer StateObserver) Registry {
	return &registry{
		jobs:      make(map[int]*types.JobState),
		seqs:      make(map[int]uint64),
		observer:  observer,
		now:       time.Now,
		delivered: make(map[int]uint64),
	}
}

// Reset replaces the record for appID with a fresh queued record owned by runID.
func (r *registry) Reset(appID int, runID string) types.JobState {
	r.mu.Lock()
	state := &types.JobState{
		Status:    types.JobStatusQueued,
		RunID:     runID,
		UpdatedAt: r.now(),
	}
	r.jobs[appID] = state
	snapshot := *state
	seq := r.commit(appID)
	r.mu.Unlock()

	r.notify(appID, seq, snapshot)
	return snapshot
}

// Update applies fn to a copy of the record and commits it when the status
// change is a valid transition. An empty runID matches any run.
func (r *registry) Update(appID int, runID string, fn func(*types.JobState)) (types.JobState, error) {
	r.mu.Lock()
	current, exists := r.jobs[appID]
	if !exists {
		r.mu.Unlock()
		return types.JobState{}, fmt.Errorf("%w: %d", ErrJobNotFound, appID)
	}
	if runID != "" && current.RunID != runID {
		snapshot := *current
		r.mu.Unlock()
		return snapshot, ErrStaleRun
	}

	next := *current
	fn(&next)
	next.RunID = current.RunID
	if err := current.Status.ValidateTransition(next.Status); err != nil {
		snapshot := *current
		r.mu.Unlock()
		return snapshot, err
	}

	next.UpdatedAt = r.now()
	*current = next
	seq := r.commit(appID)
	r.mu.Unlock()

	r.notify(appID, seq, next)
	return next, nil
}

// Get returns a copy of the record for appID.
func (r *registry) Get(appID int) (types.JobState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.jobs[appID]
	if !exists {
		return types.JobState{}, false
	}
	return *state, true
}

// All returns copies of every record.
func (r *registry) All() map[int]types.JobState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make(map[int]types.JobState, len(r.jobs))
	for appID, state := range r.jobs {
		jobs[appID] = *state
	}
	return jobs
}

// commit advances the sequence for appID. Callers hold r.mu.
func (r *registry) commit(appID int) uint64 {
	r.seqs[appID]++
	return r.seqs[appID]
}

// notify delivers state unless a later commit for appID was already
// delivered. Deliveries are serialized.
func (r *registry) notify(appID int, seq uint64, state types.JobState) {
	if r.observer == nil {
		return
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if seq <= r.delivered[appID] {
		return
	}
	r.delivered[appID] = seq
	r.observer(appID, state)
}

// SortedAppIDs returns the keys of jobs in ascending order.
func SortedAppIDs(jobs map[int]types.JobState) []int {
	ids := make([]int, 0, len(jobs))
	for appID := range jobs {
		ids = append(ids, appID)
	}
	sort.Ints(ids)
	return ids
}
