package services

import (
	"context"
	"cyberia/types"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAppID is returned for identifiers that are not positive integers.
	ErrInvalidAppID = errors.New("Invalid appid")
	// ErrQueueClosed is returned for jobs started after Shutdown.
	ErrQueueClosed = errors.New("Job queue is shut down")
)

// JobQueue interface defines the entry points for download jobs
type JobQueue interface {
	StartDownload(raw string) types.Response
	GetStatus(raw string) types.Response
	CancelDownload(raw string) types.Response
	Enqueue(appID int) (string, <-chan Result)
	GetJob(appID int) (types.JobState, bool)
	GetAllJobs() map[int]types.JobState
	Shutdown(ctx context.Context) error
}

// run is one in-flight orchestrator goroutine
type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// jobQueue launches one orchestrator goroutine per started job
type jobQueue struct {
	registry     Registry
	orchestrator *Orchestrator
	logger       *slog.Logger

	mu     sync.Mutex
	runs   map[int]*run
	closed bool
	wg     sync.WaitGroup

	baseCtx context.Context
	stop    context.CancelFunc
}

// NewJobQueue creates a job queue over registry and orchestrator
func NewJobQueue(registry Registry, orchestrator *Orchestrator, logger *slog.Logger) JobQueue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &jobQueue{
		registry:     registry,
		orchestrator: orchestrator,
		logger:       logger,
		runs:         make(map[int]*run),
		baseCtx:      ctx,
		stop:         stop,
	}
}

// ParseAppID parses a job identifier. Only positive integers are accepted.
func ParseAppID(raw string) (int, error) {
	appID, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || appID <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAppID, raw)
	}
	return appID, nil
}

// StartDownload starts a job for raw and returns immediately.
func (jq *jobQueue) StartDownload(raw string) types.Response {
	appID, err := ParseAppID(raw)
	if err != nil {
		return types.Response{Success: false, Error: ErrInvalidAppID.Error()}
	}

	jq.logger.Info("StartDownload", "appid", appID)
	if _, _, err := jq.enqueue(appID); err != nil {
		return types.Response{Success: false, Error: err.Error()}
	}
	return types.Response{Success: true}
}

// GetStatus returns a snapshot of the job record for raw.
func (jq *jobQueue) GetStatus(raw string) types.Response {
	appID, err := ParseAppID(raw)
	if err != nil {
		return types.Response{Success: false, Error: ErrInvalidAppID.Error()}
	}

	state, exists := jq.registry.Get(appID)
	if !exists {
		return types.Response{Success: true, State: struct{}{}}
	}
	return types.Response{Success: true, State: state}
}

// CancelDownload marks the job cancelled and signals its goroutine. Jobs
// that are finished or unknown report success with "Nothing to cancel".
func (jq *jobQueue) CancelDownload(raw string) types.Response {
	appID, err := ParseAppID(raw)
	if err != nil {
		return types.Response{Success: false, Error: ErrInvalidAppID.Error()}
	}

	// Enqueue resets records under jq.mu, so the record and run read here
	// belong together.
	jq.mu.Lock()
	defer jq.mu.Unlock()

	state, exists := jq.registry.Get(appID)
	if !exists || state.Status.IsTerminal() {
		return types.Response{Success: true, Message: "Nothing to cancel"}
	}

	_, err = jq.registry.Update(appID, state.RunID, func(s *types.JobState) {
		s.Status = types.JobStatusCancelled
	})
	if err != nil {
		// finished between the read and the write
		return types.Response{Success: true, Message: "Nothing to cancel"}
	}

	if r := jq.runs[appID]; r != nil && r.id == state.RunID {
		r.cancel()
	}

	jq.logger.Info("Cancellation requested", "appid", appID)
	return types.Response{Success: true}
}

// Enqueue starts a new run for appID and returns its run id and a channel
// receiving its result. An in-flight run for the same app id is cancelled;
// the new run waits for it to exit before touching the artifact. After
// Shutdown no run is started and the channel carries ErrQueueClosed.
func (jq *jobQueue) Enqueue(appID int) (string, <-chan Result) {
	runID, results, err := jq.enqueue(appID)
	if err != nil {
		closed := make(chan Result, 1)
		closed <- Result{Outcome: OutcomeFailed, Err: err}
		return "", closed
	}
	return runID, results
}

func (jq *jobQueue) enqueue(appID int) (string, <-chan Result, error) {
	results := make(chan Result, 1)

	jq.mu.Lock()
	if jq.closed {
		jq.mu.Unlock()
		jq.logger.Warn("Job refused after shutdown", "appid", appID)
		return "", nil, ErrQueueClosed
	}

	prior := jq.runs[appID]
	if prior != nil {
		jq.logger.Warn("Superseding in-flight job", "appid", appID, "prior_run_id", prior.id)
		prior.cancel()
	}

	ctx, cancel := context.WithCancel(jq.baseCtx)
	current := &run{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	jq.runs[appID] = current
	jq.registry.Reset(appID, current.id)
	jq.wg.Add(1)
	jq.mu.Unlock()

	go func() {
		defer jq.wg.Done()
		defer close(current.done)
		defer cancel()

		if prior != nil {
			<-prior.done
		}

		result := jq.orchestrator.Run(ctx, appID, current.id)

		jq.mu.Lock()
		if jq.runs[appID] == current {
			delete(jq.runs, appID)
		}
		jq.mu.Unlock()

		jq.logger.Info("Job finished", "appid", appID, "run_id", current.id, "outcome", result.Outcome)
		results <- result
	}()

	return current.id, results, nil
}

// GetJob retrieves a copy of the record for appID
func (jq *jobQueue) GetJob(appID int) (types.JobState, bool) {
	return jq.registry.Get(appID)
}

// GetAllJobs returns copies of all records
func (jq *jobQueue) GetAllJobs() map[int]types.JobState {
	return jq.registry.All()
}

// Shutdown cancels every in-flight run and waits for the goroutines to
// exit or ctx to expire.
func (jq *jobQueue) Shutdown(ctx context.Context) error {
	jq.mu.Lock()
	jq.closed = true
	jq.mu.Unlock()
	jq.stop()

	done := make(chan struct{})
	go func() {
		jq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
