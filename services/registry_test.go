package services

import (
	"cyberia/types"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResetAndGet(t *testing.T) {
	reg := NewRegistry(nil)

	_, exists := reg.Get(10)
	assert.False(t, exists)

	state := reg.Reset(10, "run-1")
	assert.Equal(t, types.JobStatusQueued, state.Status)
	assert.Equal(t, "run-1", state.RunID)

	got, exists := reg.Get(10)
	require.True(t, exists)
	assert.Equal(t, state, got)
}

func TestRegistryReturnsCopies(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Reset(10, "run-1")

	got, _ := reg.Get(10)
	got.Status = types.JobStatusDone
	got.BytesRead = 99

	again, _ := reg.Get(10)
	assert.Equal(t, types.JobStatusQueued, again.Status)
	assert.Zero(t, again.BytesRead)

	all := reg.All()
	all[10] = types.JobState{Status: types.JobStatusFailed}
	again, _ = reg.Get(10)
	assert.Equal(t, types.JobStatusQueued, again.Status)
}

func TestRegistryUpdate(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Reset(10, "run-1")

	state, err := reg.Update(10, "run-1", func(s *types.JobState) {
		s.Status = types.JobStatusChecking
		s.CurrentAPI = "Primary"
		s.RunID = "tampered"
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusChecking, state.Status)
	assert.Equal(t, "Primary", state.CurrentAPI)
	assert.Equal(t, "run-1", state.RunID)

	_, err = reg.Update(11, "run-1", func(s *types.JobState) {})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRegistryRejectsInvalidTransitions(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Reset(10, "run-1")

	_, err := reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusDone })
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = reg.Update(10, "", func(s *types.JobState) { s.Status = types.JobStatusCancelled })
	require.NoError(t, err)

	state, err := reg.Update(10, "run-1", func(s *types.JobState) {
		s.Status = types.JobStatusFailed
		s.Error = "late"
	})
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, types.JobStatusCancelled, state.Status)

	got, _ := reg.Get(10)
	assert.Equal(t, types.JobStatusCancelled, got.Status)
	assert.Empty(t, got.Error)
}

func TestRegistryRejectsStaleRun(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Reset(10, "run-1")
	reg.Reset(10, "run-2")

	_, err := reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusChecking })
	assert.ErrorIs(t, err, ErrStaleRun)

	got, _ := reg.Get(10)
	assert.Equal(t, types.JobStatusQueued, got.Status)
	assert.Equal(t, "run-2", got.RunID)
}

func TestRegistryObserver(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []types.JobStatus
	)
	reg := NewRegistry(func(appID int, state types.JobState) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 10, appID)
		statuses = append(statuses, state.Status)
	})

	reg.Reset(10, "run-1")
	reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusChecking })
	reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusDone })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []types.JobStatus{types.JobStatusQueued, types.JobStatusChecking}, statuses)
}

func TestRegistryObserverNeverSeesProgressAfterCancel(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []types.JobStatus
	)
	blocked := make(chan struct{})
	release := make(chan struct{})
	reg := NewRegistry(func(appID int, state types.JobState) {
		if state.BytesRead == 10 {
			close(blocked)
			<-release
		}
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, state.Status)
	})

	reg.Reset(10, "run-1")
	reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusChecking })
	reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusDownloading })

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reg.Update(10, "run-1", func(s *types.JobState) { s.BytesRead = 10 })
	}()
	<-blocked

	go func() {
		defer wg.Done()
		reg.Update(10, "", func(s *types.JobState) { s.Status = types.JobStatusCancelled })
	}()
	require.Eventually(t, func() bool {
		got, _ := reg.Get(10)
		return got.Status == types.JobStatusCancelled
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.Equal(t, types.JobStatusCancelled, statuses[len(statuses)-1])
	assert.Equal(t, []types.JobStatus{
		types.JobStatusQueued,
		types.JobStatusChecking,
		types.JobStatusDownloading,
		types.JobStatusDownloading,
		types.JobStatusCancelled,
	}, statuses)
}

func TestRegistryObserverDropsStaleRunProgress(t *testing.T) {
	var (
		mu     sync.Mutex
		states []types.JobState
	)
	blocked := make(chan struct{})
	release := make(chan struct{})
	reg := NewRegistry(func(appID int, state types.JobState) {
		if state.BytesRead == 10 {
			close(blocked)
			<-release
		}
		mu.Lock()
		defer mu.Unlock()
		states = append(states, state)
	})

	reg.Reset(10, "run-1")
	reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusChecking })
	reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusDownloading })

	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.Update(10, "run-1", func(s *types.JobState) { s.BytesRead = 10 })
	}()
	<-blocked

	resetDone := make(chan struct{})
	go func() {
		defer close(resetDone)
		reg.Reset(10, "run-2")
	}()
	require.Eventually(t, func() bool {
		got, _ := reg.Get(10)
		return got.RunID == "run-2"
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	<-done
	<-resetDone

	mu.Lock()
	defer mu.Unlock()
	last := states[len(states)-1]
	assert.Equal(t, "run-2", last.RunID)
	assert.Equal(t, types.JobStatusQueued, last.Status)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Reset(10, "run-1")
	reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusChecking })
	reg.Update(10, "run-1", func(s *types.JobState) { s.Status = types.JobStatusDownloading })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Update(10, "run-1", func(s *types.JobState) { s.BytesRead++ })
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Get(10)
			}
		}()
	}
	wg.Wait()

	got, _ := reg.Get(10)
	assert.Equal(t, int64(800), got.BytesRead)
}

func TestSortedAppIDs(t *testing.T) {
	jobs := map[int]types.JobState{30: {}, 10: {}, 20: {}}
	assert.Equal(t, []int{10, 20, 30}, SortedAppIDs(jobs))
}
