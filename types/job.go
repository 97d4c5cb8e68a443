package types

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the current status of a download job
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusChecking    JobStatus = "checking"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusInstalling  JobStatus = "installing"
	JobStatusDone        JobStatus = "done"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// ErrInvalidTransition is returned when a status change is not reachable
// from the current status.
var ErrInvalidTransition = errors.New("invalid job status transition")

// transitions lists the statuses reachable from each non-terminal status.
// failed and cancelled are reachable from every non-terminal status.
var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:      {JobStatusChecking},
	JobStatusChecking:    {JobStatusDownloading},
	JobStatusDownloading: {JobStatusChecking, JobStatusProcessing},
	JobStatusProcessing:  {JobStatusInstalling},
	JobStatusInstalling:  {JobStatusDone},
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCancelled
}

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusChecking, JobStatusDownloading, JobStatusProcessing,
		JobStatusInstalling, JobStatusDone, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s. Staying in the
// same non-terminal status is allowed so progress can be recorded.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == JobStatusFailed || next == JobStatusCancelled || next == s {
		return true
	}
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition wrapped with both statuses
// when next is not reachable from s.
func (s JobStatus) ValidateTransition(next JobStatus) error {
	if s.CanTransitionTo(next) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
}

// JobState is the observable record of one download job, keyed by app id.
type JobState struct {
	Status        JobStatus `json:"status,omitempty"`
	CurrentAPI    string    `json:"currentApi,omitempty"`
	BytesRead     int64     `json:"bytesRead"`
	TotalBytes    int64     `json:"totalBytes"`
	Dest          string    `json:"dest,omitempty"`
	Error         string    `json:"error,omitempty"`
	Success       bool      `json:"success,omitempty"`
	API           string    `json:"api,omitempty"`
	InstalledPath string    `json:"installedPath,omitempty"`
	RunID         string    `json:"runId,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Progress returns the completion percentage of the active transfer, or 0
// when the total size is unknown.
func (s JobState) Progress() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	p := float64(s.BytesRead) / float64(s.TotalBytes) * 100
	if p > 100 {
		return 100
	}
	return p
}
