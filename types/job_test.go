package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		ok   bool
	}{
		{"queued to checking", JobStatusQueued, JobStatusChecking, true},
		{"checking to downloading", JobStatusChecking, JobStatusDownloading, true},
		{"downloading back to checking", JobStatusDownloading, JobStatusChecking, true},
		{"downloading to processing", JobStatusDownloading, JobStatusProcessing, true},
		{"processing to installing", JobStatusProcessing, JobStatusInstalling, true},
		{"installing to done", JobStatusInstalling, JobStatusDone, true},
		{"progress within downloading", JobStatusDownloading, JobStatusDownloading, true},
		{"checking fails", JobStatusChecking, JobStatusFailed, true},
		{"installing cancelled", JobStatusInstalling, JobStatusCancelled, true},
		{"queued to done", JobStatusQueued, JobStatusDone, false},
		{"checking to installing", JobStatusChecking, JobStatusInstalling, false},
		{"processing to checking", JobStatusProcessing, JobStatusChecking, false},
		{"cancelled to checking", JobStatusCancelled, JobStatusChecking, false},
		{"done to failed", JobStatusDone, JobStatusFailed, false},
		{"failed to failed", JobStatusFailed, JobStatusFailed, false},
		{"unknown status", JobStatusQueued, JobStatus("paused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))

			err := tt.from.ValidateTransition(tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusDone, JobStatusFailed, JobStatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []JobStatus{JobStatusQueued, JobStatusChecking, JobStatusDownloading, JobStatusProcessing, JobStatusInstalling} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestJobStateProgress(t *testing.T) {
	assert.Equal(t, 0.0, JobState{BytesRead: 10}.Progress())
	assert.Equal(t, 50.0, JobState{BytesRead: 50, TotalBytes: 100}.Progress())
	assert.Equal(t, 100.0, JobState{BytesRead: 150, TotalBytes: 100}.Progress())
}

func TestJobStateJSON(t *testing.T) {
	data, err := json.Marshal(JobState{Status: JobStatusDownloading, CurrentAPI: "Primary", BytesRead: 5, TotalBytes: 10})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "downloading", decoded["status"])
	assert.Equal(t, "Primary", decoded["currentApi"])
	assert.Equal(t, 5.0, decoded["bytesRead"])
	assert.Equal(t, 10.0, decoded["totalBytes"])
	assert.NotContains(t, decoded, "error")
	assert.NotContains(t, decoded, "success")
	assert.NotContains(t, decoded, "installedPath")
}

func TestEndpointResolveURL(t *testing.T) {
	endpoint := Endpoint{Name: "", URL: "https://api.example.com/<appid>/pkg?id=<appid>"}
	assert.Equal(t, "https://api.example.com/730/pkg?id=730", endpoint.ResolveURL(730))
	assert.Equal(t, "Unknown", endpoint.DisplayName())
}

func TestResponseEmptyState(t *testing.T) {
	data, err := json.Marshal(Response{Success: true, State: struct{}{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"state":{}}`, string(data))
}
