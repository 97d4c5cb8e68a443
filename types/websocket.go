package types

import "time"

// ProgressMessage represents a WebSocket job update message
type ProgressMessage struct {
	AppID      int       `json:"appid"`
	Type       string    `json:"type"`       // "progress", "status", "complete", "error"
	Progress   float64   `json:"progress"`   // 0-100 percentage
	Status     JobStatus `json:"status"`     // current job status
	CurrentAPI string    `json:"currentApi"` // endpoint currently being tried
	BytesRead  int64     `json:"bytesRead"`
	TotalBytes int64     `json:"totalBytes"`
	Message    string    `json:"message,omitempty"` // status or error messages
	Timestamp  time.Time `json:"timestamp"`         // when the update occurred
}
