package types

import (
	"strconv"
	"strings"
)

// AppIDPlaceholder is substituted with the app id in endpoint URL templates.
const AppIDPlaceholder = "<appid>"

// Endpoint is one configured manifest API
type Endpoint struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	APIKey  string `json:"api_key,omitempty"`
	Enabled bool   `json:"enabled"`
}

// DisplayName returns the endpoint name, falling back to "Unknown".
func (e Endpoint) DisplayName() string {
	if strings.TrimSpace(e.Name) == "" {
		return "Unknown"
	}
	return e.Name
}

// ResolveURL substitutes appID into the URL template.
func (e Endpoint) ResolveURL(appID int) string {
	return strings.ReplaceAll(e.URL, AppIDPlaceholder, strconv.Itoa(appID))
}

// Settings is the persisted plugin settings document
type Settings struct {
	APIList        []Endpoint `json:"api_list"`
	AccelaLocation string     `json:"accela_location"`
}

// Response is the envelope returned by every entry point. State holds a
// JobState, or an empty object when the job is unknown.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	State   any    `json:"state,omitempty"`
}
