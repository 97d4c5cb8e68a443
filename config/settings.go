package config

import (
	"bytes"
	"cyberia/types"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ManifestProvider supplies the ordered list of enabled endpoints.
type ManifestProvider interface {
	LoadEnabledEndpoints() []types.Endpoint
}

// InstallerPathSource supplies the user-configured installer location.
type InstallerPathSource interface {
	InstallerPathOverride() string
	Path() string
}

// ErrInvalidSettings is returned when a settings document is not a JSON object.
var ErrInvalidSettings = errors.New("invalid settings")

var (
	trailingCommaArray  = regexp.MustCompile(`,\s*]`)
	trailingCommaObject = regexp.MustCompile(`,\s*}\s*$`)
)

// Store reads and writes settings.json
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a settings store for the file at path
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// DefaultSettings returns the settings written when none exist.
func DefaultSettings() types.Settings {
	return types.Settings{APIList: []types.Endpoint{}, AccelaLocation: ""}
}

// Load returns the current settings, creating or recreating the file with
// defaults when it is missing or not a JSON object.
func (s *Store) Load() (types.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Error loading settings.json", "path", s.path, "error", err)
		} else {
			s.logger.Info("settings.json not found, creating with default settings", "path", s.path)
		}
		settings := DefaultSettings()
		if saveErr := s.save(settings); saveErr != nil {
			return settings, saveErr
		}
		return settings, nil
	}

	settings, err := decodeSettings(data)
	if err != nil {
		s.logger.Warn("settings.json has invalid format, recreating", "path", s.path, "error", err)
		settings = DefaultSettings()
		if saveErr := s.save(settings); saveErr != nil {
			return settings, saveErr
		}
	}
	return settings, nil
}

// Save validates and writes settings, filling missing fields with defaults.
func (s *Store) Save(settings types.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settings)
}

// SaveJSON validates a raw settings document and saves it. Keys the plugin
// does not know about, top-level or per endpoint, are written back as given.
func (s *Store) SaveJSON(raw []byte) error {
	if _, err := decodeSettings(raw); err != nil {
		return err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &doc); err != nil {
		return err
	}
	if isNullOrMissing(doc, "api_list") {
		doc["api_list"] = json.RawMessage("[]")
	}
	if isNullOrMissing(doc, "accela_location") {
		doc["accela_location"] = json.RawMessage(`""`)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(data)
}

func isNullOrMissing(doc map[string]json.RawMessage, key string) bool {
	raw, ok := doc[key]
	return !ok || string(bytes.TrimSpace(raw)) == "null"
}

func (s *Store) save(settings types.Settings) error {
	if settings.APIList == nil {
		settings.APIList = []types.Endpoint{}
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Store) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	s.logger.Info("Settings saved", "path", s.path)
	return nil
}

// LoadEnabledEndpoints returns the enabled entries of api_list in order.
// A settings file that only parses after NormalizeManifestText is rewritten
// in its repaired form. Unreadable or unparseable files yield no endpoints.
func (s *Store) LoadEnabledEndpoints() []types.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		data = nil
	}
	text := string(data)

	normalized := NormalizeManifestText(text)
	if normalized != "" && normalized != text {
		if err := os.WriteFile(s.path, []byte(normalized), 0644); err == nil {
			s.logger.Info("Normalized settings.json to valid JSON", "path", s.path)
		}
		text = normalized
	}
	if strings.TrimSpace(text) == "" {
		text = "{}"
	}

	settings, err := decodeSettings([]byte(text))
	if err != nil {
		s.logger.Error("Failed to parse settings.json", "path", s.path, "error", err)
		return nil
	}

	enabled := make([]types.Endpoint, 0, len(settings.APIList))
	for _, endpoint := range settings.APIList {
		if endpoint.Enabled {
			enabled = append(enabled, endpoint)
		}
	}
	return enabled
}

// InstallerPathOverride returns the trimmed accela_location setting.
func (s *Store) InstallerPathOverride() string {
	settings, err := s.Load()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(settings.AccelaLocation)
}

// NormalizeManifestText repairs the hand-edit mistakes seen in settings
// files: trailing commas before ']' or the final '}', and a document that
// starts with the api_list key but lacks its outer braces. The original
// text is returned when the repaired text still does not parse.
func NormalizeManifestText(text string) string {
	content := strings.TrimSpace(text)
	if content == "" {
		return content
	}

	content = trailingCommaArray.ReplaceAllString(content, "]")
	content = trailingCommaObject.ReplaceAllString(content, "}")

	if strings.HasPrefix(content, `"api_list"`) || strings.HasPrefix(content, "'api_list'") ||
		strings.HasPrefix(content, "api_list") {
		if !strings.HasPrefix(content, "{") {
			content = "{" + content
		}
		if !strings.HasSuffix(content, "}") {
			content = strings.TrimRight(content, ",") + "}"
		}
	}

	if !json.Valid([]byte(content)) {
		return text
	}
	return content
}

// decodeSettings parses a settings document, requiring a JSON object.
func decodeSettings(data []byte) (types.Settings, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.Settings{}, ErrInvalidSettings
	}

	var settings types.Settings
	if err := json.Unmarshal(trimmed, &settings); err != nil {
		return types.Settings{}, err
	}
	if settings.APIList == nil {
		settings.APIList = []types.Endpoint{}
	}
	return settings, nil
}
