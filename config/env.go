package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// SettingsFileName is the settings document inside the plugin directory.
	SettingsFileName = "settings.json"
	// TempDownloadDirName holds in-flight artifacts inside the plugin directory.
	TempDownloadDirName = "temp_dl"
	// UserAgent is sent with every manifest API request.
	UserAgent = "Cyberia/1.0"
	// DefaultHTTPTimeout bounds connecting and waiting for response headers.
	DefaultHTTPTimeout = 30 * time.Second
)

// GetPluginDir returns the directory holding settings.json and temp_dl.
func GetPluginDir() string {
	if dir := os.Getenv("CYBERIA_HOME"); dir != "" {
		return dir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "cyberia")
	}
	return filepath.Join(homeDir, ".local", "share", "cyberia")
}

// GetSettingsPath returns the absolute path of settings.json.
func GetSettingsPath() string {
	return filepath.Join(GetPluginDir(), SettingsFileName)
}

// GetTempDownloadDir returns the directory artifacts are downloaded to.
func GetTempDownloadDir() string {
	return filepath.Join(GetPluginDir(), TempDownloadDirName)
}

// EnsureTempDownloadDir creates the temp download directory if needed.
func EnsureTempDownloadDir(root string) (string, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return root, err
	}
	return root, nil
}

// GetSLSsteamConfigPath returns the companion tool's YAML config path.
func GetSLSsteamConfigPath() string {
	if path := os.Getenv("SLSSTEAM_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "SLSsteam", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "SLSsteam", "config.yaml")
}

// GetHTTPTimeout returns the connect/header timeout for manifest requests.
// CYBERIA_HTTP_TIMEOUT accepts a Go duration or a number of seconds.
func GetHTTPTimeout() time.Duration {
	raw := os.Getenv("CYBERIA_HTTP_TIMEOUT")
	if raw == "" {
		return DefaultHTTPTimeout
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return DefaultHTTPTimeout
}
