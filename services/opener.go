package services

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// ErrInvalidURL is returned for anything other than an http or https URL.
var ErrInvalidURL = errors.New("Invalid URL")

// URLOpener opens links in the user's default browser
type URLOpener struct {
	logger *slog.Logger
	goos   string
	start  func(name string, args ...string) error
}

// NewURLOpener creates an opener for the running platform
func NewURLOpener(logger *slog.Logger) *URLOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &URLOpener{logger: logger, goos: runtime.GOOS, start: startDetached}
}

// Open validates raw and hands it to the platform opener without waiting
// for the browser.
func (o *URLOpener) Open(raw string) error {
	value := strings.TrimSpace(raw)
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return ErrInvalidURL
	}

	name, args := o.command(value)
	if err := o.start(name, args...); err != nil {
		o.logger.Warn("OpenExternalUrl failed", "url", value, "error", err)
		return fmt.Errorf("open %s: %w", value, err)
	}
	o.logger.Info("Opened external URL", "url", value)
	return nil
}

func (o *URLOpener) command(url string) (string, []string) {
	switch o.goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
