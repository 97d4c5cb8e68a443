package services

import (
	"bytes"
	"context"
	"cyberia/config"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// InstallTimeout is the wall-clock limit for one installer run.
const InstallTimeout = 300 * time.Second

var (
	// ErrInstallerNotFound is returned when no ACCELA executable can be located.
	ErrInstallerNotFound = errors.New("ACCELA not found")
	// ErrInstallerTimeout is returned when ACCELA exceeds InstallTimeout.
	ErrInstallerTimeout = errors.New("ACCELA execution timed out")
)

// Environment variables that make ACCELA load the host's Qt libraries
// instead of its own.
var strippedEnv = []string{
	"LD_PRELOAD",
	"QT_PLUGIN_PATH",
	"QML2_IMPORT_PATH",
	"QTWEBENGINEPROCESS_PATH",
	"QT_INSTALL_PREFIX",
	"QT_INSTALL_PLUGINS",
}

// Installer hands a downloaded archive to the external installer.
type Installer interface {
	Install(ctx context.Context, appID int, artifact string) error
}

// ExecInstaller runs the ACCELA executable as a subprocess
type ExecInstaller struct {
	paths   config.InstallerPathSource
	logger  *slog.Logger
	timeout time.Duration

	goos     string
	lookPath func(string) (string, error)
	homeDir  func() (string, error)
	getenv   func(string) string
	environ  func() []string
}

// NewExecInstaller creates an installer that honours the accela_location
// override from paths before searching the host.
func NewExecInstaller(paths config.InstallerPathSource, logger *slog.Logger) *ExecInstaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecInstaller{
		paths:    paths,
		logger:   logger,
		timeout:  InstallTimeout,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		homeDir:  os.UserHomeDir,
		getenv:   os.Getenv,
		environ:  os.Environ,
	}
}

// Locate finds the installer: configured path first, then platform search.
func (i *ExecInstaller) Locate() (string, error) {
	if i.paths != nil {
		if override := strings.TrimSpace(i.paths.InstallerPathOverride()); override != "" {
			if fileExists(override) {
				i.logger.Info("Using ACCELA from settings.json", "path", override)
				return override, nil
			}
			i.logger.Warn("ACCELA path in settings.json not found", "path", override)
		}
	}

	if i.goos == "windows" {
		for _, name := range []string{"ACCELA.exe", "ACCELA"} {
			if path, err := i.lookPath(name); err == nil {
				i.logger.Info("Found ACCELA in PATH", "path", path)
				return path, nil
			}
		}
		for _, path := range i.windowsCandidates() {
			if fileExists(path) {
				i.logger.Info("Found ACCELA at common location", "path", path)
				return path, nil
			}
		}
		return "", i.notFoundError()
	}

	home, err := i.homeDir()
	if err != nil {
		return "", i.notFoundError()
	}
	accelaHome := filepath.Join(home, ".local", "share", "ACCELA")
	for _, path := range []string{filepath.Join(accelaHome, "run.sh"), filepath.Join(accelaHome, "ACCELA")} {
		if fileExists(path) {
			i.logger.Info("Found ACCELA", "path", path)
			return path, nil
		}
	}
	return "", i.notFoundError()
}

func (i *ExecInstaller) windowsCandidates() []string {
	var candidates []string
	for _, key := range []string{"APPDATA", "LOCALAPPDATA", "PROGRAMFILES", "PROGRAMFILES(X86)"} {
		if base := i.getenv(key); base != "" {
			candidates = append(candidates, filepath.Join(base, "ACCELA", "ACCELA.exe"))
		}
	}
	if home, err := i.homeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "Desktop", "ACCELA.exe"),
			filepath.Join(home, "Documents", "ACCELA.exe"),
		)
	}
	return candidates
}

func (i *ExecInstaller) notFoundError() error {
	settingsPath := config.GetSettingsPath()
	if i.paths != nil {
		settingsPath = i.paths.Path()
	}
	example := "/home/user/.local/share/ACCELA/ACCELA"
	if i.goos == "windows" {
		example = `C:\\path\\to\\ACCELA.exe`
	}
	return fmt.Errorf("%w. Please set the path in:\n%s\n\nAdd: {\"accela_location\": \"%s\"}",
		ErrInstallerNotFound, settingsPath, example)
}

// Install runs ACCELA against artifact. The run is bounded by the install
// timeout only; cancelling ctx does not interrupt it.
func (i *ExecInstaller) Install(ctx context.Context, appID int, artifact string) error {
	path, err := i.Locate()
	if err != nil {
		return err
	}
	i.ensureExecutable(path)

	command := []string{path, artifact}
	if strings.HasSuffix(path, ".sh") {
		command = append([]string{"bash"}, command...)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
	cmd.Env = SanitizedEnv(i.environ(), i.goos)
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	i.logger.Info("Calling ACCELA", "appid", appID, "artifact", artifact, "command", strings.Join(command, " "))
	err = cmd.Run()

	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		i.logger.Warn("ACCELA execution timed out", "appid", appID, "timeout", i.timeout)
		return fmt.Errorf("%w (%s limit reached)", ErrInstallerTimeout, i.timeout)
	}

	if err != nil {
		diagnostic := strings.TrimSpace(stderr.String())
		if diagnostic == "" {
			diagnostic = strings.TrimSpace(stdout.String())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			i.logger.Warn("ACCELA failed", "appid", appID, "code", exitErr.ExitCode(), "stderr", diagnostic)
			if diagnostic != "" {
				return fmt.Errorf("ACCELA execution failed with code %d: %s", exitErr.ExitCode(), diagnostic)
			}
			return fmt.Errorf("ACCELA execution failed with code %d", exitErr.ExitCode())
		}
		i.logger.Warn("Failed to execute ACCELA", "appid", appID, "error", err)
		return fmt.Errorf("ACCELA execution failed: %w", err)
	}

	i.logger.Info("ACCELA completed successfully", "appid", appID)
	if out := strings.TrimSpace(stdout.String()); out != "" {
		i.logger.Debug("ACCELA output", "appid", appID, "stdout", out)
	}
	return nil
}

// ensureExecutable adds execute permission when missing. Failure is logged
// and otherwise ignored.
func (i *ExecInstaller) ensureExecutable(path string) {
	if i.goos == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Mode().Perm()&0111 != 0 {
		return
	}
	i.logger.Warn("ACCELA found but not executable", "path", path)
	if err := os.Chmod(path, 0755); err != nil {
		i.logger.Warn("Failed to make ACCELA executable", "path", path, "error", err)
		return
	}
	i.logger.Info("Made ACCELA executable", "path", path)
}

// SanitizedEnv returns environ without the variables that break ACCELA's
// bundled Qt, plus the platform hints it needs.
func SanitizedEnv(environ []string, goos string) []string {
	env := make([]string, 0, len(environ)+3)
	overrides := map[string]string{
		"QT_AUTO_SCREEN_SCALE_FACTOR": "0",
		"QT_ENABLE_HIGHDPI_SCALING":   "0",
	}
	if goos != "windows" {
		overrides["QT_QPA_PLATFORM"] = "xcb"
	}

	for _, entry := range environ {
		key, _, _ := strings.Cut(entry, "=")
		if isStrippedEnv(key) {
			continue
		}
		if _, overridden := overrides[key]; overridden {
			continue
		}
		env = append(env, entry)
	}
	for _, key := range []string{"QT_AUTO_SCREEN_SCALE_FACTOR", "QT_ENABLE_HIGHDPI_SCALING", "QT_QPA_PLATFORM"} {
		if value, ok := overrides[key]; ok {
			env = append(env, key+"="+value)
		}
	}
	return env
}

func isStrippedEnv(key string) bool {
	for _, stripped := range strippedEnv {
		if key == stripped {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
