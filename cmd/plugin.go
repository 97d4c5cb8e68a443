package cmd

import (
	"context"
	"cyberia/config"
	"cyberia/observability"
	"cyberia/services"
	"cyberia/types"
	"cyberia/websocket"
	"fmt"
	"log/slog"
	"sync"
)

// Plugin wires the backend components together and owns their lifecycle
type Plugin struct {
	Logger    *slog.Logger
	Settings  *config.Store
	Registry  services.Registry
	Hub       websocket.Hub
	Clients   *services.HTTPClientPool
	Jobs      services.JobQueue
	Companion *services.CompanionConfig
	Opener    *services.URLOpener
	TempDir   string

	mu        sync.RWMutex
	observers []services.StateObserver
}

// NewPlugin builds every component from the environment
func NewPlugin(logger *slog.Logger, telemetry *observability.Config) *Plugin {
	if logger == nil {
		logger = config.NewLogger(nil)
	}

	p := &Plugin{
		Logger:    logger,
		Settings:  config.NewStore(config.GetSettingsPath(), logger),
		Hub:       websocket.NewHub(logger),
		Clients:   services.NewHTTPClientPool(config.GetHTTPTimeout(), logger),
		Companion: services.NewCompanionConfig(config.GetSLSsteamConfigPath(), logger),
		Opener:    services.NewURLOpener(logger),
		TempDir:   config.GetTempDownloadDir(),
	}
	p.Registry = services.NewRegistry(p.notify)
	p.Observe(p.Hub.BroadcastState)

	orchestrator := services.NewOrchestrator(services.OrchestratorConfig{
		Manifest:  p.Settings,
		Clients:   p.Clients,
		Artifacts: services.NewArtifactStore(p.TempDir),
		Installer: services.NewExecInstaller(p.Settings, logger),
		Registry:  p.Registry,
		Logger:    logger,
		Telemetry: telemetry,
		UserAgent: config.UserAgent,
	})
	p.Jobs = services.NewJobQueue(p.Registry, orchestrator, logger)
	return p
}

// Observe registers fn to receive every committed job record
func (p *Plugin) Observe(fn services.StateObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Plugin) notify(appID int, state types.JobState) {
	p.mu.RLock()
	observers := p.observers
	p.mu.RUnlock()

	for _, fn := range observers {
		fn(appID, state)
	}
}

// Load prepares the temp download directory and starts the websocket hub
func (p *Plugin) Load() error {
	p.Logger.Info("Bootstrapping Cyberia plugin", "plugin_dir", config.GetPluginDir())

	if _, err := config.EnsureTempDownloadDir(p.TempDir); err != nil {
		return fmt.Errorf("create temp download dir: %w", err)
	}
	go p.Hub.Run()
	return nil
}

// Unload cancels in-flight jobs, closes the shared HTTP client and stops
// the hub. Jobs still running when ctx expires are abandoned.
func (p *Plugin) Unload(ctx context.Context) error {
	p.Logger.Info("Unloading")

	err := p.Jobs.Shutdown(ctx)
	if err != nil {
		p.Logger.Warn("Jobs did not stop before shutdown deadline", "error", err)
	}
	p.Clients.Close("Unload")
	p.Hub.Stop()
	return err
}
