package services

import (
	"context"
	"cyberia/config"
	"cyberia/observability"
	"cyberia/types"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// ReasonNoEndpoints is the failure reason when no endpoint is enabled.
	ReasonNoEndpoints = "No APIs available"
	// ReasonNotAvailable is the failure reason when every endpoint was tried.
	ReasonNotAvailable = "Not available on any API"

	chunkSize = 32 * 1024
)

// Outcome is the terminal result of one job run
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Result is returned by Orchestrator.Run
type Result struct {
	Outcome Outcome
	API     string
	Err     error
}

// attempt is the outcome of trying a single endpoint
type attempt int

const (
	attemptSkip attempt = iota
	attemptCancelled
	attemptDownloaded
)

// OrchestratorConfig holds the collaborators of an Orchestrator
type OrchestratorConfig struct {
	Manifest  config.ManifestProvider
	Clients   *HTTPClientPool
	Artifacts ArtifactStore
	Installer Installer
	Registry  Registry
	Logger    *slog.Logger
	Telemetry *observability.Config
	UserAgent string
}

// Orchestrator runs the endpoint fallback chain for one app id at a time:
// stream the archive from the first endpoint that serves a valid zip, then
// hand it to the installer.
type Orchestrator struct {
	manifest  config.ManifestProvider
	clients   *HTTPClientPool
	artifacts ArtifactStore
	installer Installer
	registry  Registry
	logger    *slog.Logger
	tracer    *observability.Tracer
	metrics   *observability.Metrics
	userAgent string
}

// NewOrchestrator creates an orchestrator from cfg
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.UserAgent
	}
	clients := cfg.Clients
	if clients == nil {
		clients = NewHTTPClientPool(config.DefaultHTTPTimeout, logger)
	}

	return &Orchestrator{
		manifest:  cfg.Manifest,
		clients:   clients,
		artifacts: cfg.Artifacts,
		installer: cfg.Installer,
		registry:  cfg.Registry,
		logger:    logger,
		tracer:    cfg.Telemetry.Tracer(),
		metrics:   cfg.Telemetry.Metrics(),
		userAgent: userAgent,
	}
}

// Run executes one job run. Every observable change is written to the
// registry under runID; the returned Result mirrors the final record.
// Cancellation of ctx is observed before each endpoint, before and during
// streaming, after streaming, and before and after the installer.
func (o *Orchestrator) Run(ctx context.Context, appID int, runID string) (result Result) {
	ctx, span := o.tracer.StartJob(ctx, appID, runID)
	defer span.End()

	logger := o.logger.With("appid", appID, "run_id", runID)
	defer func() {
		span.SetAttributes(observability.OutcomeAttr(string(result.Outcome)))
		o.tracer.RecordError(span, result.Err)
		o.metrics.RecordJob(ctx, string(result.Outcome))
	}()

	endpoints := o.manifest.LoadEnabledEndpoints()
	if len(endpoints) == 0 {
		logger.Warn("No enabled APIs in manifest")
		return o.fail(appID, runID, "", errors.New(ReasonNoEndpoints))
	}

	dest := o.artifacts.Path(appID)
	o.record(logger, appID, runID, func(s *types.JobState) {
		s.Status = types.JobStatusChecking
		s.CurrentAPI = ""
		s.BytesRead = 0
		s.TotalBytes = 0
		s.Dest = dest
	})

	for _, endpoint := range endpoints {
		name := endpoint.DisplayName()
		o.record(logger, appID, runID, func(s *types.JobState) {
			s.Status = types.JobStatusChecking
			s.CurrentAPI = name
			s.BytesRead = 0
			s.TotalBytes = 0
		})

		if ctx.Err() != nil {
			logger.Info("Download cancelled before contacting API", "api", name)
			return o.cancelled(logger, appID, runID, dest)
		}

		switch o.tryEndpoint(ctx, logger.With("api", name), appID, runID, endpoint, dest) {
		case attemptSkip:
			continue
		case attemptCancelled:
			return o.cancelled(logger, appID, runID, dest)
		}

		return o.install(ctx, logger.With("api", name), appID, runID, name, dest)
	}

	return o.fail(appID, runID, "", errors.New(ReasonNotAvailable))
}

// tryEndpoint streams the archive from one endpoint into dest and validates it.
func (o *Orchestrator) tryEndpoint(ctx context.Context, logger *slog.Logger, appID int, runID string, endpoint types.Endpoint, dest string) attempt {
	name := endpoint.DisplayName()
	ctx, span := o.tracer.StartEndpointAttempt(ctx, name)
	defer span.End()

	result, read, label := o.stream(ctx, logger, appID, runID, endpoint, dest)
	o.metrics.RecordBytes(ctx, name, read)

	span.SetAttributes(observability.APIResultAttr(label), observability.BytesAttr(read))
	o.metrics.RecordAttempt(ctx, name, label)
	return result
}

// stream downloads one endpoint's archive into dest. The returned label is
// the observability.Result* value describing the attempt.
func (o *Orchestrator) stream(ctx context.Context, logger *slog.Logger, appID int, runID string, endpoint types.Endpoint, dest string) (attempt, int64, string) {
	url := endpoint.ResolveURL(appID)
	logger.Info("Trying API", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Warn("API request could not be built", "error", err)
		return attemptSkip, 0, observability.ResultUnavailable
	}
	req.Header.Set("User-Agent", o.userAgent)
	if endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
	}

	resp, err := o.clients.Acquire("download").Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return attemptCancelled, 0, observability.ResultCancelled
		}
		logger.Warn("API failed with error", "error", err)
		return attemptSkip, 0, observability.ResultTransport
	}
	defer resp.Body.Close()

	logger.Info("API responded", "status", resp.StatusCode)
	o.tracer.SetHTTPStatus(ctx, resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return attemptSkip, 0, observability.ResultUnavailable
	}

	if ctx.Err() != nil {
		return attemptCancelled, 0, observability.ResultCancelled
	}

	total := parseContentLength(resp.Header.Get("Content-Length"))
	o.record(logger, appID, runID, func(s *types.JobState) {
		s.Status = types.JobStatusDownloading
		s.BytesRead = 0
		s.TotalBytes = total
	})

	file, err := o.artifacts.Create(appID)
	if err != nil {
		logger.Warn("Could not create artifact", "path", dest, "error", err)
		return attemptSkip, 0, observability.ResultUnavailable
	}

	var read int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				file.Close()
				o.removeArtifact(logger, dest)
				logger.Warn("Writing artifact failed", "path", dest, "error", err)
				return attemptSkip, read, observability.ResultUnavailable
			}
			read += int64(n)
			current := read
			o.record(logger, appID, runID, func(s *types.JobState) {
				s.BytesRead = current
			})
			if ctx.Err() != nil {
				file.Close()
				logger.Info("Download cancelled after writing chunk")
				return attemptCancelled, read, observability.ResultCancelled
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			file.Close()
			if ctx.Err() != nil {
				logger.Info("Download cancelled mid-stream")
				return attemptCancelled, read, observability.ResultCancelled
			}
			o.removeArtifact(logger, dest)
			logger.Warn("API stream failed", "error", readErr)
			return attemptSkip, read, observability.ResultTransport
		}
	}

	if err := file.Close(); err != nil {
		o.removeArtifact(logger, dest)
		logger.Warn("Closing artifact failed", "path", dest, "error", err)
		return attemptSkip, read, observability.ResultUnavailable
	}
	logger.Info("Download complete", "path", dest, "bytes", read)

	if ctx.Err() != nil {
		logger.Info("Download marked cancelled after completion")
		return attemptCancelled, read, observability.ResultCancelled
	}

	if err := o.artifacts.Validate(dest); err != nil {
		var invalid *InvalidArchiveError
		switch {
		case errors.As(err, &invalid):
			logger.Warn("API returned non-zip file", "magic", fmt.Sprintf("%x", invalid.Magic),
				"size", invalid.Size, "preview", invalid.Preview)
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("Downloaded file not found after download", "path", dest)
		default:
			logger.Warn("File validation failed", "error", err)
		}
		o.removeArtifact(logger, dest)
		return attemptSkip, read, observability.ResultInvalid
	}

	return attemptDownloaded, read, observability.ResultDownloaded
}

// install hands a validated artifact to the installer. An installer failure
// ends the job; no further endpoints are tried.
func (o *Orchestrator) install(ctx context.Context, logger *slog.Logger, appID int, runID, apiName, dest string) Result {
	if ctx.Err() != nil {
		logger.Info("Processing aborted due to cancellation")
		return o.cancelled(logger, appID, runID, dest)
	}
	o.record(logger, appID, runID, func(s *types.JobState) {
		s.Status = types.JobStatusProcessing
	})

	if ctx.Err() != nil {
		logger.Info("Processing aborted due to cancellation")
		return o.cancelled(logger, appID, runID, dest)
	}
	o.record(logger, appID, runID, func(s *types.JobState) {
		s.Status = types.JobStatusInstalling
	})

	installCtx, span := o.tracer.StartInstall(ctx, appID)
	started := time.Now()
	err := o.installer.Install(installCtx, appID, dest)
	o.metrics.RecordInstall(ctx, time.Since(started), err != nil)
	o.tracer.RecordError(span, err)
	span.End()

	o.record(logger, appID, runID, func(s *types.JobState) {
		s.InstalledPath = dest
	})

	if ctx.Err() != nil {
		logger.Info("Installation finished but job was cancelled")
		return o.cancelled(logger, appID, runID, dest)
	}

	if err != nil {
		logger.Warn("Processing failed", "error", err)
		o.removeArtifact(logger, dest)
		return o.fail(appID, runID, apiName, fmt.Errorf("Processing failed: %w", err))
	}

	o.removeArtifact(logger, dest)
	o.record(logger, appID, runID, func(s *types.JobState) {
		s.Status = types.JobStatusDone
		s.Success = true
		s.API = apiName
	})
	logger.Info("Job complete")
	return Result{Outcome: OutcomeDone, API: apiName}
}

// fail records a terminal failure.
func (o *Orchestrator) fail(appID int, runID, apiName string, err error) Result {
	logger := o.logger.With("appid", appID, "run_id", runID)
	o.record(logger, appID, runID, func(s *types.JobState) {
		s.Status = types.JobStatusFailed
		s.Error = err.Error()
	})
	return Result{Outcome: OutcomeFailed, API: apiName, Err: err}
}

// cancelled removes any partial artifact and records the cancellation. The
// record is usually cancelled already by the entry point.
func (o *Orchestrator) cancelled(logger *slog.Logger, appID int, runID, dest string) Result {
	o.removeArtifact(logger, dest)
	o.record(logger, appID, runID, func(s *types.JobState) {
		s.Status = types.JobStatusCancelled
	})
	logger.Info("Download cancelled and cleaned up")
	return Result{Outcome: OutcomeCancelled}
}

// record writes to the registry. Rejected writes are expected once a job was
// cancelled or superseded, so they are only logged.
func (o *Orchestrator) record(logger *slog.Logger, appID int, runID string, fn func(*types.JobState)) {
	if _, err := o.registry.Update(appID, runID, fn); err != nil {
		logger.Debug("Job state update rejected", "error", err)
	}
}

func (o *Orchestrator) removeArtifact(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := o.artifacts.Remove(path); err != nil {
		logger.Warn("Failed to remove artifact", "path", path, "error", err)
	}
}

// parseContentLength returns the declared size, or 0 when absent or invalid.
func parseContentLength(header string) int64 {
	size, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil || size < 0 {
		return 0
	}
	return size
}
