package handlers

import (
	"cyberia/config"
	"cyberia/services"
	"cyberia/websocket"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

// HealthHandler reports liveness and a summary of the plugin's state
type HealthHandler struct {
	manifest config.ManifestProvider
	jobs     services.JobQueue
	hub      websocket.Hub
	paths    map[string]string
	started  time.Time
}

// NewHealthHandler creates a new health handler. paths is echoed verbatim
// by APIStatus.
func NewHealthHandler(manifest config.ManifestProvider, jobs services.JobQueue, hub websocket.Hub, paths map[string]string) *HealthHandler {
	return &HealthHandler{
		manifest: manifest,
		jobs:     jobs,
		hub:      hub,
		paths:    paths,
		started:  time.Now(),
	}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "cyberia",
		"version":   Version,
		"uptime":    int64(time.Since(h.started).Seconds()),
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus summarises configured endpoints, jobs and websocket clients
func (h *HealthHandler) APIStatus(c *gin.Context) {
	jobs := h.jobs.GetAllJobs()
	active := 0
	for _, state := range jobs {
		if !state.Status.IsTerminal() {
			active++
		}
	}

	resp := gin.H{
		"message":      "Cyberia API is running",
		"enabled_apis": len(h.manifest.LoadEnabledEndpoints()),
		"jobs":         len(jobs),
		"active_jobs":  active,
		"ws_clients":   h.hub.ClientCount(),
	}
	for key, path := range h.paths {
		resp[key] = path
	}
	c.JSON(http.StatusOK, resp)
}
