package handlers

import (
	"cyberia/services"
	"cyberia/types"
	"cyberia/websocket"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DownloadHandler handles download management endpoints
type DownloadHandler struct {
	jobQueue services.JobQueue
	hub      websocket.Hub
	logger   *slog.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(jq services.JobQueue, hub websocket.Hub, logger *slog.Logger) *DownloadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadHandler{
		jobQueue: jq,
		hub:      hub,
		logger:   logger,
	}
}

// StartDownload starts a job for the app id in the path
func (h *DownloadHandler) StartDownload(c *gin.Context) {
	resp := h.jobQueue.StartDownload(c.Param("appid"))
	c.JSON(statusFor(resp), resp)
}

// GetStatus returns the job record for the app id in the path
func (h *DownloadHandler) GetStatus(c *gin.Context) {
	resp := h.jobQueue.GetStatus(c.Param("appid"))
	c.JSON(statusFor(resp), resp)
}

// CancelDownload cancels the job for the app id in the path
func (h *DownloadHandler) CancelDownload(c *gin.Context) {
	resp := h.jobQueue.CancelDownload(c.Param("appid"))
	c.JSON(statusFor(resp), resp)
}

// GetAllJobs returns every job record
func (h *DownloadHandler) GetAllJobs(c *gin.Context) {
	jobs := h.jobQueue.GetAllJobs()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"jobs":    jobs,
		"total":   len(jobs),
	})
}

// HandleWebSocketConnection streams updates for a single job. The current
// record, when one exists, is sent first.
func (h *DownloadHandler) HandleWebSocketConnection(c *gin.Context) {
	appID, err := services.ParseAppID(c.Param("appid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": services.ErrInvalidAppID.Error()})
		return
	}
	h.serveWebSocket(c, appID)
}

// HandleWebSocketAllConnection streams updates for every job
func (h *DownloadHandler) HandleWebSocketAllConnection(c *gin.Context) {
	h.serveWebSocket(c, websocket.AllJobs)
}

func (h *DownloadHandler) serveWebSocket(c *gin.Context, appID int) {
	conn, err := websocket.GetUpgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "appid", appID, "error", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, appID, h.logger)
	if appID == websocket.AllJobs {
		jobs := h.jobQueue.GetAllJobs()
		for _, id := range services.SortedAppIDs(jobs) {
			client.Send(websocket.NewProgressMessage(id, jobs[id]))
		}
	} else if state, exists := h.jobQueue.GetJob(appID); exists {
		client.Send(websocket.NewProgressMessage(appID, state))
	}

	h.hub.RegisterClient(client)
	client.StartPumps()
}

// statusFor maps an envelope to an HTTP status. Only malformed identifiers
// are client errors; job failures are reported inside the envelope.
func statusFor(resp types.Response) int {
	if !resp.Success && resp.Error == services.ErrInvalidAppID.Error() {
		return http.StatusBadRequest
	}
	return http.StatusOK
}
