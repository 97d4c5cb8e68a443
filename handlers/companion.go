package handlers

import (
	"cyberia/services"
	"cyberia/types"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CompanionHandler exposes the SLSsteam config editor
type CompanionHandler struct {
	config *services.CompanionConfig
	logger *slog.Logger
}

// NewCompanionHandler creates a new companion handler
func NewCompanionHandler(cfg *services.CompanionConfig, logger *slog.Logger) *CompanionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompanionHandler{config: cfg, logger: logger}
}

// CheckFakeAppID reports whether raw is mapped under FakeAppIds
func (h *CompanionHandler) CheckFakeAppID(raw string) gin.H {
	appID, err := services.ParseAppID(raw)
	if err != nil {
		return gin.H{"success": false, "error": services.ErrInvalidAppID.Error()}
	}

	exists, err := h.config.HasFakeAppID(appID)
	if err != nil {
		h.logger.Error("Error checking FakeAppId", "appid", appID, "error", err)
		return gin.H{"success": false, "error": err.Error()}
	}
	return gin.H{"success": true, "exists": exists}
}

// ToggleFakeAppID adds or removes raw from FakeAppIds
func (h *CompanionHandler) ToggleFakeAppID(raw string) gin.H {
	appID, err := services.ParseAppID(raw)
	if err != nil {
		return gin.H{"success": false, "error": services.ErrInvalidAppID.Error()}
	}

	action, err := h.config.ToggleFakeAppID(appID)
	if err != nil {
		h.logger.Error("Error toggling FakeAppId", "appid", appID, "error", err)
		return gin.H{"success": false, "error": err.Error()}
	}
	return gin.H{"success": true, "action": action, "appid": appID}
}

// StatusConfig returns the IdleStatus and UnownedStatus blocks
func (h *CompanionHandler) StatusConfig() gin.H {
	status, err := h.config.StatusConfig()
	if err != nil {
		h.logger.Error("Error reading status config", "error", err)
		return gin.H{"success": false, "error": err.Error()}
	}
	return gin.H{
		"success":       true,
		"idle_appid":    status.IdleAppID,
		"idle_title":    status.IdleTitle,
		"unowned_appid": status.UnownedAppID,
		"unowned_title": status.UnownedTitle,
	}
}

// SaveStatusConfig writes the IdleStatus and UnownedStatus blocks
func (h *CompanionHandler) SaveStatusConfig(status types.StatusConfig) gin.H {
	if err := h.config.SaveStatusConfig(status); err != nil {
		h.logger.Error("Error saving status config", "error", err)
		return gin.H{"success": false, "error": err.Error()}
	}
	return gin.H{"success": true}
}

// GetFakeAppID handles GET /api/companion/fake/:appid
func (h *CompanionHandler) GetFakeAppID(c *gin.Context) {
	respond(c, h.CheckFakeAppID(c.Param("appid")))
}

// PostFakeAppID handles POST /api/companion/fake/:appid
func (h *CompanionHandler) PostFakeAppID(c *gin.Context) {
	respond(c, h.ToggleFakeAppID(c.Param("appid")))
}

// GetStatusConfig handles GET /api/companion/status
func (h *CompanionHandler) GetStatusConfig(c *gin.Context) {
	respond(c, h.StatusConfig())
}

// UpdateStatusConfig handles POST /api/companion/status
func (h *CompanionHandler) UpdateStatusConfig(c *gin.Context) {
	var status types.StatusConfig
	if err := c.ShouldBindJSON(&status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON"})
		return
	}
	respond(c, h.SaveStatusConfig(status))
}

// respond writes an envelope, using 400 for rejected identifiers and 200
// otherwise.
func respond(c *gin.Context, resp gin.H) {
	if resp["error"] == services.ErrInvalidAppID.Error() {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
