package handlers

import (
	"cyberia/config"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SettingsHandler handles settings-related endpoints
type SettingsHandler struct {
	store  *config.Store
	logger *slog.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(store *config.Store, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{store: store, logger: logger}
}

// Load returns the settings envelope
func (h *SettingsHandler) Load() gin.H {
	settings, err := h.store.Load()
	if err != nil {
		h.logger.Error("Error loading settings", "error", err)
		return gin.H{"success": false, "error": err.Error()}
	}
	return gin.H{"success": true, "settings": settings}
}

// Save validates and persists a raw settings document. Missing api_list and
// accela_location keys are filled with defaults.
func (h *SettingsHandler) Save(raw []byte) gin.H {
	if !json.Valid(raw) {
		h.logger.Error("Error decoding settings JSON")
		return gin.H{"success": false, "error": "Invalid JSON"}
	}

	if err := h.store.SaveJSON(raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.Is(err, config.ErrInvalidSettings) || errors.As(err, &typeErr) {
			return gin.H{"success": false, "error": "Invalid settings"}
		}
		h.logger.Error("Error saving settings", "error", err)
		return gin.H{"success": false, "error": "Failed to save settings"}
	}

	h.logger.Info("Settings saved successfully")
	return gin.H{"success": true}
}

// GetSettings returns the current settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	resp := h.Load()
	if resp["success"] != true {
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateSettings replaces the settings with the request body
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON"})
		return
	}

	resp := h.Save(raw)
	switch {
	case resp["success"] == true:
	case resp["error"] == "Failed to save settings":
		c.JSON(http.StatusInternalServerError, resp)
		return
	default:
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
