package handlers

import (
	"context"
	"cyberia/services"
	"cyberia/types"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// callArgs holds the arguments of a method call, given either positionally
// under "args" or by parameter name.
type callArgs struct {
	positional []json.RawMessage
	named      map[string]json.RawMessage
}

// parseCallArgs decodes a call body. An empty body means no arguments.
func parseCallArgs(body []byte) (callArgs, error) {
	args := callArgs{named: map[string]json.RawMessage{}}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return args, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		err := json.Unmarshal(body, &args.positional)
		return args, err
	}
	if err := json.Unmarshal(body, &args.named); err != nil {
		return args, err
	}
	if raw, ok := args.named["args"]; ok {
		if err := json.Unmarshal(raw, &args.positional); err != nil {
			return args, err
		}
	}
	return args, nil
}

func (a callArgs) raw(index int, name string) (json.RawMessage, bool) {
	if index < len(a.positional) {
		return a.positional[index], true
	}
	raw, ok := a.named[name]
	return raw, ok
}

// String returns the argument as text. JSON strings are unquoted; numbers
// and objects are returned verbatim.
func (a callArgs) String(index int, name string) string {
	raw, ok := a.raw(index, name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Int returns the argument as an integer, or 0 when absent or malformed.
func (a callArgs) Int(index int, name string) int {
	value, err := strconv.Atoi(strings.TrimSpace(a.String(index, name)))
	if err != nil {
		return 0
	}
	return value
}

// MethodFunc handles one named method call
type MethodFunc func(args callArgs) any

// RPCHandler dispatches POST /api/call/:method to the plugin's methods
type RPCHandler struct {
	methods map[string]MethodFunc
	logger  *slog.Logger
}

// NewRPCHandler registers the plugin's methods over the given handlers
func NewRPCHandler(jq services.JobQueue, settings *SettingsHandler, companion *CompanionHandler, opener *services.URLOpener, logger *slog.Logger) *RPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &RPCHandler{methods: map[string]MethodFunc{}, logger: logger}

	h.methods["StartAddViaCyberia"] = func(a callArgs) any {
		return jq.StartDownload(a.String(0, "appid"))
	}
	h.methods["GetAddViaCyberiaStatus"] = func(a callArgs) any {
		return jq.GetStatus(a.String(0, "appid"))
	}
	h.methods["CancelAddViaCyberia"] = func(a callArgs) any {
		return jq.CancelDownload(a.String(0, "appid"))
	}

	h.methods["GetSettings"] = func(callArgs) any {
		return settings.Load()
	}
	h.methods["SaveSettings"] = func(a callArgs) any {
		return settings.Save([]byte(a.String(0, "settings_json")))
	}

	h.methods["CheckFakeAppId"] = func(a callArgs) any {
		return companion.CheckFakeAppID(a.String(0, "appid"))
	}
	h.methods["ToggleFakeAppId"] = func(a callArgs) any {
		return companion.ToggleFakeAppID(a.String(0, "appid"))
	}
	h.methods["GetStatusConfig"] = func(callArgs) any {
		return companion.StatusConfig()
	}
	h.methods["SaveStatusConfig"] = func(a callArgs) any {
		return companion.SaveStatusConfig(types.StatusConfig{
			IdleAppID:    a.Int(0, "idle_appid"),
			IdleTitle:    a.String(1, "idle_title"),
			UnownedAppID: a.Int(2, "unowned_appid"),
			UnownedTitle: a.String(3, "unowned_title"),
		})
	}

	h.methods["OpenExternalUrl"] = func(a callArgs) any {
		if err := opener.Open(a.String(0, "url")); err != nil {
			if errors.Is(err, services.ErrInvalidURL) {
				return gin.H{"success": false, "error": services.ErrInvalidURL.Error()}
			}
			return gin.H{"success": false, "error": err.Error()}
		}
		return gin.H{"success": true}
	}

	h.methods["log"] = h.frontendLog(slog.LevelInfo)
	h.methods["warn"] = h.frontendLog(slog.LevelWarn)
	h.methods["error"] = h.frontendLog(slog.LevelError)

	return h
}

func (h *RPCHandler) frontendLog(level slog.Level) MethodFunc {
	return func(a callArgs) any {
		h.logger.Log(context.Background(), level, "[Frontend] "+a.String(0, "message"))
		return gin.H{"success": true}
	}
}

// Methods returns the registered method names
func (h *RPCHandler) Methods() []string {
	names := make([]string, 0, len(h.methods))
	for name := range h.methods {
		names = append(names, name)
	}
	return names
}

// Call handles POST /api/call/:method
func (h *RPCHandler) Call(c *gin.Context) {
	name := c.Param("method")
	method, ok := h.methods[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Unknown method: " + name})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON"})
		return
	}
	args, err := parseCallArgs(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON"})
		return
	}

	c.JSON(http.StatusOK, method(args))
}
