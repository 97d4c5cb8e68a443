package cmd

import (
	"context"
	"cyberia/handlers"
	"cyberia/middleware"
	"cyberia/observability"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// StartWebServer runs the HTTP API until SIGINT or SIGTERM
func StartWebServer(port int, logger *slog.Logger) error {
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	plugin := NewPlugin(logger, observability.NewConfig(observability.WithGlobalProviders()))
	if err := plugin.Load(); err != nil {
		return err
	}

	portStr := strconv.Itoa(port)
	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		portStr = serverPort
	}

	srv := &http.Server{
		Addr:              ":" + portStr,
		Handler:           NewRouter(plugin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		plugin.Logger.Info("Cyberia web server starting", "port", portStr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			plugin.Unload(context.Background())
			return fmt.Errorf("start server: %w", err)
		}
	case <-ctx.Done():
		plugin.Logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		plugin.Logger.Warn("HTTP server shutdown failed", "error", err)
	}
	return plugin.Unload(shutdownCtx)
}

// NewRouter builds the gin engine serving plugin
func NewRouter(plugin *Plugin) *gin.Engine {
	downloadHandler := handlers.NewDownloadHandler(plugin.Jobs, plugin.Hub, plugin.Logger)
	settingsHandler := handlers.NewSettingsHandler(plugin.Settings, plugin.Logger)
	companionHandler := handlers.NewCompanionHandler(plugin.Companion, plugin.Logger)
	healthHandler := handlers.NewHealthHandler(plugin.Settings, plugin.Jobs, plugin.Hub, map[string]string{
		"settings_path":   plugin.Settings.Path(),
		"temp_dl":         plugin.TempDir,
		"slssteam_config": plugin.Companion.Path(),
	})
	rpcHandler := handlers.NewRPCHandler(plugin.Jobs, settingsHandler, companionHandler, plugin.Opener, plugin.Logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.Logging(plugin.Logger))

	setupRoutes(r, downloadHandler, settingsHandler, companionHandler, healthHandler, rpcHandler)
	return r
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, downloadHandler *handlers.DownloadHandler, settingsHandler *handlers.SettingsHandler, companionHandler *handlers.CompanionHandler, healthHandler *handlers.HealthHandler, rpcHandler *handlers.RPCHandler) {
	r.GET("/health", healthHandler.HealthCheck)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		// Host method calls
		apiGroup.POST("/call/:method", rpcHandler.Call)

		downloadsGroup := apiGroup.Group("/downloads")
		{
			downloadsGroup.GET("", downloadHandler.GetAllJobs)
			downloadsGroup.POST("/:appid", downloadHandler.StartDownload)
			downloadsGroup.GET("/:appid", downloadHandler.GetStatus)
			downloadsGroup.DELETE("/:appid", downloadHandler.CancelDownload)
		}

		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/downloads/:appid", downloadHandler.HandleWebSocketConnection)
			wsGroup.GET("/downloads", downloadHandler.HandleWebSocketAllConnection)
		}

		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.POST("/settings", settingsHandler.UpdateSettings)

		companionGroup := apiGroup.Group("/companion")
		{
			companionGroup.GET("/fake/:appid", companionHandler.GetFakeAppID)
			companionGroup.POST("/fake/:appid", companionHandler.PostFakeAppID)
			companionGroup.GET("/status", companionHandler.GetStatusConfig)
			companionGroup.POST("/status", companionHandler.UpdateStatusConfig)
		}
	}
}
