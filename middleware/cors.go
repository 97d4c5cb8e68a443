package middleware

import (
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DefaultCORSOrigins are the Steam client's UI origin and the local dev server.
var DefaultCORSOrigins = []string{"https://steamloopback.host", "http://localhost:8080"}

// CORSOrigins parses CYBERIA_CORS_ORIGINS, a comma separated list. A single
// "*" allows every origin.
func CORSOrigins() []string {
	raw := os.Getenv("CYBERIA_CORS_ORIGINS")
	if strings.TrimSpace(raw) == "" {
		return DefaultCORSOrigins
	}

	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, strings.TrimRight(origin, "/"))
		}
	}
	if len(origins) == 0 {
		return DefaultCORSOrigins
	}
	return origins
}

// CORS returns the CORS middleware for the plugin API and websockets
func CORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	origins := CORSOrigins()
	if len(origins) == 1 && origins[0] == "*" {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type"}
	config.MaxAge = 12 * time.Hour

	return cors.New(config)
}
