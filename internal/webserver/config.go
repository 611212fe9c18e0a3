package webserver

import (
	"os"
	"strconv"
	"strings"
)

// WebserverConfig holds the configuration for the webserver.
type WebserverConfig struct {
	ListenTo           string
	CorsAllowedOrigins []string
	MaxConcurrentScans int64
}

// NewWebserverConfig initializes the webserver configuration from environment variables.
func NewWebserverConfig() (*WebserverConfig, error) {
	config := &WebserverConfig{}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8686"
	}
	config.ListenTo = ":" + port

	corsAllowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if corsAllowedOrigins != "" {
		config.CorsAllowedOrigins = strings.Split(corsAllowedOrigins, ",")
	}

	maxScans, err := strconv.ParseInt(os.Getenv("MAX_CONCURRENT_SCANS"), 10, 64)
	if err != nil || maxScans < 1 {
		maxScans = 4
	}
	config.MaxConcurrentScans = maxScans

	return config, nil
}
