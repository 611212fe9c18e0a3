package cache

import (
	"os"
)

// Config holds the cache-related configuration.
type Config struct {
	Path string
}

// LoadConfig loads cache configuration from environment variables.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CACHE_PATH")
	if path == "" {
		path = "cache/sentinel.db"
	}

	return &Config{
		Path: path,
	}, nil
}
