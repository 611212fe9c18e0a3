package resolver

import (
	"os"
)

// Settings holds the resolver-specific configuration.
type Settings struct {
	GoldenSetPath string
}

// LoadSettings loads resolver configuration from environment variables.
func LoadSettings() (*Settings, error) {
	path := os.Getenv("GOLDEN_SET_PATH")
	if path == "" {
		path = "golden_set.json"
	}

	return &Settings{
		GoldenSetPath: path,
	}, nil
}
