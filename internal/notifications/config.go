package notifications

import (
	"os"
	"strings"
)

// NotificationConfig holds the notification-related configuration.
type NotificationConfig struct {
	ShoutrrrURLs []string
}

// LoadNotificationConfig loads notification configuration from environment
// variables. An empty SHOUTRRR_URLS disables notifications.
func LoadNotificationConfig() (*NotificationConfig, error) {
	shoutrrrURLsStr := os.Getenv("SHOUTRRR_URLS")

	return &NotificationConfig{
		ShoutrrrURLs: parseShoutrrrURLs(shoutrrrURLsStr),
	}, nil
}

// parseShoutrrrURLs parses a comma-separated list of Shoutrrr URLs.
func parseShoutrrrURLs(urls string) []string {
	var result []string
	for _, url := range strings.Split(urls, ",") {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
