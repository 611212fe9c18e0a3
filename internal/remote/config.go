package remote

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config holds the verification service client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Rate    rate.Limit // Requests per second, 0 disables rate limiting
	Burst   int
}

// LoadConfig loads client configuration from environment variables.
func LoadConfig() (*Config, error) {
	baseURL := os.Getenv("SENTINEL_API_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeoutStr := os.Getenv("SENTINEL_API_TIMEOUT_SECONDS")
	timeout, err := strconv.Atoi(timeoutStr)
	if err != nil || timeout <= 0 {
		timeout = 5 // Default to 5 seconds
		logrus.Infof("Invalid or missing SENTINEL_API_TIMEOUT_SECONDS. Defaulting to %d seconds.", timeout)
	}

	config := &Config{
		BaseURL: baseURL,
		Timeout: time.Duration(timeout) * time.Second,
	}

	rateStr := os.Getenv("SENTINEL_API_RATE_LIMIT")
	if rateStr != "" {
		rateValue, err := strconv.ParseFloat(rateStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SENTINEL_API_RATE_LIMIT value: %v", err)
		}
		burst := 1
		burstStr := os.Getenv("SENTINEL_API_RATE_BURST")
		if burstStr != "" {
			burst, err = strconv.Atoi(burstStr)
			if err != nil {
				return nil, fmt.Errorf("invalid SENTINEL_API_RATE_BURST value: %v", err)
			}
		}
		config.Rate = rate.Limit(rateValue)
		config.Burst = burst
	}

	return config, nil
}
