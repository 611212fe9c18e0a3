package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/modsentinel/sentinel/internal/models"
)

// DefaultBaseURL points at a local development instance of the verification
// service.
const DefaultBaseURL = "http://localhost:8787"

const userAgent = "SkyrimSentinel/1.0"

// Client talks to the Sentinel verification service.
type Client struct {
	BaseURL     string
	Client      *http.Client
	RateLimiter *rate.Limiter
}

// NewClient initializes a new verification service client. The timeout bounds
// the whole round trip so an interactive caller is never blocked indefinitely.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

// SetRateLimiter sets the rate limiter for the client.
func (c *Client) SetRateLimiter(limiter *rate.Limiter) {
	c.RateLimiter = limiter
}

// HealthCheck probes the service's liveness endpoint. Any transport failure
// or non-2xx response yields false, never an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

type scanRequest struct {
	Hashes []string `json:"hashes"`
}

type scanResult struct {
	Hash   string               `json:"hash"`
	Status string               `json:"status"`
	Plugin *models.PluginRecord `json:"plugin"`
}

type scanResponse struct {
	Scanned  int          `json:"scanned"`
	Verified int          `json:"verified"`
	Unknown  int          `json:"unknown"`
	Revoked  int          `json:"revoked"`
	Results  []scanResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Scan submits a batch of hashes for verification in a single round trip.
// One batched request keeps latency bounded and lets the server apply one
// policy decision across the whole set.
//
// Returns models.ErrEmptyBatch for empty input (no network call), a
// *TransportError on network failure and an *APIError when the service
// rejects the request or answers with an undecodable body.
func (c *Client) Scan(ctx context.Context, hashes []string) (models.BatchResult, error) {
	var result models.BatchResult

	if len(hashes) == 0 {
		return result, models.ErrEmptyBatch
	}

	if c.RateLimiter != nil {
		if err := c.RateLimiter.Wait(ctx); err != nil {
			return result, &TransportError{Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	payload, err := json.Marshal(scanRequest{Hashes: hashes})
	if err != nil {
		return result, fmt.Errorf("failed to encode scan request: %w", err)
	}

	url := c.BaseURL + "/api/v1/scan"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return result, fmt.Errorf("failed to build scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return result, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, &TransportError{Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"hash_count":  len(hashes),
	}).Debug("Verification service scan response")

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return result, &APIError{
				Message:    errResp.Error,
				Code:       errResp.Code,
				StatusCode: resp.StatusCode,
			}
		}
		return result, &APIError{
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	var scanResp scanResponse
	if err := json.Unmarshal(body, &scanResp); err != nil {
		// A 200 with a body we cannot decode is treated like a rejected
		// request so the caller falls back to the local cache.
		return result, &APIError{
			Message:    fmt.Sprintf("invalid response body: %v", err),
			StatusCode: resp.StatusCode,
		}
	}

	entries := make([]models.VerificationEntry, 0, len(scanResp.Results))
	for _, item := range scanResp.Results {
		entries = append(entries, models.VerificationEntry{
			Hash:   models.NormalizeHash(item.Hash),
			Status: models.VerificationStatus(item.Status),
			Plugin: item.Plugin,
			Source: models.SourceRemote,
		})
	}

	result = models.BatchResult{
		Scanned:  scanResp.Scanned,
		Verified: scanResp.Verified,
		Unknown:  scanResp.Unknown,
		Revoked:  scanResp.Revoked,
		Entries:  entries,
		Source:   models.SourceRemote,
	}
	return result, nil
}
