package cache

import (
	"context"
	"errors"

	"github.com/modsentinel/sentinel/internal/models"
)

// CachedPlugin is one persisted registry record.
type CachedPlugin struct {
	Name     string                    `json:"name"`
	NexusID  int                       `json:"nexus_id"`
	Filename string                    `json:"filename,omitempty"`
	Status   models.VerificationStatus `json:"status"`
}

// UpsertRecord is one row to be merged into the cache, keyed by hash.
type UpsertRecord struct {
	SHA256   string
	Name     string
	NexusID  int
	Filename string
	Status   models.VerificationStatus
}

// Store defines the methods required for the persisted hash cache.
type Store interface {
	// Initialize sets up the necessary tables.
	Initialize(ctx context.Context) error

	Close(ctx context.Context) error

	// Get retrieves the record for a single hash. The input is normalized to
	// lowercase before lookup. Returns ErrHashNotFound when absent.
	Get(ctx context.Context, hash string) (CachedPlugin, error)

	// GetBatch retrieves records for multiple hashes. Every requested hash
	// (normalized) appears as a key in the result, mapped to nil when absent.
	GetBatch(ctx context.Context, hashes []string) (map[string]*CachedPlugin, error)

	// UpsertBatch merges records into the cache in a single transaction,
	// last write wins per hash. Returns the number of rows written.
	UpsertBatch(ctx context.Context, records []UpsertRecord) (int, error)

	// Count returns the number of entries in the cache.
	Count(ctx context.Context) (int, error)

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error
}

var ErrHashNotFound = errors.New("hash not found in cache")
