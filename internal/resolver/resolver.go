package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/modsentinel/sentinel/internal/cache"
	"github.com/modsentinel/sentinel/internal/goldenset"
	"github.com/modsentinel/sentinel/internal/models"
	"github.com/modsentinel/sentinel/internal/notifications"
	"github.com/modsentinel/sentinel/internal/remote"
	"github.com/modsentinel/sentinel/internal/syncstate"
)

// VerificationClient is the remote side of the hybrid lookup.
type VerificationClient interface {
	// HealthCheck reports whether the verification service is reachable.
	HealthCheck(ctx context.Context) bool
	// Scan submits a batch of hashes and returns per-hash results.
	Scan(ctx context.Context, hashes []string) (models.BatchResult, error)
}

// Config holds the resolver's collaborators.
type Config struct {
	Client        VerificationClient
	Store         cache.Store
	SyncState     *syncstate.Store        // optional
	Notifier      *notifications.Notifier // optional
	Logger        *logrus.Logger
	GoldenSetPath string
}

// Resolver decides which data source answers a batch hash lookup: the remote
// verification service first, the local cache when the service fails. It owns
// no persisted state, only the last-used source for observability.
type Resolver struct {
	config Config

	mu         sync.Mutex
	lastSource models.Source
}

// New initializes a new Resolver.
func New(config Config) *Resolver {
	return &Resolver{config: config}
}

// Verify resolves a batch of hashes. The remote service is attempted first on
// every call, with no failure memory, so fresh data is used the instant
// connectivity returns. Remote failures are never surfaced to the caller;
// they show up as a result with Source=cached.
func (r *Resolver) Verify(ctx context.Context, hashes []string) (models.BatchResult, error) {
	if len(hashes) == 0 {
		return models.BatchResult{}, models.ErrEmptyBatch
	}

	normalized := models.NormalizeHashes(hashes)

	result, err := r.config.Client.Scan(ctx, normalized)
	if err == nil {
		r.setLastSource(models.SourceRemote)
		r.notifyRevoked(result)
		return result, nil
	}

	var apiErr *remote.APIError
	var transportErr *remote.TransportError
	switch {
	case errors.As(err, &apiErr):
		r.config.Logger.WithError(err).WithFields(logrus.Fields{
			"code":        apiErr.Code,
			"status_code": apiErr.StatusCode,
		}).Warn("Verification service rejected scan; falling back to local cache")
	case errors.As(err, &transportErr):
		r.config.Logger.WithError(err).Warn("Verification service unreachable; falling back to local cache")
	default:
		return models.BatchResult{}, err
	}

	return r.verifyFromCache(ctx, normalized)
}

// verifyFromCache classifies each requested hash against the local cache:
// absent means unknown, a revoked record stays revoked, anything else counts
// as verified.
func (r *Resolver) verifyFromCache(ctx context.Context, hashes []string) (models.BatchResult, error) {
	batch, err := r.config.Store.GetBatch(ctx, hashes)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("cache lookup failed: %w", err)
	}

	result := models.BatchResult{
		Scanned: len(hashes),
		Entries: make([]models.VerificationEntry, 0, len(hashes)),
		Source:  models.SourceCached,
	}

	for _, hash := range hashes {
		entry := models.VerificationEntry{
			Hash:   hash,
			Source: models.SourceCached,
		}

		cached := batch[hash]
		switch {
		case cached == nil:
			entry.Status = models.StatusUnknown
			result.Unknown++
		case cached.Status == models.StatusRevoked:
			entry.Status = models.StatusRevoked
			entry.Plugin = pluginRecord(cached)
			result.Revoked++
		default:
			entry.Status = models.StatusVerified
			entry.Plugin = pluginRecord(cached)
			result.Verified++
		}

		result.Entries = append(result.Entries, entry)
	}

	r.setLastSource(models.SourceCached)
	r.notifyRevoked(result)
	return result, nil
}

// IsOnline reports whether the verification service is reachable.
func (r *Resolver) IsOnline(ctx context.Context) bool {
	return r.config.Client.HealthCheck(ctx)
}

// SyncCache rebuilds the local cache from the golden set dataset and returns
// the number of rows written. Safe to call repeatedly; the cache upserts by
// hash, so an unchanged dataset leaves the entry count unchanged.
func (r *Resolver) SyncCache(ctx context.Context) (int, error) {
	dataset, err := goldenset.Load(r.config.GoldenSetPath)
	if err != nil {
		return 0, err
	}

	records := goldenset.Flatten(dataset)
	count, err := r.config.Store.UpsertBatch(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("failed to load golden set into cache: %w", err)
	}

	if r.config.SyncState != nil {
		record := syncstate.Record{
			SyncedAt:       nowUTC(),
			DatasetVersion: dataset.Version,
			Rows:           count,
		}
		if err := r.config.SyncState.Put(record); err != nil {
			r.config.Logger.WithError(err).Warn("Failed to record sync state")
		}
	}

	r.config.Logger.WithFields(logrus.Fields{
		"dataset_version": dataset.Version,
		"rows":            count,
	}).Info("Golden set synced into local cache")

	return count, nil
}

// LastSource returns which subsystem answered the most recent verify call.
// Empty until the first call completes.
func (r *Resolver) LastSource() models.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSource
}

// CacheCount returns the number of entries in the local cache.
func (r *Resolver) CacheCount(ctx context.Context) (int, error) {
	return r.config.Store.Count(ctx)
}

// LastSync returns the most recent sync record, if one exists.
func (r *Resolver) LastSync() (syncstate.Record, bool) {
	if r.config.SyncState == nil {
		return syncstate.Record{}, false
	}
	record, found, err := r.config.SyncState.Last()
	if err != nil {
		r.config.Logger.WithError(err).Warn("Failed to read sync state")
		return syncstate.Record{}, false
	}
	return record, found
}

func (r *Resolver) setLastSource(source models.Source) {
	r.mu.Lock()
	r.lastSource = source
	r.mu.Unlock()
}

func (r *Resolver) notifyRevoked(result models.BatchResult) {
	if result.Revoked == 0 || r.config.Notifier == nil {
		return
	}

	var revoked []string
	for _, entry := range result.Entries {
		if entry.Status != models.StatusRevoked {
			continue
		}
		label := entry.Hash
		if entry.Plugin != nil && entry.Plugin.Name != "" {
			label = fmt.Sprintf("%s (%s)", entry.Plugin.Name, entry.Hash)
		}
		revoked = append(revoked, label)
	}

	message := fmt.Sprintf("Scan flagged %d revoked plugin file(s):\n%s",
		result.Revoked, joinLines(revoked))
	r.config.Notifier.Send("Revoked plugin detected", message)
}

func pluginRecord(cached *cache.CachedPlugin) *models.PluginRecord {
	return &models.PluginRecord{
		Name:     cached.Name,
		NexusID:  cached.NexusID,
		Filename: cached.Filename,
	}
}
