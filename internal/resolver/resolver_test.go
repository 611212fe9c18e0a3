package resolver

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/modsentinel/sentinel/internal/cache"
	"github.com/modsentinel/sentinel/internal/models"
	"github.com/modsentinel/sentinel/internal/remote"
)

type stubClient struct {
	scanFunc  func(ctx context.Context, hashes []string) (models.BatchResult, error)
	healthy   bool
	scanCalls int
}

func (c *stubClient) HealthCheck(ctx context.Context) bool {
	return c.healthy
}

func (c *stubClient) Scan(ctx context.Context, hashes []string) (models.BatchResult, error) {
	c.scanCalls++
	return c.scanFunc(ctx, hashes)
}

// stubStore is an in-memory cache.Store that counts batch reads.
type stubStore struct {
	records       map[string]cache.CachedPlugin
	getBatchCalls int
	batchErr      error
}

func newStubStore() *stubStore {
	return &stubStore{records: make(map[string]cache.CachedPlugin)}
}

func (s *stubStore) Initialize(ctx context.Context) error { return nil }
func (s *stubStore) Close(ctx context.Context) error      { return nil }

func (s *stubStore) Get(ctx context.Context, hash string) (cache.CachedPlugin, error) {
	plugin, ok := s.records[models.NormalizeHash(hash)]
	if !ok {
		return cache.CachedPlugin{}, cache.ErrHashNotFound
	}
	return plugin, nil
}

func (s *stubStore) GetBatch(ctx context.Context, hashes []string) (map[string]*cache.CachedPlugin, error) {
	s.getBatchCalls++
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	results := make(map[string]*cache.CachedPlugin, len(hashes))
	for _, h := range models.NormalizeHashes(hashes) {
		if plugin, ok := s.records[h]; ok {
			p := plugin
			results[h] = &p
		} else {
			results[h] = nil
		}
	}
	return results, nil
}

func (s *stubStore) UpsertBatch(ctx context.Context, records []cache.UpsertRecord) (int, error) {
	for _, r := range records {
		s.records[models.NormalizeHash(r.SHA256)] = cache.CachedPlugin{
			Name:     r.Name,
			NexusID:  r.NexusID,
			Filename: r.Filename,
			Status:   r.Status,
		}
	}
	return len(records), nil
}

func (s *stubStore) Count(ctx context.Context) (int, error) { return len(s.records), nil }
func (s *stubStore) Clear(ctx context.Context) error {
	s.records = make(map[string]cache.CachedPlugin)
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func hashOf(c byte) string {
	return strings.Repeat(string(c), 64)
}

func failingClient(err error) *stubClient {
	return &stubClient{
		scanFunc: func(ctx context.Context, hashes []string) (models.BatchResult, error) {
			return models.BatchResult{}, err
		},
	}
}

func TestVerifyEmptyBatch(t *testing.T) {
	client := failingClient(&remote.TransportError{Err: errors.New("unused")})
	store := newStubStore()
	r := New(Config{Client: client, Store: store, Logger: testLogger()})

	_, err := r.Verify(context.Background(), nil)
	require.ErrorIs(t, err, models.ErrEmptyBatch)
	require.Zero(t, client.scanCalls, "empty input must not reach the remote client")
	require.Zero(t, store.getBatchCalls, "empty input must not reach the cache")
}

func TestVerifyRemoteSuccess(t *testing.T) {
	hash := hashOf('a')
	client := &stubClient{
		scanFunc: func(ctx context.Context, hashes []string) (models.BatchResult, error) {
			require.Equal(t, []string{hash}, hashes)
			return models.BatchResult{
				Scanned:  1,
				Verified: 1,
				Entries: []models.VerificationEntry{
					{Hash: hash, Status: models.StatusVerified, Source: models.SourceRemote},
				},
				Source: models.SourceRemote,
			}, nil
		},
	}
	store := newStubStore()
	r := New(Config{Client: client, Store: store, Logger: testLogger()})

	result, err := r.Verify(context.Background(), []string{hash})
	require.NoError(t, err)
	require.Equal(t, models.SourceRemote, result.Source)
	require.Zero(t, store.getBatchCalls, "remote success must not consult the cache")
	require.Equal(t, models.SourceRemote, r.LastSource())
}

func TestVerifyFallbackClassification(t *testing.T) {
	revoked := hashOf('b')
	verified := hashOf('c')
	absent := hashOf('d')

	store := newStubStore()
	_, err := store.UpsertBatch(context.Background(), []cache.UpsertRecord{
		{SHA256: revoked, Name: "Compromised Plugin", NexusID: 1, Status: models.StatusRevoked},
		{SHA256: verified, Name: "TrueHUD", NexusID: 62775, Status: models.StatusVerified},
	})
	require.NoError(t, err)

	for name, remoteErr := range map[string]error{
		"transport error": &remote.TransportError{Err: errors.New("connection refused")},
		"api error":       &remote.APIError{Message: "service melted", StatusCode: 500},
	} {
		t.Run(name, func(t *testing.T) {
			r := New(Config{Client: failingClient(remoteErr), Store: store, Logger: testLogger()})

			result, err := r.Verify(context.Background(), []string{revoked, verified, absent})
			require.NoError(t, err)

			require.Equal(t, models.SourceCached, result.Source)
			require.Equal(t, 3, result.Scanned)
			require.Equal(t, 1, result.Verified)
			require.Equal(t, 1, result.Unknown)
			require.Equal(t, 1, result.Revoked)
			require.Equal(t, result.Scanned, result.Verified+result.Unknown+result.Revoked)

			require.Len(t, result.Entries, 3)
			require.Equal(t, models.StatusRevoked, result.Entries[0].Status)
			require.NotNil(t, result.Entries[0].Plugin)
			require.Equal(t, "Compromised Plugin", result.Entries[0].Plugin.Name)
			require.Equal(t, models.StatusVerified, result.Entries[1].Status)
			require.Equal(t, models.StatusUnknown, result.Entries[2].Status)
			require.Nil(t, result.Entries[2].Plugin)

			for _, entry := range result.Entries {
				require.Equal(t, models.SourceCached, entry.Source)
			}
			require.Equal(t, models.SourceCached, r.LastSource())
		})
	}
}

func TestVerifyNormalization(t *testing.T) {
	store := newStubStore()
	_, err := store.UpsertBatch(context.Background(), []cache.UpsertRecord{
		{SHA256: hashOf('a'), Name: "MCM Helper", NexusID: 53000, Status: models.StatusVerified},
	})
	require.NoError(t, err)

	transportErr := &remote.TransportError{Err: errors.New("offline")}

	lower := New(Config{Client: failingClient(transportErr), Store: store, Logger: testLogger()})
	upper := New(Config{Client: failingClient(transportErr), Store: store, Logger: testLogger()})

	lowerResult, err := lower.Verify(context.Background(), []string{strings.Repeat("a", 64)})
	require.NoError(t, err)
	upperResult, err := upper.Verify(context.Background(), []string{strings.Repeat("A", 64)})
	require.NoError(t, err)

	require.Equal(t, lowerResult.Entries, upperResult.Entries)
}

func TestVerifyDuplicateHashes(t *testing.T) {
	hash := hashOf('e')
	store := newStubStore()
	r := New(Config{
		Client: failingClient(&remote.TransportError{Err: errors.New("offline")}),
		Store:  store,
		Logger: testLogger(),
	})

	result, err := r.Verify(context.Background(), []string{hash, hash})
	require.NoError(t, err)
	require.Equal(t, 2, result.Scanned, "each requested hash produces its own entry")
	require.Len(t, result.Entries, 2)
	require.Equal(t, 2, result.Unknown)
}

func TestVerifyCacheFailurePropagates(t *testing.T) {
	store := newStubStore()
	store.batchErr = errors.New("disk on fire")
	r := New(Config{
		Client: failingClient(&remote.TransportError{Err: errors.New("offline")}),
		Store:  store,
		Logger: testLogger(),
	})

	_, err := r.Verify(context.Background(), []string{hashOf('f')})
	require.Error(t, err)
	require.ErrorContains(t, err, "cache lookup failed")
}

func TestVerifyUnexpectedErrorPropagates(t *testing.T) {
	store := newStubStore()
	r := New(Config{
		Client: failingClient(errors.New("programming mistake")),
		Store:  store,
		Logger: testLogger(),
	})

	_, err := r.Verify(context.Background(), []string{hashOf('a')})
	require.Error(t, err)
	require.Zero(t, store.getBatchCalls, "only remote-side failures trigger fallback")
}

func TestIsOnline(t *testing.T) {
	client := &stubClient{healthy: true}
	r := New(Config{Client: client, Store: newStubStore(), Logger: testLogger()})
	require.True(t, r.IsOnline(context.Background()))

	client.healthy = false
	require.False(t, r.IsOnline(context.Background()))
}

// End-to-end against a real SQLite store: sync the golden set, knock the
// remote offline, verify through the cache.
func TestSyncAndOfflineVerify(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()
	dir := t.TempDir()

	datasetPath := filepath.Join(dir, "golden_set.json")
	dataset := `{
		"version": "2024.1",
		"plugins": [
			{
				"name": "Foo",
				"nexusId": 123,
				"files": [
					{"filename": "Foo.dll", "sha256": "` + strings.Repeat("a", 64) + `", "status": "verified", "size_bytes": 2048}
				]
			}
		]
	}`
	require.NoError(t, os.WriteFile(datasetPath, []byte(dataset), 0o644))

	store, err := cache.NewSQLiteStore(filepath.Join(dir, "cache.db"), logger)
	require.NoError(t, err)
	defer store.Close(ctx)

	r := New(Config{
		Client:        failingClient(&remote.TransportError{Err: errors.New("offline")}),
		Store:         store,
		Logger:        logger,
		GoldenSetPath: datasetPath,
	})

	// Syncing twice with an unchanged dataset must not create duplicates.
	for i := 0; i < 2; i++ {
		count, err := r.SyncCache(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		total, err := r.CacheCount(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, total)
	}

	result, err := r.Verify(ctx, []string{strings.Repeat("A", 64)})
	require.NoError(t, err)

	require.Equal(t, models.SourceCached, result.Source)
	require.Equal(t, 1, result.Scanned)
	require.Equal(t, 1, result.Verified)
	require.Equal(t, 0, result.Unknown)
	require.Equal(t, 0, result.Revoked)

	entry := result.Entries[0]
	require.Equal(t, strings.Repeat("a", 64), entry.Hash)
	require.Equal(t, models.StatusVerified, entry.Status)
	require.Equal(t, models.SourceCached, entry.Source)
	require.NotNil(t, entry.Plugin)
	require.Equal(t, "Foo", entry.Plugin.Name)
	require.Equal(t, 123, entry.Plugin.NexusID)
	require.Equal(t, "Foo.dll", entry.Plugin.Filename)
}
