package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/modsentinel/sentinel/internal/models"
)

// SQLite has a limit on bound parameters per statement, so batch reads are
// split into chunks of this size. Chunking is not observable in results.
const batchChunkSize = 500

// SQLiteStore represents the SQLite implementation of the Store interface.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore initializes a new SQLiteStore at the given path.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}

	// SQLite3 doesn't support multiple writers well.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Initialize(context.TODO()); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

// Initialize creates the necessary tables and indexes.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS hashes (
        sha256 TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        nexus_id INTEGER NOT NULL,
        filename TEXT,
        status TEXT DEFAULT 'verified',
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_hashes_status ON hashes(status);
    `
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Get retrieves a single cached record by its hash.
func (s *SQLiteStore) Get(ctx context.Context, hash string) (CachedPlugin, error) {
	var plugin CachedPlugin
	var filename sql.NullString
	var status string

	query := `
		SELECT name, nexus_id, filename, status
		FROM hashes
		WHERE sha256 = ?;
	`

	err := s.db.QueryRowContext(ctx, query, models.NormalizeHash(hash)).Scan(
		&plugin.Name,
		&plugin.NexusID,
		&filename,
		&status,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return plugin, ErrHashNotFound
		}
		s.logger.WithError(err).Errorf("Get: failed to retrieve hash %s", hash)
		return plugin, err
	}

	if filename.Valid {
		plugin.Filename = filename.String
	}
	plugin.Status = models.VerificationStatus(status)

	return plugin, nil
}

// GetBatch retrieves records for multiple hashes, chunking the IN clause to
// stay under SQLite's bound-parameter limit.
func (s *SQLiteStore) GetBatch(ctx context.Context, hashes []string) (map[string]*CachedPlugin, error) {
	normalized := models.NormalizeHashes(hashes)
	results := make(map[string]*CachedPlugin, len(normalized))

	for start := 0; start < len(normalized); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(normalized) {
			end = len(normalized)
		}
		chunk := normalized[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := fmt.Sprintf(`
			SELECT sha256, name, nexus_id, filename, status
			FROM hashes
			WHERE sha256 IN (%s);
		`, placeholders)

		args := make([]interface{}, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			s.logger.WithError(err).Error("GetBatch: failed to execute query")
			return nil, err
		}

		for rows.Next() {
			var sha256, name, status string
			var nexusID int
			var filename sql.NullString

			if err := rows.Scan(&sha256, &name, &nexusID, &filename, &status); err != nil {
				rows.Close()
				s.logger.WithError(err).Error("GetBatch: failed to scan row")
				return nil, err
			}

			plugin := &CachedPlugin{
				Name:    name,
				NexusID: nexusID,
				Status:  models.VerificationStatus(status),
			}
			if filename.Valid {
				plugin.Filename = filename.String
			}
			results[sha256] = plugin
		}

		if err := rows.Err(); err != nil {
			rows.Close()
			s.logger.WithError(err).Error("GetBatch: row iteration error")
			return nil, err
		}
		rows.Close()
	}

	// Every requested hash appears as a key, nil when absent.
	for _, h := range normalized {
		if _, ok := results[h]; !ok {
			results[h] = nil
		}
	}

	return results, nil
}

// UpsertBatch merges records into the cache in a single transaction so a
// concurrent reader never observes a half-written sync.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, records []UpsertRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO hashes (sha256, name, nexus_id, filename, status, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(sha256) DO UPDATE SET
            name=excluded.name,
            nexus_id=excluded.nexus_id,
            filename=excluded.filename,
            status=excluded.status,
            updated_at=excluded.updated_at;
    `
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	count := 0
	for _, record := range records {
		var filename interface{}
		if record.Filename != "" {
			filename = record.Filename
		}
		status := record.Status
		if status == "" {
			status = models.StatusVerified
		}

		_, err := stmt.ExecContext(ctx,
			models.NormalizeHash(record.SHA256),
			record.Name,
			record.NexusID,
			filename,
			string(status),
			now,
		)
		if err != nil {
			s.logger.WithError(err).Errorf("UpsertBatch: failed to upsert hash %s", record.SHA256)
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert batch: %w", err)
	}
	return count, nil
}

// Count retrieves the total number of cached hashes.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var total int
	query := `
        SELECT COUNT(*)
        FROM hashes;
    `
	err := s.db.QueryRowContext(ctx, query).Scan(&total)
	if err != nil {
		s.logger.WithError(err).Error("Count: failed to execute query")
		return 0, err
	}
	return total, nil
}

// Clear removes all entries from the cache.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	query := `
        DELETE FROM hashes;
    `
	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		s.logger.WithError(err).Error("Clear: failed to execute query")
		return err
	}
	return nil
}
