package goldenset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/modsentinel/sentinel/internal/cache"
	"github.com/modsentinel/sentinel/internal/models"
)

// Dataset is the canonical on-disk golden set layout.
type Dataset struct {
	Version string   `json:"version"`
	Plugins []Plugin `json:"plugins"`
}

// Plugin groups the known file hashes of one curated plugin.
type Plugin struct {
	Name    string      `json:"name"`
	NexusID int         `json:"nexusId"`
	Files   []FileEntry `json:"files"`
}

// FileEntry is one known file of a plugin. Filename and Status are optional
// during incremental curation; SizeBytes is informational only.
type FileEntry struct {
	Filename  string `json:"filename"`
	SHA256    string `json:"sha256"`
	Status    string `json:"status"`
	SizeBytes int64  `json:"size_bytes"`
}

// ErrDatasetNotFound is returned when the golden set file does not exist.
// Callers decide whether absence is fatal; an empty fallback cache is a
// meaningful operational condition.
var ErrDatasetNotFound = errors.New("golden set dataset not found")

// ParseError reports a dataset file that exists but cannot be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse golden set %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads and decodes the golden set dataset at path.
func Load(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, fmt.Errorf("failed to open golden set: %w", err)
	}
	defer file.Close()

	var dataset Dataset
	if err := json.NewDecoder(file).Decode(&dataset); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return &dataset, nil
}

// Flatten converts a dataset into cache upsert records. File entries without
// a hash are skipped; partial datasets are common during curation. Status
// defaults to "verified" when absent.
func Flatten(dataset *Dataset) []cache.UpsertRecord {
	var records []cache.UpsertRecord
	for _, plugin := range dataset.Plugins {
		for _, entry := range plugin.Files {
			if entry.SHA256 == "" {
				continue
			}
			status := models.VerificationStatus(entry.Status)
			if entry.Status == "" {
				status = models.StatusVerified
			}
			records = append(records, cache.UpsertRecord{
				SHA256:   models.NormalizeHash(entry.SHA256),
				Name:     plugin.Name,
				NexusID:  plugin.NexusID,
				Filename: entry.Filename,
				Status:   status,
			})
		}
	}
	return records
}
