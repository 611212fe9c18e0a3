// Package syncstate records when the local cache was last rebuilt from the
// golden set, so the status surface can report fallback freshness without
// querying the cache itself.
package syncstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

var (
	syncBucket  = []byte("SyncState")
	lastSyncKey = []byte("last")
)

// Record describes one completed cache sync.
type Record struct {
	SyncedAt       time.Time `json:"synced_at"`
	DatasetVersion string    `json:"dataset_version"`
	Rows           int       `json:"rows"`
}

// Store persists sync metadata in a bbolt file.
type Store struct {
	db     *bbolt.DB
	logger *logrus.Logger
}

// Open initializes the sync state store at the given path.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open sync state database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(syncBucket)
		if err != nil {
			return fmt.Errorf("create SyncState bucket: %v", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put records the latest completed sync, replacing any previous record.
func (s *Store) Put(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal sync record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(syncBucket)
		return bucket.Put(lastSyncKey, data)
	})
}

// Last returns the most recent sync record. The second return value is false
// when no sync has been recorded yet.
func (s *Store) Last() (Record, bool, error) {
	var record Record
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(syncBucket)
		data := bucket.Get(lastSyncKey)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.WithError(err).Warn("Last: failed to unmarshal sync record")
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, err
	}

	return record, found, nil
}
