package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSettings = []byte("settings")

// BoltStore implements KV on a bbolt file. Writes are transactional, so a
// crash mid-write cannot corrupt previously committed settings.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the settings database in dataDir. Callers that
// get an error back should fall back to NewMemory so the client keeps
// working without persistence.
func OpenBolt(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, "settings.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening settings store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating settings bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) read(key string) ([]byte, bool) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSettings).Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		slog.Debug("settings read failed", "key", key, "error", err)
		return nil, false
	}
	return out, out != nil
}

func (s *BoltStore) write(key string, val []byte) bool {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), val)
	})
	if err != nil {
		slog.Debug("settings write failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *BoltStore) Get(key string, out any) bool {
	data, ok := s.read(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Debug("settings value corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (s *BoltStore) Set(key string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Debug("settings value not serializable", "key", key, "error", err)
		return false
	}
	return s.write(key, data)
}

func (s *BoltStore) GetRaw(key, def string) string {
	data, ok := s.read(key)
	if !ok {
		return def
	}
	return string(data)
}

func (s *BoltStore) SetRaw(key, val string) bool {
	return s.write(key, []byte(val))
}

func (s *BoltStore) Remove(key string) bool {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete([]byte(key))
	})
	if err != nil {
		slog.Debug("settings delete failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *BoltStore) Has(key string) bool {
	_, ok := s.read(key)
	return ok
}
