package kvstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// DefaultBucket holds every collection value.
const DefaultBucket = "collections"

const defaultOpenTimeout = time.Second

// BoltStore persists values in a single bbolt bucket.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// BoltOption customises BoltStore construction.
type BoltOption func(*boltOptions)

type boltOptions struct {
	bucket  string
	timeout time.Duration
}

// WithBucket overrides the bucket used for values.
func WithBucket(name string) BoltOption {
	return func(o *boltOptions) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			o.bucket = trimmed
		}
	}
}

// WithOpenTimeout bounds how long Open waits for the file lock.
func WithOpenTimeout(timeout time.Duration) BoltOption {
	return func(o *boltOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// OpenBolt opens (creating when necessary) the database file at path.
func OpenBolt(path string, opts ...BoltOption) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("kvstore: database path is required")
	}
	options := boltOptions{bucket: DefaultBucket, timeout: defaultOpenTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("kvstore: create data dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: options.timeout})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}

	bucket := []byte(options.bucket)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kvstore: create bucket: %w", err)
	}

	return &BoltStore{db: db, bucket: bucket}, nil
}

func (s *BoltStore) Get(key string) ([]byte, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}
	var (
		value []byte
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		// bbolt memory is only valid inside the transaction.
		value = cloneBytes(raw)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, wrapBoltError("get", err)
	}
	return value, found, nil
}

func (s *BoltStore) Put(key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
	return wrapBoltError("put", err)
}

func (s *BoltStore) Delete(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	return wrapBoltError("delete", err)
}

func (s *BoltStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(s.bucket).Cursor()
		p := []byte(prefix)
		for k, _ := cursor.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = cursor.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, wrapBoltError("keys", err)
	}
	return keys, nil
}

// Ping verifies the database is still usable.
func (s *BoltStore) Ping() error {
	return wrapBoltError("ping", s.db.View(func(*bbolt.Tx) error { return nil }))
}

// Path returns the database file location.
func (s *BoltStore) Path() string {
	return s.db.Path()
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func wrapBoltError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return fmt.Errorf("kvstore: %s: %w", op, err)
}
