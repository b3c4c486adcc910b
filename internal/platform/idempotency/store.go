package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
)

const (
	// DefaultTTL is the default duration that idempotency records are retained.
	DefaultTTL = 24 * time.Hour
	// KeyPrefix namespaces idempotency records inside the shared key-value store.
	KeyPrefix = "idem:"
)

// Status represents the lifecycle state of an idempotency record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of attempting to reserve an idempotency key.
type ReservationState int

const (
	// ReservationStateNew means the caller may continue processing.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a previous response should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request is processing this key.
	ReservationStatePending
)

// Reservation is the result of reserving a key.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted state of an idempotency key.
type Record struct {
	Fingerprint     string              `json:"fingerprint"`
	Status          Status              `json:"status"`
	ResponseStatus  int                 `json:"responseStatus,omitempty"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty"`
	ResponseBody    []byte              `json:"responseBody,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

// Response is the HTTP response stored for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// Store persists reservations and responses in a kvstore.Store. Reservation is atomic within one
// process, which matches the single-writer local cache it shares.
type Store struct {
	kv kvstore.Store
	mu sync.Mutex
}

// NewStore wraps kv.
func NewStore(kv kvstore.Store) (*Store, error) {
	if kv == nil {
		return nil, errors.New("idempotency: key-value store is required")
	}
	return &Store{kv: kv}, nil
}

// Reserve records a pending reservation unless a live record already exists for key.
func (s *Store) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok, err := s.get(key)
	if err != nil {
		return Reservation{}, err
	}
	if ok && now.Before(record.ExpiresAt) {
		if record.Fingerprint != fingerprint {
			return Reservation{}, ErrFingerprintMismatch
		}
		if record.Status == StatusCompleted {
			return Reservation{State: ReservationStateCompleted, Record: record}, nil
		}
		return Reservation{State: ReservationStatePending, Record: record}, nil
	}

	record = Record{
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now.UTC(),
		ExpiresAt:   now.Add(ttl).UTC(),
	}
	if err := s.put(key, record); err != nil {
		return Reservation{}, err
	}
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

// SaveResponse completes the reservation for key.
func (s *Store) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok, err := s.get(key)
	if err != nil {
		return err
	}
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = Record{Fingerprint: fingerprint, CreatedAt: now.UTC()}
	}
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = sanitizeHeaders(resp.Headers)
	record.ResponseBody = append([]byte(nil), resp.Body...)
	record.ExpiresAt = now.Add(ttl).UTC()
	return s.put(key, record)
}

// Release deletes the reservation so that later attempts may retry.
func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(storageKey(key))
}

// CleanupExpired removes up to limit expired records; zero means no limit.
func (s *Store) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.Keys(KeyPrefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if limit > 0 && removed >= limit {
			break
		}
		raw, ok, err := s.kv.Get(k)
		if err != nil || !ok {
			continue
		}
		var record Record
		if err := json.Unmarshal(raw, &record); err == nil && now.Before(record.ExpiresAt) {
			continue
		}
		if err := s.kv.Delete(k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *Store) get(key string) (Record, bool, error) {
	raw, ok, err := s.kv.Get(storageKey(key))
	if err != nil || !ok {
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		// Unreadable records are treated as absent and overwritten.
		return Record{}, false, nil
	}
	return record, true, nil
}

func (s *Store) put(key string, record Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	return s.kv.Put(storageKey(key), raw)
}

func storageKey(key string) string {
	return KeyPrefix + sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sanitizeHeaders(header http.Header) map[string][]string {
	filtered := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch strings.ToLower(canonical) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "x-cloud-trace-context", "traceparent":
			continue
		}
		filtered[canonical] = append([]string(nil), values...)
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
