package collections

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeStatus classifies a stored collection value.
type DecodeStatus string

const (
	// StatusOK means a current-version envelope whose records all validated.
	StatusOK DecodeStatus = "ok"
	// StatusAbsent means nothing is stored under the key.
	StatusAbsent DecodeStatus = "absent"
	// StatusUnreadable means the underlying store failed; the value may still be intact.
	StatusUnreadable DecodeStatus = "unreadable"
	// StatusCorrupt means the value is not JSON or not a recognised shape.
	StatusCorrupt DecodeStatus = "corrupt"
	// StatusInvalid means the value parsed but at least one record failed validation.
	StatusInvalid DecodeStatus = "invalid"
	// StatusLegacy means a bare array written before envelopes were versioned.
	StatusLegacy DecodeStatus = "legacy"
	// StatusVersionMismatch means an envelope written for another version.
	StatusVersionMismatch DecodeStatus = "version_mismatch"
)

// DecodeResult is the outcome of reading a stored collection.
type DecodeResult[T any] struct {
	Status DecodeStatus
	// Version is the stored envelope version, zero for legacy or unparseable values.
	Version int
	// Items is populated for StatusOK and StatusLegacy only.
	Items []T
	Err   error
}

// Usable reports whether Items can be served as the collection contents.
func (r DecodeResult[T]) Usable() bool {
	return r.Status == StatusOK || r.Status == StatusLegacy
}

type envelope struct {
	Version int             `json:"version"`
	Items   json.RawMessage `json:"items"`
}

type typedEnvelope[T any] struct {
	Version int `json:"version"`
	Items   []T `json:"items"`
}

func encodeEnvelope[T any](version int, items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(typedEnvelope[T]{Version: version, Items: items})
	if err != nil {
		return nil, fmt.Errorf("collections: encode envelope: %w", err)
	}
	return data, nil
}

// decodeValue classifies raw against schema. Unknown record fields fail closed for current-version
// envelopes; legacy arrays are decoded leniently and then validated.
func decodeValue[T any](raw []byte, schema Schema[T]) DecodeResult[T] {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return DecodeResult[T]{Status: StatusCorrupt, Err: fmt.Errorf("collections: empty value")}
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return DecodeResult[T]{Status: StatusCorrupt, Err: err}
		}
		if err := schema.validateAll(items); err != nil {
			return DecodeResult[T]{Status: StatusInvalid, Err: err}
		}
		return DecodeResult[T]{Status: StatusLegacy, Items: nonNil(items)}
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return DecodeResult[T]{Status: StatusCorrupt, Err: err}
		}
		if env.Version <= 0 {
			return DecodeResult[T]{Status: StatusCorrupt, Err: fmt.Errorf("collections: envelope version missing")}
		}
		if env.Version != schema.Version {
			return DecodeResult[T]{
				Status:  StatusVersionMismatch,
				Version: env.Version,
				Err:     fmt.Errorf("collections: stored version %d, want %d", env.Version, schema.Version),
			}
		}
		items, err := decodeStrict[[]T](env.Items)
		if err != nil {
			return DecodeResult[T]{Status: StatusCorrupt, Version: env.Version, Err: err}
		}
		if err := schema.validateAll(items); err != nil {
			return DecodeResult[T]{Status: StatusInvalid, Version: env.Version, Err: err}
		}
		return DecodeResult[T]{Status: StatusOK, Version: env.Version, Items: nonNil(items)}
	default:
		return DecodeResult[T]{Status: StatusCorrupt, Err: fmt.Errorf("collections: unexpected value shape")}
	}
}

func decodeStrict[V any](raw json.RawMessage) (V, error) {
	var out V
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
