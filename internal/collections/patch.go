package collections

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Patch holds top-level field overrides keyed by the record's JSON field names.
type Patch = map[string]any

// ErrInvalidPatch is returned when a patch cannot be applied to a record.
var ErrInvalidPatch = errors.New("collections: invalid patch")

const idField = "id"

// ApplyPatch overlays patch onto record. The "id" field is never changed and unknown fields are
// rejected.
func ApplyPatch[T any](record T, patch Patch) (T, error) {
	if len(patch) == 0 {
		return record, nil
	}
	base, err := json.Marshal(record)
	if err != nil {
		return record, fmt.Errorf("%w: encode record: %v", ErrInvalidPatch, err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return record, fmt.Errorf("%w: record is not an object: %v", ErrInvalidPatch, err)
	}
	for key, value := range patch {
		if key == idField {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return record, fmt.Errorf("%w: field %q: %v", ErrInvalidPatch, key, err)
		}
		fields[key] = raw
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return record, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	out, err := decodeStrict[T](merged)
	if err != nil {
		return record, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return out, nil
}

// PatchFromRecord converts a full record into a patch carrying every field except "id".
func PatchFromRecord[T any](record T) (Patch, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	patch := Patch{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, err
	}
	delete(patch, idField)
	return patch, nil
}
