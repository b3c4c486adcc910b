package firestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
)

type fieldPath struct {
	index []int
	path  string
}

// fieldUpdates converts a JSON-keyed patch into typed Firestore updates. Values are bound through
// T so numbers, enums and nested structs are stored with the same types as full documents. A nil
// value deletes the field.
func fieldUpdates[T any](patch map[string]any) ([]firestore.Update, error) {
	if len(patch) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("firestore: encode patch: %w", err)
	}
	var typed T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&typed); err != nil {
		return nil, fmt.Errorf("firestore: invalid patch: %w", err)
	}

	fields := jsonFieldPaths(reflect.TypeOf(typed))
	value := reflect.ValueOf(typed)

	keys := make([]string, 0, len(patch))
	for key := range patch {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(keys))
	for _, key := range keys {
		field, ok := fields[key]
		if !ok {
			continue
		}
		if patch[key] == nil {
			updates = append(updates, firestore.Update{Path: field.path, Value: firestore.Delete})
			continue
		}
		updates = append(updates, firestore.Update{Path: field.path, Value: value.FieldByIndex(field.index).Interface()})
	}
	return updates, nil
}

// jsonFieldPaths maps JSON field names of a struct type to their Firestore field paths. Fields
// excluded from Firestore (tag "-") are omitted so identifiers are never written as data.
func jsonFieldPaths(t reflect.Type) map[string]fieldPath {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := make(map[string]fieldPath)
	if t.Kind() != reflect.Struct {
		return out
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		jsonName := tagName(f.Tag.Get("json"), f.Name)
		storeName := tagName(f.Tag.Get("firestore"), f.Name)
		if jsonName == "-" || storeName == "-" {
			continue
		}
		out[jsonName] = fieldPath{index: f.Index, path: storeName}
	}
	return out
}

func tagName(tag, fallback string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return fallback
	}
	return name
}
