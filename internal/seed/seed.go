// Package seed holds the default datasets written on first mount of each collection.
package seed

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/xtruel/roma-map-revamp/internal/domain"
)

//go:embed data/*.yaml
var files embed.FS

// Matches returns the default fixture list.
func Matches() ([]domain.Match, error) {
	return load[domain.Match]("matches.yaml")
}

// Packages returns the default package catalogue.
func Packages() ([]domain.PackageItem, error) {
	return load[domain.PackageItem]("packages.yaml")
}

// Articles returns the default articles.
func Articles() ([]domain.Article, error) {
	return load[domain.Article]("articles.yaml")
}

// Places returns the default map places.
func Places() ([]domain.Place, error) {
	return load[domain.Place]("places.yaml")
}

// load decodes a YAML list and re-encodes it through JSON so records bind with the same field
// names and strictness they are persisted with.
func load[T any](name string) ([]T, error) {
	raw, err := files.ReadFile("data/" + name)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", name, err)
	}
	var generic []map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", name, err)
	}
	data, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("seed: encode %s: %w", name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out []T
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("seed: decode %s: %w", name, err)
	}
	return out, nil
}
