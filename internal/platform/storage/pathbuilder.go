package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Folder groups uploaded images by the collection that references them.
type Folder string

const (
	FolderImages   Folder = "images"
	FolderArticles Folder = "articles"
	FolderPackages Folder = "packages"
	FolderPlaces   Folder = "places"
	FolderMatches  Folder = "matches"
)

var knownFolders = map[Folder]struct{}{
	FolderImages:   {},
	FolderArticles: {},
	FolderPackages: {},
	FolderPlaces:   {},
	FolderMatches:  {},
}

// ParseFolder maps a request value onto a known folder; empty input selects FolderImages.
func ParseFolder(value string) (Folder, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return FolderImages, nil
	}
	folder := Folder(value)
	if _, ok := knownFolders[folder]; !ok {
		return "", fmt.Errorf("storage: unsupported folder %q", value)
	}
	return folder, nil
}

// ObjectPath returns "<prefix>/<folder>/<unix millis>_<sanitised name>".
func ObjectPath(prefix string, folder Folder, fileName string, now time.Time) (string, error) {
	name, err := sanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	object := fmt.Sprintf("%s/%d_%s", folder, now.UnixMilli(), name)
	if prefix = strings.Trim(strings.TrimSpace(prefix), "/"); prefix != "" {
		object = path.Join(prefix, object)
	}
	return object, nil
}

// sanitizeFileName keeps ASCII letters, digits and dots; everything else becomes an underscore.
func sanitizeFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: file name is required")
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("storage: file name contains invalid traversal sequence")
	}
	return name, nil
}
