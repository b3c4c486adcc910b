package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
)

const (
	defaultMaxBytes = 5 << 20
	localPathPrefix = "local/"
)

var (
	// ErrNotImage is returned when the payload is not an image.
	ErrNotImage = errors.New("storage: file must be an image")
	// ErrTooLarge is returned when the payload exceeds the configured limit.
	ErrTooLarge = errors.New("storage: image exceeds maximum size")
	// ErrEmpty is returned for zero-length uploads.
	ErrEmpty = errors.New("storage: image is empty")
)

// Image is an uploaded file held in memory.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult locates a stored image.
type UploadResult struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	Inline bool   `json:"inline"`
}

// ObjectStore writes and removes objects in a bucket.
type ObjectStore interface {
	Put(ctx context.Context, bucket, object, contentType string, data []byte) error
	Remove(ctx context.Context, bucket, object string) error
}

// ImageStore validates and stores images. Without a bucket it returns the image inline as a data URL.
type ImageStore struct {
	objects  ObjectStore
	bucket   string
	prefix   string
	maxBytes int64
	now      func() time.Time
	logger   *zap.Logger
}

// ImageStoreOption customises ImageStore.
type ImageStoreOption func(*ImageStore)

// WithObjectStore enables remote storage in bucket.
func WithObjectStore(objects ObjectStore, bucket string) ImageStoreOption {
	return func(s *ImageStore) {
		s.objects = objects
		s.bucket = strings.TrimSpace(bucket)
	}
}

// WithPrefix nests every object under prefix.
func WithPrefix(prefix string) ImageStoreOption {
	return func(s *ImageStore) { s.prefix = prefix }
}

// WithMaxBytes overrides the 5 MiB size limit.
func WithMaxBytes(limit int64) ImageStoreOption {
	return func(s *ImageStore) {
		if limit > 0 {
			s.maxBytes = limit
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ImageStoreOption {
	return func(s *ImageStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ImageStoreOption {
	return func(s *ImageStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewImageStore constructs an ImageStore.
func NewImageStore(opts ...ImageStoreOption) *ImageStore {
	s := &ImageStore{
		maxBytes: defaultMaxBytes,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Remote reports whether uploads go to a bucket.
func (s *ImageStore) Remote() bool {
	return s.objects != nil && s.bucket != ""
}

// MaxBytes returns the size limit.
func (s *ImageStore) MaxBytes() int64 { return s.maxBytes }

// Upload validates img and stores it under folder.
func (s *ImageStore) Upload(ctx context.Context, folder Folder, img Image) (UploadResult, error) {
	contentType, err := s.validate(img)
	if err != nil {
		return UploadResult{}, err
	}

	if !s.Remote() {
		name, err := sanitizeFileName(img.Name)
		if err != nil {
			return UploadResult{}, err
		}
		return UploadResult{
			URL:    "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
			Path:   localPathPrefix + string(folder) + "/" + name,
			Inline: true,
		}, nil
	}

	object, err := ObjectPath(s.prefix, folder, img.Name, s.now())
	if err != nil {
		return UploadResult{}, err
	}
	if err := s.objects.Put(ctx, s.bucket, object, contentType, img.Data); err != nil {
		s.logger.Error("storage: upload failed", zap.String("object", object), zap.Error(err))
		return UploadResult{}, fmt.Errorf("storage: upload %s: %w", object, err)
	}
	return UploadResult{URL: PublicURL(s.bucket, object), Path: object}, nil
}

// Delete removes a previously uploaded object. Inline images have nothing to delete.
func (s *ImageStore) Delete(ctx context.Context, objectPath string) error {
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" {
		return errors.New("storage: path is required")
	}
	if !s.Remote() || strings.HasPrefix(objectPath, localPathPrefix) {
		return nil
	}
	if err := s.objects.Remove(ctx, s.bucket, objectPath); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage: delete %s: %w", objectPath, err)
	}
	return nil
}

func (s *ImageStore) validate(img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(img.Data)) > s.maxBytes {
		return "", ErrTooLarge
	}
	declared := strings.ToLower(strings.TrimSpace(img.ContentType))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if !strings.HasPrefix(declared, "image/") || !strings.HasPrefix(http.DetectContentType(img.Data), "image/") {
		return "", ErrNotImage
	}
	return declared, nil
}

// PublicURL returns the download URL of an object in a publicly readable bucket.
func PublicURL(bucket, object string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + (&url.URL{Path: object}).EscapedPath()
}

// GCSObjects implements ObjectStore with a Cloud Storage client.
type GCSObjects struct {
	client *gcs.Client
}

// NewGCSObjects wraps client.
func NewGCSObjects(client *gcs.Client) (*GCSObjects, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return &GCSObjects{client: client}, nil
}

// Put writes data to bucket/object.
func (g *GCSObjects) Put(ctx context.Context, bucket, object, contentType string, data []byte) error {
	w := g.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Remove deletes bucket/object.
func (g *GCSObjects) Remove(ctx context.Context, bucket, object string) error {
	return g.client.Bucket(bucket).Object(object).Delete(ctx)
}
