package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"greennets/backend/internal/xid"
)

var ErrUnsupportedType = errors.New("unsupported image type")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// BlobStore keeps product images. Object names are store-relative; URL is
// what clients fetch.
type BlobStore interface {
	Put(ctx context.Context, prefix string, contentType string, r io.Reader) (object string, url string, err error)
	Delete(ctx context.Context, object string) error
}

// ObjectName builds a fresh object path for an upload.
func ObjectName(prefix string, contentType string) (string, error) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return path.Join(strings.Trim(prefix, "/"), xid.New("img")+ext), nil
}

type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSStore uses Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{
		client:  client,
		bucket:  bucket,
		baseURL: "https://storage.googleapis.com/" + bucket,
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Put(ctx context.Context, prefix string, contentType string, r io.Reader) (string, string, error) {
	object, err := ObjectName(prefix, contentType)
	if err != nil {
		return "", "", err
	}

	w := s.client.Bucket(s.bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", "", fmt.Errorf("upload %s: %w", object, err)
	}
	return object, s.baseURL + "/" + object, nil
}

func (s *GCSStore) Delete(ctx context.Context, object string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return nil
	}
	err := s.client.Bucket(s.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", object, err)
	}
	return nil
}
