package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const MaxImageBytes = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrEmpty           = errors.New("empty image")
)

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore hosts listing photos and returns a public URL for each upload.
type ImageStore interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

type GCSImageStore struct {
	client *gcs.Client
	bucket string
	newID  func() string
}

func NewGCSImageStore(client *gcs.Client, bucket string) *GCSImageStore {
	return &GCSImageStore{client: client, bucket: bucket, newID: uuid.NewString}
}

// DetectImageType sniffs data and rejects anything that is not an accepted image.
func DetectImageType(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", ErrEmpty
	}
	if len(data) > MaxImageBytes {
		return "", "", ErrTooLarge
	}
	contentType = http.DetectContentType(data)
	ext, ok := imageExt[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return contentType, ext, nil
}

func (s *GCSImageStore) objectPath(ext string) string {
	return "listings/" + s.newID() + ext
}

// Upload writes the object with a firebase download token so the returned URL
// is readable without signing.
func (s *GCSImageStore) Upload(ctx context.Context, data []byte) (string, error) {
	contentType, ext, err := DetectImageType(data)
	if err != nil {
		return "", err
	}
	path := s.objectPath(ext)
	token := s.newID()
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return DownloadURL(s.bucket, path, token), nil
}

func DownloadURL(bucket, objectPath, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(objectPath), token)
}
