package memory

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"memo-web/internal/remote"
	appErrors "memo-web/pkg/errors"
)

// Storage is object storage shared by all clients of a backend.
type Storage struct {
	backend *Backend
}

var _ remote.ObjectStore = (*Storage)(nil)

// Upload stores body at bucket/path. Without Upsert an existing object is
// an error.
func (s *Storage) Upload(ctx context.Context, bucket, path string, body io.Reader, opts remote.UploadOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return appErrors.NewStorage("Failed to read upload", err)
	}

	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, "Upload", bucket); err != nil {
		return err
	}
	key := bucket + "/" + path
	if _, exists := b.objects[key]; exists && !opts.Upsert {
		return appErrors.NewStorage("The resource already exists", nil)
	}
	b.objects[key] = object{data: data, contentType: opts.ContentType, cacheMaxAge: opts.CacheControl}
	return nil
}

// PublicURL returns the public download URL of bucket/path.
func (s *Storage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.backend.publicURL, url.PathEscape(bucket), path)
}

// Remove deletes the objects at paths. Missing objects are ignored.
func (s *Storage) Remove(ctx context.Context, bucket string, paths []string) error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(ctx, "Remove", bucket); err != nil {
		return err
	}
	for _, p := range paths {
		delete(b.objects, bucket+"/"+p)
	}
	return nil
}
