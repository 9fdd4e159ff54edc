package supabase

import (
	"context"
	"io"

	"memo-web/internal/remote"
	appErrors "memo-web/pkg/errors"

	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"
)

// Storage reads and writes objects with the client's current token.
type Storage struct {
	conn    *conn
	breaker *Breaker
}

var _ remote.ObjectStore = (*Storage)(nil)

// Upload writes body to bucket/path.
func (s *Storage) Upload(ctx context.Context, bucket, path string, body io.Reader, opts remote.UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return appErrors.NewUnexpected(err)
	}
	fileOpts := storage_go.FileOptions{Upsert: &opts.Upsert}
	if opts.CacheControl != "" {
		fileOpts.CacheControl = &opts.CacheControl
	}
	if opts.ContentType != "" {
		fileOpts.ContentType = &opts.ContentType
	}

	return s.breaker.Do(func() error {
		return s.conn.do(func(sb *supa.Client) error {
			defer s.conn.resetStorageLocked()
			_, err := sb.Storage.UploadFile(bucket, path, body, fileOpts)
			return mapStorageError(err)
		})
	})
}

// PublicURL returns the download URL of a public object. It makes no
// request.
func (s *Storage) PublicURL(bucket, path string) string {
	var url string
	_ = s.conn.do(func(sb *supa.Client) error {
		url = sb.Storage.GetPublicUrl(bucket, path).SignedURL
		return nil
	})
	return url
}

// Remove deletes the objects at paths.
func (s *Storage) Remove(ctx context.Context, bucket string, paths []string) error {
	if err := ctx.Err(); err != nil {
		return appErrors.NewUnexpected(err)
	}
	return s.breaker.Do(func() error {
		return s.conn.do(func(sb *supa.Client) error {
			_, err := sb.Storage.RemoveFile(bucket, paths)
			return mapStorageError(err)
		})
	})
}
