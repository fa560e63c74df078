package store

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// BlobStore writes the output tree to any gocloud.dev bucket, so a harvest
// can land directly on S3 or GCS without changing the layout.
type BlobStore struct {
	bucket *blob.Bucket
	prefix string
}

// NewBlobStore opens the bucket at bucketURL. Credentials come from the
// environment the way the respective SDK resolves them.
func NewBlobStore(bucketURL, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(context.Background(), bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return &BlobStore{bucket: bucket, prefix: prefix}, nil
}

func (s *BlobStore) Write(ctx context.Context, key string, data []byte) error {
	if err := s.bucket.WriteAll(ctx, s.prefix+key, data, nil); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, s.prefix+key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *BlobStore) Stat(ctx context.Context, key string) (int64, error) {
	attrs, err := s.bucket.Attributes(ctx, s.prefix+key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", key, err)
	}
	return attrs.Size, nil
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, s.prefix+key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (s *BlobStore) Close() error { return s.bucket.Close() }
