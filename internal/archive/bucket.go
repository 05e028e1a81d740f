package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver (also B2, R2, MinIO)
)

// Bucket is a prefixed view of a blob bucket.
type Bucket struct {
	bucket *blob.Bucket
	url    string
	prefix string
}

// OpenBucket opens a bucket URL such as file:///var/archive,
// s3://bucket?region=us-east-1 or gs://bucket.
func OpenBucket(ctx context.Context, bucketURL, prefix string) (*Bucket, error) {
	if bucketURL == "" {
		return nil, fmt.Errorf("bucket URL required")
	}

	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return NewBucket(b, bucketURL, prefix), nil
}

// NewBucket wraps an already opened bucket.
func NewBucket(b *blob.Bucket, bucketURL, prefix string) *Bucket {
	return &Bucket{bucket: b, url: bucketURL, prefix: prefix}
}

// Key returns the full object key for a name under the prefix.
func (b *Bucket) Key(name string) string {
	return b.prefix + name
}

// URI returns a display URI for a key.
func (b *Bucket) URI(key string) string {
	base, _, _ := strings.Cut(b.url, "?")
	return strings.TrimSuffix(base, "/") + "/" + key
}

// Exists reports whether key is already stored.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	return b.bucket.Exists(ctx, key)
}

// Put writes data to key with optional metadata.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string, md map[string]string) error {
	w, err := b.bucket.NewWriter(ctx, key, &blob.WriterOptions{
		ContentType: contentType,
		Metadata:    md,
	})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Get reads the whole object at key.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Metadata returns the user metadata stored with key.
func (b *Bucket) Metadata(ctx context.Context, key string) (map[string]string, error) {
	attrs, err := b.bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("attributes of %s: %w", key, err)
	}
	return attrs.Metadata, nil
}

// List returns all keys with the given prefix, relative to the bucket root.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := b.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Close releases the bucket connection.
func (b *Bucket) Close() error {
	if b.bucket != nil {
		return b.bucket.Close()
	}
	return nil
}
