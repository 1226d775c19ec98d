// Package storage holds the remote object storage used for off-site copies
// of export archives. Implementations stream; nothing is staged on local disk.
package storage

import (
	"context"
	"io"
	"time"
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known, or -1 when the object is
// produced on the fly (the backend then uploads in parts).
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is an S3-compatible object store.
type Storage interface {
	// Put uploads an object under key from r.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
