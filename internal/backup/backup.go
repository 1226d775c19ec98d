// Package backup pushes export archives to remote object storage.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/klauspost/compress/gzip"

	"planstore/internal/apperr"
	"planstore/internal/model"
	"planstore/internal/storage"
)

// Uploader gzip-compresses an archive on the fly and stores it under prefix.
type Uploader struct {
	store  storage.Storage
	prefix string
	expiry time.Duration
	now    func() time.Time
}

// NewUploader returns an Uploader writing to store. Download links are valid
// for expiry.
func NewUploader(store storage.Storage, prefix string, expiry time.Duration) *Uploader {
	return &Uploader{store: store, prefix: prefix, expiry: expiry, now: time.Now}
}

// Upload streams the tar file at archivePath to the object store as
// "<prefix>/<archiveName>.gz". Failures of the remote end are reported as
// apperr.ErrUpstreamUnavailable.
func (u *Uploader) Upload(ctx context.Context, archivePath, archiveName string) (*model.BackupResult, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	pr, pw := io.Pipe()
	// Unblocks the compressor if the store returns without draining pr.
	defer pr.Close()
	go func() {
		defer f.Close()
		gw := gzip.NewWriter(pw)
		_, err := io.Copy(gw, f)
		if err == nil {
			err = gw.Close()
		}
		pw.CloseWithError(err)
	}()

	key := path.Join(u.prefix, archiveName+".gz")
	info, err := u.store.Put(ctx, key, pr, storage.PutObjectOptions{
		Size:        -1,
		ContentType: "application/gzip",
		Metadata:    map[string]string{"archive-name": archiveName},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upload backup: %v", apperr.ErrUpstreamUnavailable, err)
	}

	link, err := u.store.PresignGet(ctx, key, u.expiry)
	if err != nil {
		return nil, fmt.Errorf("%w: presign backup: %v", apperr.ErrUpstreamUnavailable, err)
	}

	return &model.BackupResult{
		Key:         info.Key,
		Size:        info.Size,
		DownloadURL: link,
		CreatedAt:   u.now().UTC(),
	}, nil
}
