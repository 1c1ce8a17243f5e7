// Package storage stages uploaded supplier files in an S3-compatible bucket
// before the Orchestrator reads them from local disk, per SPEC_FULL.md's
// "Object storage staging" supplement. ObjectInfo/ObjectStorage are carried
// over from the teacher's internal/storage interface shape; the
// implementation is rebuilt on minio-go/v7 directly, replacing the
// teacher's chartmuseum/storage indirection (see DESIGN.md).
package storage

import "context"

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations the pipeline needs.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte) error
}
