package blob

import (
	"context"

	"organcore/internal/infra/blob/fs"
	memorystore "organcore/internal/infra/blob/memory"
	infraS3 "organcore/internal/infra/blob/s3"
)

// NewFilesystem constructs a filesystem-backed Store rooted at the provided
// path.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// S3Config configures the S3-backed store.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// OpenS3FromEnv constructs an S3-backed Store from the process environment.
func OpenS3FromEnv(ctx context.Context) (Store, error) {
	return infraS3.OpenFromEnv(ctx)
}
