package blobstore

import (
	"context"

	"scanvault/internal/models"
)

// BlobStore is the image persistence surface used by the vault.
type BlobStore interface {
	Save(ctx context.Context, sourcePath string, sizeBytes int64) (models.StoredBlob, error)
	List(ctx context.Context) ([]models.StoredBlob, error)
	Delete(ctx context.Context, ref string) (bool, error)
	Reclaim(ctx context.Context, required int64) (int64, error)
	Usage(ctx context.Context) int64
	Remaining(ctx context.Context) int64
	Root() string
	Ceiling() int64
}

var _ BlobStore = (*Store)(nil)
