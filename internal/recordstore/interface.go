package recordstore

import (
	"context"

	"scanvault/internal/models"
)

// RecordStore is the scan persistence surface used by the vault.
type RecordStore interface {
	Save(ctx context.Context, rec models.ScanRecord) error
	List(ctx context.Context) ([]models.ScanRecord, error)
	Get(ctx context.Context, id string) (models.ScanRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	Reclaim(ctx context.Context, required int64) (int64, error)
	Usage(ctx context.Context) int64
	Remaining(ctx context.Context) int64
	Root() string
	Ceiling() int64
}

var _ RecordStore = (*Store)(nil)
