// Package vault is the caller-facing API over the image and scan stores.
// Store errors stop here: every method logs the failure and returns an
// absent, false or empty result instead.
package vault

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"

	"scanvault/internal/activity"
	"scanvault/internal/blobstore"
	"scanvault/internal/config"
	"scanvault/internal/journal"
	"scanvault/internal/metrics"
	"scanvault/internal/models"
	"scanvault/internal/recordstore"
	"scanvault/internal/storeerr"
)

// Vault composes one BlobStore and one RecordStore.
type Vault struct {
	images  blobstore.BlobStore
	scans   recordstore.RecordStore
	logger  *slog.Logger
	journal *journal.Journal
	metrics *metrics.Registry
}

// New wraps already opened stores.
func New(images blobstore.BlobStore, scans recordstore.RecordStore, logger *slog.Logger) *Vault {
	return &Vault{images: images, scans: scans, logger: logger}
}

// Open builds both stores under cfg.AppDir and wires the journal and the
// metrics registry as activity observers. A journal that cannot be opened is
// logged and skipped; the stores work without it.
func Open(cfg *config.Config, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := metrics.NewRegistry()
	observers := []activity.Observer{registry}

	j, err := journal.Open(cfg.ResolvedJournalPath())
	if err != nil {
		logger.Warn("journal unavailable", "path", cfg.ResolvedJournalPath(), "error", err)
		j = nil
	} else {
		j.SetLogger(logger.With("component", "journal"))
		observers = append(observers, j)
	}
	observer := activity.Multi(observers...)

	images, err := blobstore.Open(filepath.Join(cfg.AppDir, blobstore.DirName), blobstore.Options{
		Ceiling:  cfg.Images.CeilingBytes,
		Policy:   cfg.ImagesPolicy(),
		Logger:   StoreLogger(logger, activity.StoreImages),
		Observer: observer,
	})
	if err != nil {
		_ = j.Close()
		return nil, err
	}
	scans, err := recordstore.Open(filepath.Join(cfg.AppDir, recordstore.DirName), recordstore.Options{
		Ceiling:  cfg.Scans.CeilingBytes,
		Policy:   cfg.ScansPolicy(),
		Logger:   StoreLogger(logger, activity.StoreScans),
		Observer: observer,
	})
	if err != nil {
		_ = j.Close()
		return nil, err
	}

	v := New(images, scans, logger)
	v.journal = j
	v.metrics = registry
	return v, nil
}

// StoreLogger tags logger with the store it reports for.
func StoreLogger(logger *slog.Logger, store string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("store", store)
}

// Close releases the journal and shuts down the metrics provider.
func (v *Vault) Close() error {
	return errors.Join(v.journal.Close(), v.metrics.Shutdown(context.Background()))
}

// Journal returns the activity journal, or nil when none is open.
func (v *Vault) Journal() *journal.Journal {
	return v.journal
}

// Metrics returns the activity counter registry, or nil for vaults built
// with New.
func (v *Vault) Metrics() *metrics.Registry {
	return v.metrics
}

// ImagesRoot returns the image directory.
func (v *Vault) ImagesRoot() string {
	return v.images.Root()
}

// ScansRoot returns the scan directory.
func (v *Vault) ScansRoot() string {
	return v.scans.Root()
}

// ImageCeiling returns the image store ceiling in bytes.
func (v *Vault) ImageCeiling() int64 {
	return v.images.Ceiling()
}

// ScanCeiling returns the scan store ceiling in bytes.
func (v *Vault) ScanCeiling() int64 {
	return v.scans.Ceiling()
}

// SaveImage copies sourcePath into the image store and returns the stored
// blob, or nil when the save was refused or failed.
func (v *Vault) SaveImage(ctx context.Context, sourcePath string, sizeBytes int64) *models.StoredBlob {
	blob, err := v.images.Save(ctx, sourcePath, sizeBytes)
	if err != nil {
		v.fail("save image", err, "source", sourcePath, "size_bytes", sizeBytes)
		return nil
	}
	return &blob
}

// ListImages returns stored images, newest first.
func (v *Vault) ListImages(ctx context.Context) []models.StoredBlob {
	blobs, err := v.images.List(ctx)
	if err != nil {
		v.fail("list images", err)
		return []models.StoredBlob{}
	}
	return blobs
}

// DeleteImage reports whether a file was actually removed.
func (v *Vault) DeleteImage(ctx context.Context, ref string) bool {
	removed, err := v.images.Delete(ctx, ref)
	if err != nil {
		v.fail("delete image", err, "ref", ref)
		return false
	}
	return removed
}

// ImageUsage returns bytes used by the image store.
func (v *Vault) ImageUsage(ctx context.Context) int64 {
	return v.images.Usage(ctx)
}

// ImageRemaining returns ceiling minus usage for the image store. It may be
// negative.
func (v *Vault) ImageRemaining(ctx context.Context) int64 {
	return v.images.Remaining(ctx)
}

// ReclaimImages evicts the oldest images until required bytes are freed.
func (v *Vault) ReclaimImages(ctx context.Context, required int64) int64 {
	freed, err := v.images.Reclaim(ctx, required)
	if err != nil {
		v.fail("reclaim images", err, "required", required)
	}
	return freed
}

// SaveScan stores rec, evicting older scans if the store policy allows it.
// It reports whether the record was persisted.
func (v *Vault) SaveScan(ctx context.Context, rec models.ScanRecord) bool {
	if err := v.scans.Save(ctx, rec); err != nil {
		v.fail("save scan", err, "id", rec.ID)
		return false
	}
	return true
}

// ListScans returns scans in stored order. A missing or unreadable
// collection yields an empty list.
func (v *Vault) ListScans(ctx context.Context) []models.ScanRecord {
	records, err := v.scans.List(ctx)
	if err != nil {
		v.fail("list scans", err)
		return []models.ScanRecord{}
	}
	return records
}

// ListScansNewestFirst returns scans ordered by timestamp, newest first.
func (v *Vault) ListScansNewestFirst(ctx context.Context) []models.ScanRecord {
	records := v.ListScans(ctx)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records
}

// GetScan returns the scan with id, or nil.
func (v *Vault) GetScan(ctx context.Context, id string) *models.ScanRecord {
	rec, err := v.scans.Get(ctx, id)
	if err != nil {
		v.fail("get scan", err, "id", id)
		return nil
	}
	return &rec
}

// DeleteScan removes the scan with id. It reports success whether or not
// the id was present and fails only when the store could not be read or
// written.
func (v *Vault) DeleteScan(ctx context.Context, id string) bool {
	if _, err := v.scans.Delete(ctx, id); err != nil {
		v.fail("delete scan", err, "id", id)
		return false
	}
	return true
}

// ScanUsage returns bytes used by the scan store.
func (v *Vault) ScanUsage(ctx context.Context) int64 {
	return v.scans.Usage(ctx)
}

// ScanRemaining returns ceiling minus usage for the scan store. It may be
// negative.
func (v *Vault) ScanRemaining(ctx context.Context) int64 {
	return v.scans.Remaining(ctx)
}

// ReclaimScans evicts the oldest scans until required bytes are freed and
// returns the number of bytes actually freed.
func (v *Vault) ReclaimScans(ctx context.Context, required int64) int64 {
	freed, err := v.scans.Reclaim(ctx, required)
	if err != nil {
		v.fail("reclaim scans", err, "required", required)
	}
	return freed
}

func (v *Vault) fail(op string, err error, attrs ...any) {
	kind := storeerr.KindOf(err)
	level := slog.LevelWarn
	switch kind {
	case storeerr.KindIOFailure, storeerr.KindParseFailure:
		level = slog.LevelError
	case "":
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelError
		}
		kind = "unknown"
	}
	args := append([]any{"op", op, "kind", string(kind), "error", err}, attrs...)
	v.log().Log(context.Background(), level, "store operation failed", args...)
}

func (v *Vault) log() *slog.Logger {
	if v.logger != nil {
		return v.logger
	}
	return slog.Default()
}
