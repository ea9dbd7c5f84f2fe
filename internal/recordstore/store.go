// Package recordstore keeps scan records as one JSON collection file under a
// capacity ceiling, evicting the oldest records to make room when allowed.
package recordstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"scanvault/internal/activity"
	"scanvault/internal/capacity"
	"scanvault/internal/models"
	"scanvault/internal/storeerr"
)

const (
	// DirName is the record directory under the application directory.
	DirName = "scan_data"
	// FileName is the collection file inside DirName.
	FileName = "scans.json"
)

// Options configures a Store. Zero values select the OS filesystem, the
// default ceiling, the evict-oldest policy and slog.Default().
type Options struct {
	Fs       afero.Fs
	Ceiling  int64
	Policy   capacity.Policy
	Logger   *slog.Logger
	Observer activity.Observer
	Now      func() time.Time
}

// Store persists the scan collection. Every operation loads the full
// collection and mutations rewrite it in full, all under mu.
type Store struct {
	mu       sync.Mutex
	fs       afero.Fs
	dir      capacity.Directory
	policy   capacity.Policy
	tracker  *capacity.Tracker
	logger   *slog.Logger
	observer activity.Observer
	now      func() time.Time
}

// Open creates the record directory if needed and removes temp files left by
// interrupted rewrites.
func Open(root string, opts Options) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("record store root is required")
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		root = abs
	}
	root = filepath.Clean(root)

	ceiling := opts.Ceiling
	if ceiling <= 0 {
		ceiling = capacity.DefaultCeiling
	}
	policy := opts.Policy
	if policy == "" {
		policy = capacity.PolicyEvictOldest
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		fs:       fsys,
		dir:      capacity.Directory{Root: root, Ceiling: ceiling},
		policy:   policy,
		tracker:  capacity.NewTracker(fsys, opts.Logger),
		logger:   opts.Logger,
		observer: opts.Observer,
		now:      now,
	}
	if ok, _ := afero.DirExists(fsys, root); !ok {
		if err := fsys.MkdirAll(root, 0o755); err != nil {
			return nil, storeerr.IOFailure("scan open", root, err)
		}
	}
	s.removeStaleTemps()
	return s, nil
}

// Root returns the record directory.
func (s *Store) Root() string {
	return s.dir.Root
}

// Ceiling returns the byte ceiling of the record directory.
func (s *Store) Ceiling() int64 {
	return s.dir.Ceiling
}

// Path returns the collection file path.
func (s *Store) Path() string {
	return s.collectionPath()
}

// Save appends rec to the collection and rewrites it. When the insert would
// cross the ceiling and the policy allows it, the oldest records are evicted
// first; if there is still no room the record is discarded.
//
// An unreadable collection is treated as empty and overwritten by the save.
func (s *Store) Save(ctx context.Context, rec models.ScanRecord) error {
	const op = "scan save"
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Normalize(s.now())
	if err := rec.Validate(); err != nil {
		return storeerr.Invalid(op, err)
	}
	size, err := recordSize(rec)
	if err != nil {
		return storeerr.Invalid(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replacing := false
	records, err := s.loadLocked()
	if err != nil {
		if storeerr.KindOf(err) != storeerr.KindParseFailure {
			return err
		}
		s.log().Error("scan collection unreadable, saving over it", "path", s.collectionPath(), "kind", storeerr.KindParseFailure, "error", err)
		records = []models.ScanRecord{}
		replacing = true
	}
	for _, existing := range records {
		if existing.ID == rec.ID {
			return storeerr.Conflict(op, fmt.Errorf("scan %s already exists", rec.ID))
		}
	}

	need := insertCost(size, len(records))
	usage := s.dir.Usage(s.tracker)
	if replacing {
		// The unreadable file is overwritten, so its bytes are not kept.
		usage -= s.collectionFileSize()
	}
	if !s.dir.Fits(usage, need) && s.policy == capacity.PolicyEvictOldest && len(records) > 0 {
		records, usage, err = s.makeRoomLocked(ctx, records, rec, size, usage)
		if err != nil {
			return err
		}
		need = insertCost(size, len(records))
	}
	if !s.dir.Fits(usage, need) {
		s.reject(ctx, rec.ID, need)
		return storeerr.CapacityExceeded(op, usage, need, s.dir.Ceiling)
	}

	records = append(records, rec)
	if err := s.writeLocked(records); err != nil {
		return err
	}

	activity.Emit(ctx, s.observer, activity.Event{
		Store:   activity.StoreScans,
		Op:      activity.OpSave,
		Subject: rec.ID,
		Bytes:   size,
	})
	s.log().Debug("scan saved", "id", rec.ID, "bytes", size, "records", len(records))
	return nil
}

// makeRoomLocked evicts for an insert of the given size and returns the
// surviving records and the fresh usage. It evicts nothing when the record
// could not fit even in an empty collection.
func (s *Store) makeRoomLocked(ctx context.Context, records []models.ScanRecord, rec models.ScanRecord, size, usage int64) ([]models.ScanRecord, int64, error) {
	base := usage - s.collectionFileSize()
	if !s.dir.Fits(base, insertCost(size, 0)) {
		return records, usage, nil
	}

	protect := -1
	if n := len(records); n > 0 {
		newest := records[n-1]
		newestSize, err := recordSize(newest)
		if err != nil {
			return records, usage, storeerr.Invalid("scan save", err)
		}
		if rec.Timestamp.Before(newest.Timestamp) || size < newestSize {
			protect = n - 1
		}
	}

	survivors, _, err := s.reclaimLocked(ctx, records, size, protect)
	if err != nil {
		return records, usage, err
	}
	return survivors, s.dir.Usage(s.tracker), nil
}

// List returns every record in stored (insertion) order.
func (s *Store) List(ctx context.Context) ([]models.ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id string) (models.ScanRecord, error) {
	var zero models.ScanRecord
	records, err := s.List(ctx)
	if err != nil {
		return zero, err
	}
	id = strings.TrimSpace(id)
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return zero, storeerr.NotFound("scan get", id, nil)
}

// Delete removes the record with id and reports whether one matched. The
// collection is only rewritten when something was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	const op = "scan delete"
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, storeerr.Invalid(op, fmt.Errorf("scan id is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return false, err
	}

	kept := make([]models.ScanRecord, 0, len(records))
	var removed *models.ScanRecord
	for i := range records {
		if removed == nil && records[i].ID == id {
			removed = &records[i]
			continue
		}
		kept = append(kept, records[i])
	}
	if removed == nil {
		return false, nil
	}
	if err := s.writeLocked(kept); err != nil {
		return false, err
	}

	size, _ := recordSize(*removed)
	activity.Emit(ctx, s.observer, activity.Event{
		Store:   activity.StoreScans,
		Op:      activity.OpDelete,
		Subject: id,
		Bytes:   size,
	})
	return true, nil
}

// Usage returns the bytes currently occupied by the record directory.
func (s *Store) Usage(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.Usage(s.tracker)
}

// Remaining returns Ceiling minus Usage. It is not clamped at zero.
func (s *Store) Remaining(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.Remaining(s.tracker)
}

func (s *Store) reject(ctx context.Context, id string, need int64) {
	activity.Emit(ctx, s.observer, activity.Event{
		Store:   activity.StoreScans,
		Op:      activity.OpReject,
		Subject: id,
		Bytes:   need,
		Kind:    string(storeerr.KindCapacityExceeded),
	})
}

func (s *Store) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
