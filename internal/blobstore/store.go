// Package blobstore keeps captured images as individual files under a
// capacity ceiling.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"scanvault/internal/activity"
	"scanvault/internal/capacity"
	"scanvault/internal/models"
	"scanvault/internal/storeerr"
)

const (
	// DirName is the image directory under the application directory.
	DirName = "captured_images"

	namePrefix = "IMG_"
	nameExt    = ".jpg"
	tmpDirName = ".tmp"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Options configures a Store. Zero values select the OS filesystem, the
// default ceiling, the reject policy and slog.Default().
type Options struct {
	Fs       afero.Fs
	Ceiling  int64
	Policy   capacity.Policy
	Logger   *slog.Logger
	Observer activity.Observer
	Now      func() time.Time
}

// Store persists immutable image files in one directory.
// All operations are serialized by mu so the capacity check and the write
// that depends on it happen as one step.
type Store struct {
	mu       sync.Mutex
	fs       afero.Fs
	dir      capacity.Directory
	policy   capacity.Policy
	tracker  *capacity.Tracker
	logger   *slog.Logger
	observer activity.Observer
	now      func() time.Time

	lastStamp int64
}

// Open creates the store directory if needed and removes temp files left by
// interrupted saves.
func Open(root string, opts Options) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("image store root is required")
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
		policy = capacity.PolicyReject
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

	if ok, _ := afero.DirExists(fsys, s.tmpDir()); !ok {
		if err := fsys.MkdirAll(s.tmpDir(), 0o755); err != nil {
			return nil, storeerr.IOFailure("image open", root, err)
		}
	}
	s.removeStaleTemps()
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.dir.Root
}

// Ceiling returns the byte ceiling of the store directory.
func (s *Store) Ceiling() int64 {
	return s.dir.Ceiling
}

// Save copies sourcePath into the store under a new IMG_<ms>.jpg name.
// sizeBytes is the caller's size estimate; values <= 0 use the source size.
// When the copy would cross the ceiling the store either rejects it or, with
// PolicyEvictOldest, removes the oldest images first.
func (s *Store) Save(ctx context.Context, sourcePath string, sizeBytes int64) (models.StoredBlob, error) {
	const op = "image save"
	var zero models.StoredBlob
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return zero, storeerr.Invalid(op, fmt.Errorf("source path is required"))
	}
	info, err := s.fs.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return zero, storeerr.NotFound(op, sourcePath, err)
		}
		return zero, storeerr.IOFailure(op, sourcePath, err)
	}
	if !info.Mode().IsRegular() {
		return zero, storeerr.Invalid(op, fmt.Errorf("source %s is not a regular file", sourcePath))
	}
	if sizeBytes <= 0 {
		sizeBytes = info.Size()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	usage, err := s.admitLocked(ctx, op, sourcePath, sizeBytes)
	if err != nil {
		return zero, err
	}

	name, stamp := s.nextNameLocked()
	blob, err := s.copyInLocked(ctx, op, sourcePath, name, time.UnixMilli(stamp).UTC(), usage)
	if err != nil {
		return zero, err
	}

	activity.Emit(ctx, s.observer, activity.Event{
		Store:   activity.StoreImages,
		Op:      activity.OpSave,
		Subject: blob.Name,
		Bytes:   blob.SizeBytes,
	})
	s.log().Debug("image saved", "name", blob.Name, "bytes", blob.SizeBytes, "usage", usage+blob.SizeBytes)
	return blob, nil
}

// admitLocked returns the usage the new file will be added to, evicting first
// when the policy allows it.
func (s *Store) admitLocked(ctx context.Context, op, subject string, need int64) (int64, error) {
	usage := s.dir.Usage(s.tracker)
	if s.dir.Fits(usage, need) {
		return usage, nil
	}

	if s.policy == capacity.PolicyEvictOldest && need <= s.dir.Ceiling {
		overflow := usage + need - s.dir.Ceiling
		if _, err := s.reclaimLocked(ctx, overflow); err != nil {
			return 0, err
		}
		usage = s.dir.Usage(s.tracker)
		if s.dir.Fits(usage, need) {
			return usage, nil
		}
	}

	s.reject(ctx, subject, need)
	return 0, storeerr.CapacityExceeded(op, usage, need, s.dir.Ceiling)
}

func (s *Store) copyInLocked(ctx context.Context, op, sourcePath, name string, modTime time.Time, usage int64) (models.StoredBlob, error) {
	var zero models.StoredBlob

	src, err := s.fs.Open(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return zero, storeerr.NotFound(op, sourcePath, err)
		}
		return zero, storeerr.IOFailure(op, sourcePath, err)
	}
	defer src.Close()

	tmp, err := afero.TempFile(s.fs, s.tmpDir(), "put-*")
	if err != nil {
		return zero, storeerr.IOFailure(op, s.tmpDir(), err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		cleanup()
		return zero, storeerr.IOFailure(op, tmpPath, err)
	}
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if err != nil {
		cleanup()
		return zero, storeerr.IOFailure(op, sourcePath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return zero, storeerr.IOFailure(op, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, storeerr.IOFailure(op, tmpPath, err)
	}

	// The declared size may have understated the source.
	if !s.dir.Fits(usage, n) {
		_ = s.fs.Remove(tmpPath)
		s.reject(ctx, sourcePath, n)
		return zero, storeerr.CapacityExceeded(op, usage, n, s.dir.Ceiling)
	}

	dst := filepath.Join(s.dir.Root, name)
	if err := s.fs.Rename(tmpPath, dst); err != nil {
		_ = s.fs.Remove(tmpPath)
		return zero, storeerr.IOFailure(op, dst, err)
	}

	if err := s.fs.Chtimes(dst, modTime, modTime); err != nil {
		s.log().Warn("set image mod time failed", "path", dst, "error", err)
	}

	return models.StoredBlob{
		Name:      name,
		Path:      dst,
		SizeBytes: n,
		ModTime:   modTime,
		MediaType: s.sniff(dst),
		Checksum:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// List returns stored images, newest first. Files without a known image
// extension are skipped.
func (s *Store) List(ctx context.Context) ([]models.StoredBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, err := s.listLocked()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(blobs, func(i, j int) bool {
		if !blobs[i].ModTime.Equal(blobs[j].ModTime) {
			return blobs[i].ModTime.After(blobs[j].ModTime)
		}
		return blobs[i].Name > blobs[j].Name
	})
	for i := range blobs {
		blobs[i].MediaType = s.sniff(blobs[i].Path)
	}
	return blobs, nil
}

func (s *Store) listLocked() ([]models.StoredBlob, error) {
	entries, err := afero.ReadDir(s.fs, s.dir.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.StoredBlob{}, nil
		}
		return nil, storeerr.IOFailure("image list", s.dir.Root, err)
	}

	blobs := make([]models.StoredBlob, 0, len(entries))
	for _, entry := range entries {
		if !entry.Mode().IsRegular() || !isImageName(entry.Name()) {
			continue
		}
		blobs = append(blobs, models.StoredBlob{
			Name:      entry.Name(),
			Path:      filepath.Join(s.dir.Root, entry.Name()),
			SizeBytes: entry.Size(),
			ModTime:   entry.ModTime(),
		})
	}
	return blobs, nil
}

// Delete removes the image at ref, given as a path inside the store or a bare
// file name. It reports whether a file was actually removed; a missing file
// is not an error.
func (s *Store) Delete(ctx context.Context, ref string) (bool, error) {
	const op = "image delete"
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return false, storeerr.Invalid(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, size, err := s.removeLocked(path)
	if err != nil {
		return false, storeerr.IOFailure(op, path, err)
	}
	if removed {
		activity.Emit(ctx, s.observer, activity.Event{
			Store:   activity.StoreImages,
			Op:      activity.OpDelete,
			Subject: filepath.Base(path),
			Bytes:   size,
		})
	}
	return removed, nil
}

func (s *Store) removeLocked(path string) (bool, int64, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if info.IsDir() {
		return false, 0, fmt.Errorf("%s is a directory", path)
	}
	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, info.Size(), nil
}

// Usage returns the bytes currently occupied by the store directory.
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

func (s *Store) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("image path is required")
	}
	path := filepath.Clean(ref)
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir.Root, path)
	}
	rel, err := filepath.Rel(s.dir.Root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the image store", ref)
	}
	return path, nil
}

// nextNameLocked returns IMG_<ms>.jpg with a stamp strictly greater than any
// previously issued one and not taken on disk.
func (s *Store) nextNameLocked() (string, int64) {
	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	for {
		name := fmt.Sprintf("%s%d%s", namePrefix, stamp, nameExt)
		exists, err := afero.Exists(s.fs, filepath.Join(s.dir.Root, name))
		if err != nil || !exists {
			s.lastStamp = stamp
			return name, stamp
		}
		stamp++
	}
}

func (s *Store) sniff(path string) string {
	f, err := s.fs.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return ""
	}
	return mt.String()
}

func (s *Store) reject(ctx context.Context, subject string, need int64) {
	activity.Emit(ctx, s.observer, activity.Event{
		Store:   activity.StoreImages,
		Op:      activity.OpReject,
		Subject: filepath.Base(subject),
		Bytes:   need,
		Kind:    string(storeerr.KindCapacityExceeded),
	})
}

func (s *Store) tmpDir() string {
	return filepath.Join(s.dir.Root, tmpDirName)
}

func (s *Store) removeStaleTemps() {
	entries, err := afero.ReadDir(s.fs, s.tmpDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		path := filepath.Join(s.tmpDir(), entry.Name())
		if err := s.fs.RemoveAll(path); err != nil {
			s.log().Warn("remove stale image temp failed", "path", path, "error", err)
			continue
		}
		s.log().Info("removed stale image temp", "path", path)
	}
}

func (s *Store) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func isImageName(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
