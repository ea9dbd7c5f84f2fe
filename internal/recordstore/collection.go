package recordstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"scanvault/internal/models"
	"scanvault/internal/storeerr"
)

const tmpPattern = "scans-*.tmp"

// recordSize is the number of bytes a record adds to the encoded collection:
// its compact JSON encoding plus one separator byte. A collection of n > 0
// records therefore encodes to 1 + the sum of its record sizes.
func recordSize(rec models.ScanRecord) (int64, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	return int64(len(data)) + 1, nil
}

// insertCost is what adding rec costs on disk given the current record count.
// The first record also pays for the enclosing brackets.
func insertCost(size int64, existing int) int64 {
	if existing == 0 {
		return size + 1
	}
	return size
}

func (s *Store) collectionPath() string {
	return filepath.Join(s.dir.Root, FileName)
}

// loadLocked reads the whole collection. A missing or empty file is an empty
// collection.
func (s *Store) loadLocked() ([]models.ScanRecord, error) {
	path := s.collectionPath()
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.ScanRecord{}, nil
		}
		return nil, storeerr.IOFailure("scan load", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.ScanRecord{}, nil
	}

	var records []models.ScanRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, storeerr.ParseFailure("scan load", path, err)
	}
	if records == nil {
		records = []models.ScanRecord{}
	}
	return records, nil
}

// writeLocked replaces the collection file with records. The new content is
// written to a temp file in the same directory and renamed over the old one,
// so readers see either the old or the new collection. An empty collection
// removes the file.
func (s *Store) writeLocked(records []models.ScanRecord) error {
	path := s.collectionPath()
	if len(records) == 0 {
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return storeerr.IOFailure("scan write", path, err)
		}
		return nil
	}

	data, err := json.Marshal(records)
	if err != nil {
		return storeerr.Invalid("scan write", err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir.Root, tmpPattern)
	if err != nil {
		return storeerr.IOFailure("scan write", s.dir.Root, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return storeerr.IOFailure("scan write", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return storeerr.IOFailure("scan write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return storeerr.IOFailure("scan write", tmpPath, err)
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return storeerr.IOFailure("scan write", path, err)
	}
	return nil
}

func (s *Store) collectionFileSize() int64 {
	info, err := s.fs.Stat(s.collectionPath())
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}

func (s *Store) removeStaleTemps() {
	matches, err := afero.Glob(s.fs, filepath.Join(s.dir.Root, tmpPattern))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := s.fs.Remove(path); err != nil {
			s.log().Warn("remove stale scan temp failed", "path", path, "error", err)
			continue
		}
		s.log().Info("removed stale scan temp", "path", path)
	}
}
