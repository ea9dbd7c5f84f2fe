package blobstore

import (
	"context"
	"path/filepath"
	"sort"

	"scanvault/internal/activity"
	"scanvault/internal/storeerr"
)

// Reclaim removes the oldest images until at least required bytes are freed
// or no images remain. It returns the bytes actually freed.
func (s *Store) Reclaim(ctx context.Context, required int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reclaimLocked(ctx, required)
}

func (s *Store) reclaimLocked(ctx context.Context, required int64) (int64, error) {
	if required <= 0 {
		return 0, nil
	}
	blobs, err := s.listLocked()
	if err != nil {
		return 0, err
	}
	sort.SliceStable(blobs, func(i, j int) bool {
		if !blobs[i].ModTime.Equal(blobs[j].ModTime) {
			return blobs[i].ModTime.Before(blobs[j].ModTime)
		}
		return blobs[i].Name < blobs[j].Name
	})

	var freed int64
	for _, blob := range blobs {
		if freed >= required {
			break
		}
		removed, size, err := s.removeLocked(blob.Path)
		if err != nil {
			return freed, storeerr.IOFailure("image reclaim", blob.Path, err)
		}
		if !removed {
			continue
		}
		freed += size
		activity.Emit(ctx, s.observer, activity.Event{
			Store:   activity.StoreImages,
			Op:      activity.OpEvict,
			Subject: filepath.Base(blob.Path),
			Bytes:   size,
		})
		s.log().Info("image evicted", "name", blob.Name, "bytes", size, "freed", freed, "required", required)
	}
	return freed, nil
}
