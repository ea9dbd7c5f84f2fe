package recordstore

import (
	"context"
	"sort"

	"scanvault/internal/activity"
	"scanvault/internal/models"
	"scanvault/internal/storeerr"
)

// Reclaim evicts the oldest records until at least required bytes of
// encoded collection are freed, and returns the amount freed. It evicts
// nothing beyond that point.
func (s *Store) Reclaim(ctx context.Context, required int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return 0, err
	}
	_, freed, err := s.reclaimLocked(ctx, records, required, -1)
	return freed, err
}

// reclaimLocked persists the survivors of selectEvictions. protect is the
// index of a record that must not be evicted, or -1.
func (s *Store) reclaimLocked(ctx context.Context, records []models.ScanRecord, required int64, protect int) ([]models.ScanRecord, int64, error) {
	survivors, evicted, freed, err := selectEvictions(records, required, protect)
	if err != nil {
		return records, 0, storeerr.Invalid("scan reclaim", err)
	}
	if len(evicted) == 0 {
		return records, 0, nil
	}
	if err := s.writeLocked(survivors); err != nil {
		return records, 0, err
	}

	for _, ev := range evicted {
		activity.Emit(ctx, s.observer, activity.Event{
			Store:   activity.StoreScans,
			Op:      activity.OpEvict,
			Subject: ev.rec.ID,
			Bytes:   ev.size,
		})
		s.log().Info("scan evicted", "id", ev.rec.ID, "timestamp", ev.rec.Timestamp, "bytes", ev.size)
	}
	s.log().Info("scan reclaim finished", "required", required, "freed", freed, "evicted", len(evicted), "remaining", len(survivors))
	return survivors, freed, nil
}

type evictedRecord struct {
	rec  models.ScanRecord
	size int64
}

// selectEvictions picks records oldest-first by timestamp (ties keep storage
// order) until the freed size reaches required. Survivors keep their storage
// order.
func selectEvictions(records []models.ScanRecord, required int64, protect int) ([]models.ScanRecord, []evictedRecord, int64, error) {
	if required <= 0 || len(records) == 0 {
		return records, nil, 0, nil
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return records[order[a]].Timestamp.Before(records[order[b]].Timestamp)
	})

	remove := make(map[int]struct{})
	var evicted []evictedRecord
	var freed int64
	for _, idx := range order {
		if freed >= required {
			break
		}
		if idx == protect {
			continue
		}
		size, err := recordSize(records[idx])
		if err != nil {
			return records, nil, 0, err
		}
		remove[idx] = struct{}{}
		evicted = append(evicted, evictedRecord{rec: records[idx], size: size})
		freed += size
	}

	survivors := make([]models.ScanRecord, 0, len(records)-len(remove))
	for i, rec := range records {
		if _, ok := remove[i]; ok {
			continue
		}
		survivors = append(survivors, rec)
	}
	return survivors, evicted, freed, nil
}
