// Package merge implements the reconciliation algorithm that folds one
// remote collection snapshot into the local store. Conflicts resolve by
// last write wins on the record's updatedAt timestamp; ties keep the
// local copy so repeated merges of the same snapshot are no-ops.
package merge

import (
	"log/slog"
	"time"

	"github.com/alexjbarnes/tracker-sync/internal/model"
)

// Table is the subset of the store a merge needs for one collection.
type Table[K model.ID, R model.Record[K]] interface {
	All() ([]R, error)
	Put(R) error
}

// Adapter binds a record type to its collection policy: how to derive
// the natural (business) key, how to rewrite the replica-assigned id,
// and how long tombstones are retained before permanent purge.
type Adapter[K model.ID, R model.Record[K]] struct {
	// Collection is the snapshot document key for this collection.
	Collection string

	// Retention is how long tombstones survive before the collector may
	// purge them.
	Retention time.Duration

	// Key derives the natural key two replicas would independently
	// compute for the same real-world fact. Empty means the record is
	// malformed and cannot be merged.
	Key func(R) string

	// WithID returns a copy of the record carrying the given id.
	WithID func(R, K) R

	// FreshID returns a copy of the record carrying a newly minted local
	// id. Used to resolve id collisions. For collections keyed directly
	// by date this is the identity: same id implies same natural key, so
	// the collision branch is unreachable.
	FreshID func(R) R
}

// Stats counts the outcome of merging one remote collection snapshot.
type Stats struct {
	Added      int
	Updated    int
	Skipped    int
	Collisions int
	Failed     int
}

// Add accumulates another collection's counts.
func (s *Stats) Add(o Stats) {
	s.Added += o.Added
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Collisions += o.Collisions
	s.Failed += o.Failed
}

// Total returns the number of remote records considered.
func (s Stats) Total() int {
	return s.Added + s.Updated + s.Skipped + s.Collisions + s.Failed
}

// Apply merges the remote records into the local table. Per remote
// record r:
//
//  1. A record with the same natural key wins or loses on updatedAt.
//     When r is strictly newer its fields overwrite the local record but
//     the local id is kept, so local cross-references stay valid. This
//     also propagates tombstones. Equal or older remote copies are
//     skipped without a write.
//  2. No key match but a local record already carries r's id for a
//     different fact: the id was independently reused by both replicas.
//     The local record is left untouched and r is inserted under a
//     freshly minted id.
//  3. Otherwise r is a new fact from the other replica and is inserted
//     as-is, preserving its id.
//
// A record missing from the remote snapshot is never treated as deleted;
// deletions only travel as explicit tombstones. Records that fail to
// derive a key or to persist are logged, counted, and skipped; the rest
// of the merge continues. Each Put commits independently, so an
// interrupted merge leaves already-applied records valid and the rest
// re-applies idempotently on the next cycle.
func Apply[K model.ID, R model.Record[K]](tbl Table[K, R], ad Adapter[K, R], remote []R, logger *slog.Logger) (Stats, error) {
	var stats Stats

	local, err := tbl.All()
	if err != nil {
		return stats, err
	}

	byKey := make(map[string]R, len(local))
	byID := make(map[K]R, len(local))

	for _, l := range local {
		byKey[ad.Key(l)] = l
		byID[l.RecordID()] = l
	}

	for _, r := range remote {
		key := ad.Key(r)
		if key == "" {
			stats.Failed++

			logger.Warn("merge: record has no natural key, skipping",
				slog.String("collection", ad.Collection),
				slog.String("id", string(r.RecordID())),
			)

			continue
		}

		if l, ok := byKey[key]; ok {
			if !r.ModifiedAt().After(l.ModifiedAt()) {
				stats.Skipped++
				continue
			}

			merged := ad.WithID(r, l.RecordID())
			if err := tbl.Put(merged); err != nil {
				stats.Failed++
				logPutFailure(logger, ad.Collection, key, err)

				continue
			}

			byKey[key] = merged
			byID[merged.RecordID()] = merged
			stats.Updated++

			continue
		}

		if l, ok := byID[r.RecordID()]; ok && ad.Key(l) != key {
			// Same id minted for a different fact on each replica. Never
			// clobber the unrelated local record; give r a fresh id.
			fresh := ad.FreshID(r)
			if err := tbl.Put(fresh); err != nil {
				stats.Failed++
				logPutFailure(logger, ad.Collection, key, err)

				continue
			}

			byKey[key] = fresh
			byID[fresh.RecordID()] = fresh
			stats.Collisions++

			logger.Info("merge: id collision resolved",
				slog.String("collection", ad.Collection),
				slog.String("remote_id", string(r.RecordID())),
				slog.String("fresh_id", string(fresh.RecordID())),
			)

			continue
		}

		if err := tbl.Put(r); err != nil {
			stats.Failed++
			logPutFailure(logger, ad.Collection, key, err)

			continue
		}

		byKey[key] = r
		byID[r.RecordID()] = r
		stats.Added++
	}

	return stats, nil
}

func logPutFailure(logger *slog.Logger, collection, key string, err error) {
	logger.Warn("merge: failed to apply record",
		slog.String("collection", collection),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// RemoteSettingsWin reports whether the remote settings copy should
// replace the local one. The singleton bypasses natural-key matching:
// the two whole-object copies compare by their side-channel saved-at
// timestamps, and the strictly newer one wins. Ties keep local.
func RemoteSettingsWin(localSavedAt, remoteSavedAt time.Time) bool {
	return remoteSavedAt.After(localSavedAt)
}
