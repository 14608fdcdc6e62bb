// Package prune implements the tombstone collector: soft-deleted records
// older than their collection's retention window are permanently removed
// so they stop replicating forever.
package prune

import (
	"log/slog"
	"time"

	"github.com/alexjbarnes/tracker-sync/internal/model"
)

// Table is the subset of the store a sweep needs for one collection.
type Table[K model.ID, R model.Record[K]] interface {
	All() ([]R, error)
	Delete(K) error
}

// Sweep permanently deletes every tombstone whose deletion time is older
// than the retention window. It runs immediately before a snapshot
// export so a tombstone received by the merge step earlier in the same
// cycle still makes it into at least one export (unless it is already
// past the window, in which case both replicas had the whole window to
// observe it). Purging is strictly age-based: there is no tracking of
// whether the remote replica ever merged a tombstone, so a replica that
// never pulled within the window can resurrect the deleted item from its
// own pre-deletion copy.
func Sweep[K model.ID, R model.Record[K]](tbl Table[K, R], collection string, retention time.Duration, now time.Time, logger *slog.Logger) (int, error) {
	records, err := tbl.All()
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, r := range records {
		if !r.Tombstoned() {
			continue
		}

		if now.Sub(r.TombstonedAt()) <= retention {
			continue
		}

		if err := tbl.Delete(r.RecordID()); err != nil {
			logger.Warn("prune: failed to delete tombstone",
				slog.String("collection", collection),
				slog.String("id", string(r.RecordID())),
				slog.String("error", err.Error()),
			)

			continue
		}

		removed++
	}

	if removed > 0 {
		logger.Info("prune: purged expired tombstones",
			slog.String("collection", collection),
			slog.Int("removed", removed),
		)
	}

	return removed, nil
}
