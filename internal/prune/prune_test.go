package prune

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/tracker-sync/internal/model"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTable struct {
	records     map[model.EntryID]model.DiaryEntry
	failDeletes map[model.EntryID]bool
}

func newFakeTable(entries ...model.DiaryEntry) *fakeTable {
	t := &fakeTable{
		records:     make(map[model.EntryID]model.DiaryEntry),
		failDeletes: make(map[model.EntryID]bool),
	}
	for _, e := range entries {
		t.records[e.ID] = e
	}

	return t
}

func (t *fakeTable) All() ([]model.DiaryEntry, error) {
	out := make([]model.DiaryEntry, 0, len(t.records))
	for _, e := range t.records {
		out = append(out, e)
	}

	return out, nil
}

func (t *fakeTable) Delete(id model.EntryID) error {
	if t.failDeletes[id] {
		return fmt.Errorf("io error")
	}

	delete(t.records, id)

	return nil
}

const retention = 30 * 24 * time.Hour

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func live(id string, updated time.Time) model.DiaryEntry {
	return model.DiaryEntry{
		Meta: model.Meta[model.EntryID]{ID: model.EntryID(id), UpdatedAt: updated},
		Day:  "2024-01-01", Name: "x",
	}
}

func dead(id string, deletedAt time.Time) model.DiaryEntry {
	e := live(id, deletedAt)
	e.Deleted = true
	e.DeletedAt = deletedAt

	return e
}

func TestSweep_RemovesExpiredTombstones(t *testing.T) {
	tbl := newFakeTable(
		dead("expired", now.Add(-retention-time.Hour)),
		dead("recent", now.Add(-time.Hour)),
		live("alive", now.Add(-90*24*time.Hour)),
	)

	removed, err := Sweep(tbl, "entries", retention, now, quietLogger)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.NotContains(t, tbl.records, model.EntryID("expired"))
	assert.Contains(t, tbl.records, model.EntryID("recent"))
	assert.Contains(t, tbl.records, model.EntryID("alive"), "old but live records are never touched")
}

func TestSweep_ExactlyAtWindowIsKept(t *testing.T) {
	tbl := newFakeTable(dead("boundary", now.Add(-retention)))

	removed, err := Sweep(tbl, "entries", retention, now, quietLogger)
	require.NoError(t, err)

	assert.Equal(t, 0, removed)
	assert.Contains(t, tbl.records, model.EntryID("boundary"))
}

func TestSweep_FallsBackToUpdatedAt(t *testing.T) {
	// Tombstones written before deletedAt existed carry only updatedAt.
	e := live("old-style", now.Add(-retention-time.Hour))
	e.Deleted = true

	tbl := newFakeTable(e)

	removed, err := Sweep(tbl, "entries", retention, now, quietLogger)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
}

func TestSweep_DeleteFailureSkipsRecord(t *testing.T) {
	tbl := newFakeTable(
		dead("stuck", now.Add(-retention-time.Hour)),
		dead("fine", now.Add(-retention-time.Hour)),
	)
	tbl.failDeletes["stuck"] = true

	removed, err := Sweep(tbl, "entries", retention, now, quietLogger)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.Contains(t, tbl.records, model.EntryID("stuck"))
	assert.NotContains(t, tbl.records, model.EntryID("fine"))
}

func TestSweep_EmptyTable(t *testing.T) {
	removed, err := Sweep(newFakeTable(), "entries", retention, now, quietLogger)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
