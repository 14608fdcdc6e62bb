package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/tracker-sync/internal/model"
)

func tempStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tracker.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestTable_PutGetAll(t *testing.T) {
	s := tempStore(t)
	entries := s.Tables().Entries

	e := model.DiaryEntry{
		Meta: model.Meta[model.EntryID]{
			ID:        "e1",
			CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		},
		Day:  "2024-01-01",
		Time: "08:00",
		Name: "Coffee", Calories: 5,
	}

	require.NoError(t, entries.Put(e))

	got, err := entries.Get("e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Coffee", got.Name)
	assert.True(t, got.UpdatedAt.Equal(e.UpdatedAt))

	all, err := entries.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTable_GetMissing(t *testing.T) {
	s := tempStore(t)

	got, err := s.Tables().Entries.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTable_PutOverwritesSameID(t *testing.T) {
	s := tempStore(t)
	entries := s.Tables().Entries

	e := model.DiaryEntry{Meta: model.Meta[model.EntryID]{ID: "e1"}, Day: "2024-01-01", Name: "Coffee"}
	require.NoError(t, entries.Put(e))

	e.Name = "Tea"
	require.NoError(t, entries.Put(e))

	all, err := entries.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Tea", all[0].Name)
}

func TestTable_PutEmptyID(t *testing.T) {
	s := tempStore(t)

	err := s.Tables().Entries.Put(model.DiaryEntry{Day: "2024-01-01", Name: "Coffee"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")
}

func TestTable_Delete(t *testing.T) {
	s := tempStore(t)
	entries := s.Tables().Entries

	require.NoError(t, entries.Put(model.DiaryEntry{Meta: model.Meta[model.EntryID]{ID: "e1"}, Day: "d", Name: "n"}))
	require.NoError(t, entries.Delete("e1"))

	got, err := entries.Get("e1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting a missing id is a no-op.
	require.NoError(t, entries.Delete("e1"))
}

func TestTable_TombstoneSurvivesRoundTrip(t *testing.T) {
	s := tempStore(t)
	entries := s.Tables().Entries

	deletedAt := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	e := model.DiaryEntry{
		Meta: model.Meta[model.EntryID]{ID: "e1", UpdatedAt: deletedAt, Deleted: true, DeletedAt: deletedAt},
		Day:  "2024-01-01", Name: "Coffee",
	}
	require.NoError(t, entries.Put(e))

	got, err := entries.Get("e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Tombstoned())
	assert.True(t, got.TombstonedAt().Equal(deletedAt))
}

func TestCollectionsAreIsolated(t *testing.T) {
	s := tempStore(t)
	tables := s.Tables()

	require.NoError(t, tables.Entries.Put(model.DiaryEntry{Meta: model.Meta[model.EntryID]{ID: "x"}, Day: "d", Name: "n"}))
	require.NoError(t, tables.Foods.Put(model.FoodItem{Meta: model.Meta[model.FoodID]{ID: "x"}, Name: "Oats"}))

	foods, err := tables.Foods.All()
	require.NoError(t, err)
	require.Len(t, foods, 1)
	assert.Equal(t, "Oats", foods[0].Name)

	entries, err := tables.Entries.All()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "n", entries[0].Name)
}

func TestSettings_DefaultsOnFreshStore(t *testing.T) {
	s := tempStore(t)

	settings, savedAt, err := s.Settings()
	require.NoError(t, err)

	assert.Equal(t, model.DefaultSettings(), settings)
	assert.True(t, savedAt.IsZero(), "fresh replica settings must lose to any remote copy")
}

func TestSettings_RoundTrip(t *testing.T) {
	s := tempStore(t)

	want := model.Settings{
		Units:     "imperial",
		Goals:     model.Goals{Calories: 2200, Protein: 150},
		MealNames: []string{"Breakfast", "Dinner"},
	}
	savedAt := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetSettings(want, savedAt))

	got, gotAt, err := s.Settings()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, gotAt.Equal(savedAt))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Tables().Entries.Put(model.DiaryEntry{Meta: model.Meta[model.EntryID]{ID: "e1"}, Day: "d", Name: "Coffee"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Tables().Entries.Get("e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Coffee", got.Name)
}
