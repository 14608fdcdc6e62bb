package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t8 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	t9 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
)

func TestMeta_TombstonedAtFallsBackToUpdatedAt(t *testing.T) {
	withDeletedAt := Meta[EntryID]{ID: "a", UpdatedAt: t8, Deleted: true, DeletedAt: t9}
	assert.Equal(t, t9, withDeletedAt.TombstonedAt())

	// Tombstones written before deletedAt existed.
	without := Meta[EntryID]{ID: "a", UpdatedAt: t8, Deleted: true}
	assert.Equal(t, t8, without.TombstonedAt())
}

func TestMeta_JSONOmitsZeroTombstoneFields(t *testing.T) {
	data, err := json.Marshal(DiaryEntry{
		Meta: Meta[EntryID]{ID: "e1", CreatedAt: t8, UpdatedAt: t8},
		Day:  "2024-01-01", Name: "Coffee",
	})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "deleted")
	assert.NotContains(t, string(data), "deletedAt")
}

func TestMeta_TombstoneJSONRoundTrip(t *testing.T) {
	e := DiaryEntry{
		Meta: Meta[EntryID]{ID: "e1", UpdatedAt: t9, Deleted: true, DeletedAt: t9},
		Day:  "2024-01-01", Name: "Coffee",
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got DiaryEntry
	require.NoError(t, json.Unmarshal(data, &got))

	assert.True(t, got.Tombstoned())
	assert.True(t, got.TombstonedAt().Equal(t9))
}

func TestHeartRateDay_DayIsTheID(t *testing.T) {
	d := HeartRateDay{Meta: Meta[DayID]{ID: "2024-01-01"}}
	assert.Equal(t, "2024-01-01", d.Day())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, "metric", s.Units)
	assert.Equal(t, []string{"Breakfast", "Lunch", "Dinner", "Snacks"}, s.MealNames)
	assert.Zero(t, s.Goals)
}
