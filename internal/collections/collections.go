// Package collections defines the per-collection policies: natural-key
// derivation, id minting, and tombstone retention windows.
package collections

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alexjbarnes/tracker-sync/internal/merge"
	"github.com/alexjbarnes/tracker-sync/internal/model"
)

const (
	// RetentionShort is the tombstone window for everyday entities.
	// Long enough for any replica syncing at least monthly to observe
	// the deletion before it is purged.
	RetentionShort = 30 * 24 * time.Hour

	// RetentionLong is the tombstone window for per-day sample series.
	// Those are expensive to re-derive from the source device and safe
	// to keep tombstoned far longer before permanent deletion.
	RetentionLong = 180 * 24 * time.Hour
)

// keySep joins natural-key components. It cannot appear in a calendar
// date or a clock time, which anchor every composite key.
const keySep = "|"

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Entries returns the adapter for logged diary entries. Two replicas
// recognise the same logged event by day, clock time, and name.
func Entries() merge.Adapter[model.EntryID, model.DiaryEntry] {
	return merge.Adapter[model.EntryID, model.DiaryEntry]{
		Collection: model.CollectionEntries,
		Retention:  RetentionShort,
		Key: func(e model.DiaryEntry) string {
			if e.Day == "" || e.Name == "" {
				return ""
			}

			return e.Day + keySep + e.Time + keySep + e.Name
		},
		WithID: func(e model.DiaryEntry, id model.EntryID) model.DiaryEntry {
			e.ID = id
			return e
		},
		FreshID: func(e model.DiaryEntry) model.DiaryEntry {
			e.ID = model.EntryID(uuid.NewString())
			return e
		},
	}
}

// Foods returns the adapter for catalog items. A barcode identifies the
// product outright; otherwise the normalised name and brand do.
func Foods() merge.Adapter[model.FoodID, model.FoodItem] {
	return merge.Adapter[model.FoodID, model.FoodItem]{
		Collection: model.CollectionFoods,
		Retention:  RetentionShort,
		Key: func(f model.FoodItem) string {
			if f.Barcode != "" {
				return "barcode" + keySep + f.Barcode
			}

			if f.Name == "" {
				return ""
			}

			return norm(f.Name) + keySep + norm(f.Brand)
		},
		WithID: func(f model.FoodItem, id model.FoodID) model.FoodItem {
			f.ID = id
			return f
		},
		FreshID: func(f model.FoodItem) model.FoodItem {
			f.ID = model.FoodID(uuid.NewString())
			return f
		},
	}
}

// BodyMetrics returns the adapter for body-measurement records, one per
// day and measurement kind.
func BodyMetrics() merge.Adapter[model.MetricID, model.BodyMetric] {
	return merge.Adapter[model.MetricID, model.BodyMetric]{
		Collection: model.CollectionBodyMetrics,
		Retention:  RetentionShort,
		Key: func(m model.BodyMetric) string {
			if m.Day == "" || m.Kind == "" {
				return ""
			}

			return m.Day + keySep + norm(m.Kind)
		},
		WithID: func(m model.BodyMetric, id model.MetricID) model.BodyMetric {
			m.ID = id
			return m
		},
		FreshID: func(m model.BodyMetric) model.BodyMetric {
			m.ID = model.MetricID(uuid.NewString())
			return m
		},
	}
}

// Portions returns the adapter for serving-size presets.
func Portions() merge.Adapter[model.PortionID, model.PortionPreset] {
	return merge.Adapter[model.PortionID, model.PortionPreset]{
		Collection: model.CollectionPortions,
		Retention:  RetentionShort,
		Key: func(p model.PortionPreset) string {
			return norm(p.Label)
		},
		WithID: func(p model.PortionPreset, id model.PortionID) model.PortionPreset {
			p.ID = id
			return p
		},
		FreshID: func(p model.PortionPreset) model.PortionPreset {
			p.ID = model.PortionID(uuid.NewString())
			return p
		},
	}
}

// Meals returns the adapter for meal templates.
func Meals() merge.Adapter[model.MealID, model.MealTemplate] {
	return merge.Adapter[model.MealID, model.MealTemplate]{
		Collection: model.CollectionMeals,
		Retention:  RetentionShort,
		Key: func(m model.MealTemplate) string {
			return norm(m.Name)
		},
		WithID: func(m model.MealTemplate, id model.MealID) model.MealTemplate {
			m.ID = id
			return m
		},
		FreshID: func(m model.MealTemplate) model.MealTemplate {
			m.ID = model.MealID(uuid.NewString())
			return m
		},
	}
}

// ActivityDays returns the adapter for per-day activity aggregates.
func ActivityDays() merge.Adapter[model.ActivityID, model.ActivityDay] {
	return merge.Adapter[model.ActivityID, model.ActivityDay]{
		Collection: model.CollectionActivityDays,
		Retention:  RetentionShort,
		Key: func(a model.ActivityDay) string {
			return a.Day
		},
		WithID: func(a model.ActivityDay, id model.ActivityID) model.ActivityDay {
			a.ID = id
			return a
		},
		FreshID: func(a model.ActivityDay) model.ActivityDay {
			a.ID = model.ActivityID(uuid.NewString())
			return a
		},
	}
}

// HeartRateDays returns the adapter for the high-frequency sample
// series. The series is keyed directly by date: the id holds the date,
// so id collisions cannot occur and FreshID is the identity.
func HeartRateDays() merge.Adapter[model.DayID, model.HeartRateDay] {
	return merge.Adapter[model.DayID, model.HeartRateDay]{
		Collection: model.CollectionHeartRateDays,
		Retention:  RetentionLong,
		Key: func(d model.HeartRateDay) string {
			return string(d.ID)
		},
		WithID: func(d model.HeartRateDay, id model.DayID) model.HeartRateDay {
			d.ID = id
			return d
		},
		FreshID: func(d model.HeartRateDay) model.HeartRateDay {
			return d
		},
	}
}

// SleepDays returns the adapter for per-day sleep-phase series.
func SleepDays() merge.Adapter[model.SleepID, model.SleepDay] {
	return merge.Adapter[model.SleepID, model.SleepDay]{
		Collection: model.CollectionSleepDays,
		Retention:  RetentionLong,
		Key: func(s model.SleepDay) string {
			return s.Day
		},
		WithID: func(s model.SleepDay, id model.SleepID) model.SleepDay {
			s.ID = id
			return s
		},
		FreshID: func(s model.SleepDay) model.SleepDay {
			s.ID = model.SleepID(uuid.NewString())
			return s
		},
	}
}
