// Package model defines the replicated record shapes shared by the local
// store, the snapshot document, and the merge engine. Every collection
// gets its own id type so ids from different collections cannot be mixed
// up at compile time.
package model

import "time"

// Collection names as they appear in the snapshot document.
const (
	CollectionEntries       = "entries"
	CollectionFoods         = "foods"
	CollectionBodyMetrics   = "bodyMetrics"
	CollectionPortions      = "portions"
	CollectionMeals         = "meals"
	CollectionActivityDays  = "activityDays"
	CollectionHeartRateDays = "heartRateDays"
	CollectionSleepDays     = "sleepDays"
	CollectionSettings      = "settings"
)

// DayFormat is the calendar-date layout used for per-day natural keys.
const DayFormat = "2006-01-02"

// ID constrains the per-collection id types. All ids are string-shaped;
// the distinct named types exist to keep them apart.
type ID interface{ ~string }

// Per-collection id types. Most are minted as UUIDs by the collection
// adapters; DayID holds the calendar date itself.
type (
	EntryID    string
	FoodID     string
	MetricID   string
	PortionID  string
	MealID     string
	ActivityID string
	DayID      string
	SleepID    string
)

// Meta carries the replication bookkeeping embedded in every record.
// Timestamps are replica-local wall clock, monotonic only within one
// replica. A record with Deleted set is a tombstone: it keeps occupying
// its natural-key slot until the tombstone collector purges it, so
// re-creation after deletion stays distinguishable from "never existed".
type Meta[K ID] struct {
	ID        K         `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Deleted   bool      `json:"deleted,omitempty"`
	DeletedAt time.Time `json:"deletedAt,omitzero"`
}

// RecordID returns the replica-assigned id. Not globally unique: two
// replicas may mint the same id for unrelated records.
func (m Meta[K]) RecordID() K { return m.ID }

// ModifiedAt returns the last-write timestamp used for merge ordering.
func (m Meta[K]) ModifiedAt() time.Time { return m.UpdatedAt }

// Tombstoned reports whether the record is soft-deleted.
func (m Meta[K]) Tombstoned() bool { return m.Deleted }

// TombstonedAt returns the deletion time, falling back to UpdatedAt for
// tombstones written before DeletedAt existed.
func (m Meta[K]) TombstonedAt() time.Time {
	if !m.DeletedAt.IsZero() {
		return m.DeletedAt
	}

	return m.UpdatedAt
}

// Record is implemented by every replicated record type via its embedded
// Meta. The merge and prune layers operate on this interface plus a
// collection adapter.
type Record[K ID] interface {
	RecordID() K
	ModifiedAt() time.Time
	Tombstoned() bool
	TombstonedAt() time.Time
}

// DiaryEntry is one logged consumption event.
type DiaryEntry struct {
	Meta[EntryID]

	Day      string  `json:"day"`
	Time     string  `json:"time"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Unit     string  `json:"unit,omitempty"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein,omitempty"`
	Carbs    float64 `json:"carbs,omitempty"`
	Fat      float64 `json:"fat,omitempty"`
}

// FoodItem is a catalog item. Barcode, when present, identifies the same
// product across replicas regardless of how the name was entered.
type FoodItem struct {
	Meta[FoodID]

	Name     string  `json:"name"`
	Brand    string  `json:"brand,omitempty"`
	Barcode  string  `json:"barcode,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein,omitempty"`
	Carbs    float64 `json:"carbs,omitempty"`
	Fat      float64 `json:"fat,omitempty"`
}

// BodyMetric is one measurement (weight, body fat, ...) for one day.
type BodyMetric struct {
	Meta[MetricID]

	Day   string  `json:"day"`
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// PortionPreset is a reusable serving-size template.
type PortionPreset struct {
	Meta[PortionID]

	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit,omitempty"`
}

// MealItem is one component of a meal template.
type MealItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit,omitempty"`
}

// MealTemplate is a named group of items logged together.
type MealTemplate struct {
	Meta[MealID]

	Name  string     `json:"name"`
	Items []MealItem `json:"items,omitempty"`
}

// ActivityDay is the per-day activity aggregate.
type ActivityDay struct {
	Meta[ActivityID]

	Day            string  `json:"day"`
	Steps          int     `json:"steps"`
	ActiveCalories float64 `json:"activeCalories,omitempty"`
	DistanceKM     float64 `json:"distanceKm,omitempty"`
}

// HeartRateSample is a single reading within a day series.
type HeartRateSample struct {
	At  time.Time `json:"at"`
	BPM int       `json:"bpm"`
}

// HeartRateDay is the high-frequency sample series for one day. It is
// keyed directly by the calendar date: the id holds the date, so the id
// and the natural key always agree.
type HeartRateDay struct {
	Meta[DayID]

	Samples []HeartRateSample `json:"samples,omitempty"`
}

// Day returns the calendar date the series covers.
func (d HeartRateDay) Day() string { return string(d.ID) }

// SleepPhase is one contiguous sleep stage within a night.
type SleepPhase struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Stage string    `json:"stage"`
}

// SleepDay is the sleep-phase series for one day.
type SleepDay struct {
	Meta[SleepID]

	Day    string       `json:"day"`
	Phases []SleepPhase `json:"phases,omitempty"`
}

// Goals holds the daily nutrition targets.
type Goals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein,omitempty"`
	Carbs    float64 `json:"carbs,omitempty"`
	Fat      float64 `json:"fat,omitempty"`
}

// Settings is the configuration singleton. It does not follow the
// generic record shape: it is always present, has no tombstone, and is
// compared across replicas by a side-channel saved-at timestamp rather
// than by natural key. The newer copy replaces the other wholesale.
type Settings struct {
	Units     string   `json:"units"`
	Goals     Goals    `json:"goals"`
	MealNames []string `json:"mealNames,omitempty"`
}

// DefaultSettings returns the settings a fresh replica starts with.
func DefaultSettings() Settings {
	return Settings{
		Units:     "metric",
		MealNames: []string{"Breakfast", "Lunch", "Dinner", "Snacks"},
	}
}
