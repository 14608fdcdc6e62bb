// Package snapshot assembles and parses the multi-collection export
// document exchanged with the remote replica. Parsing recognises older
// schema versions and migrates them up front, so the merge layer only
// ever sees the current shape; encoding serialises typed records, so
// deprecated fields still lingering in local storage never leak into a
// new export.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	errs "github.com/alexjbarnes/tracker-sync/internal/errors"
	"github.com/alexjbarnes/tracker-sync/internal/model"
)

// Version is the schema version stamped on every export.
const Version = "3"

// collectionKeys lists the record-array keys probed for presence.
var collectionKeys = []string{
	model.CollectionEntries,
	model.CollectionFoods,
	model.CollectionBodyMetrics,
	model.CollectionPortions,
	model.CollectionMeals,
	model.CollectionActivityDays,
	model.CollectionHeartRateDays,
	model.CollectionSleepDays,
}

// Document is the full snapshot: every collection's records, tombstones
// included, plus the settings singleton and its side-channel timestamp.
type Document struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	Entries       []model.DiaryEntry    `json:"entries"`
	Foods         []model.FoodItem      `json:"foods"`
	BodyMetrics   []model.BodyMetric    `json:"bodyMetrics"`
	Portions      []model.PortionPreset `json:"portions"`
	Meals         []model.MealTemplate  `json:"meals"`
	ActivityDays  []model.ActivityDay   `json:"activityDays"`
	HeartRateDays []model.HeartRateDay  `json:"heartRateDays"`
	SleepDays     []model.SleepDay      `json:"sleepDays"`

	Settings          *model.Settings `json:"settings,omitempty"`
	SettingsUpdatedAt time.Time       `json:"settingsUpdatedAt,omitzero"`

	present map[string]bool
}

// New returns an empty document stamped with the current version and
// the given creation time. All collection arrays are initialised so an
// export always carries every collection key, even when empty.
func New(now time.Time) *Document {
	d := &Document{
		Version:       Version,
		Timestamp:     now,
		Entries:       []model.DiaryEntry{},
		Foods:         []model.FoodItem{},
		BodyMetrics:   []model.BodyMetric{},
		Portions:      []model.PortionPreset{},
		Meals:         []model.MealTemplate{},
		ActivityDays:  []model.ActivityDay{},
		HeartRateDays: []model.HeartRateDay{},
		SleepDays:     []model.SleepDay{},
		present:       make(map[string]bool, len(collectionKeys)+1),
	}

	for _, name := range collectionKeys {
		d.present[name] = true
	}

	d.present[model.CollectionSettings] = true

	return d
}

// Has reports whether the parsed document carried the given collection
// at all. A missing collection means the snapshot predates it, never
// that it was emptied, and the merge layer must skip it.
func (d *Document) Has(collection string) bool {
	return d.present[collection]
}

// Encode serialises the document.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	return data, nil
}

// Parse decodes a snapshot document, migrating older schema versions to
// the current shape. Unknown versions fail with ErrUnknownSchema rather
// than being guessed at.
func Parse(data []byte) (*Document, error) {
	version := gjson.GetBytes(data, "version").String()

	switch version {
	case "1", "2", Version:
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownSchema, version)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	doc.present = make(map[string]bool, len(collectionKeys)+1)
	for _, name := range collectionKeys {
		doc.present[name] = gjson.GetBytes(data, name).Exists()
	}

	doc.present[model.CollectionSettings] = gjson.GetBytes(data, model.CollectionSettings).Exists()

	switch version {
	case "1":
		migrateV1(&doc, data)
	case "2":
		migrateV2(&doc, data)
	}

	doc.Version = Version

	return &doc, nil
}

// migrateV1 lifts a version 1 document. v1 settings carried a boolean
// "metric" instead of the units string and a single flat "goalCalories".
// v1 predates the heartRateDays and sleepDays collections, which the
// presence probe already records as absent.
func migrateV1(doc *Document, raw []byte) {
	if doc.Settings == nil {
		return
	}

	if m := gjson.GetBytes(raw, "settings.metric"); m.Exists() {
		if m.Bool() {
			doc.Settings.Units = "metric"
		} else {
			doc.Settings.Units = "imperial"
		}
	}

	if g := gjson.GetBytes(raw, "settings.goalCalories"); g.Exists() {
		doc.Settings.Goals.Calories = g.Float()
	}
}

// migrateV2 lifts a version 2 document. v2 held the nutrition targets
// as flat goalCalories/goalProtein/goalCarbs/goalFat settings fields,
// collapsed into the goals object in v3.
func migrateV2(doc *Document, raw []byte) {
	if doc.Settings == nil {
		return
	}

	fields := []struct {
		key string
		dst *float64
	}{
		{"settings.goalCalories", &doc.Settings.Goals.Calories},
		{"settings.goalProtein", &doc.Settings.Goals.Protein},
		{"settings.goalCarbs", &doc.Settings.Goals.Carbs},
		{"settings.goalFat", &doc.Settings.Goals.Fat},
	}

	for _, f := range fields {
		if g := gjson.GetBytes(raw, f.key); g.Exists() {
			*f.dst = g.Float()
		}
	}
}
