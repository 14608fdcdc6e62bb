// Package store persists the local replica in a bbolt database: one
// bucket per collection with JSON values keyed by record id, plus a meta
// bucket for the settings singleton. Each write commits independently,
// which is what lets an interrupted merge resume idempotently.
package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alexjbarnes/tracker-sync/internal/model"
)

const (
	// storeDirPerm is the permission mode for the database directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt file lock.
	storeOpenTimeout = 5 * time.Second
)

var (
	metaBucket  = []byte("meta")
	settingsKey = []byte("settings")
)

// collectionBuckets lists every record bucket created on open.
var collectionBuckets = []string{
	model.CollectionEntries,
	model.CollectionFoods,
	model.CollectionBodyMetrics,
	model.CollectionPortions,
	model.CollectionMeals,
	model.CollectionActivityDays,
	model.CollectionHeartRateDays,
	model.CollectionSleepDays,
}

// Store wraps the bbolt database holding the local replica.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at the given path. All
// collection buckets are created up front.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return err
		}

		for _, name := range collectionBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// settingsDoc is the persisted form of the settings singleton together
// with its side-channel saved-at timestamp.
type settingsDoc struct {
	Settings model.Settings `json:"settings"`
	SavedAt  time.Time      `json:"savedAt"`
}

// Settings returns the configuration singleton and the time it was last
// saved. A fresh replica gets defaults with a zero timestamp, so any
// remote copy wins the first comparison.
func (s *Store) Settings() (model.Settings, time.Time, error) {
	doc := settingsDoc{Settings: model.DefaultSettings()}

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(settingsKey)
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &doc)
	})
	if err != nil {
		return model.Settings{}, time.Time{}, fmt.Errorf("reading settings: %w", err)
	}

	return doc.Settings, doc.SavedAt, nil
}

// SetSettings replaces the configuration singleton wholesale.
func (s *Store) SetSettings(settings model.Settings, savedAt time.Time) error {
	data, err := json.Marshal(settingsDoc{Settings: settings, SavedAt: savedAt})
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(settingsKey, data)
	})
}

// Table provides typed access to one collection bucket.
type Table[K model.ID, R model.Record[K]] struct {
	db     *bolt.DB
	bucket []byte
}

// TableFor returns the typed table for a collection bucket.
func TableFor[K model.ID, R model.Record[K]](s *Store, collection string) *Table[K, R] {
	return &Table[K, R]{db: s.db, bucket: []byte(collection)}
}

// All returns every record in the collection, tombstones included.
func (t *Table[K, R]) All() ([]R, error) {
	var out []R

	err := t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).ForEach(func(_, v []byte) error {
			var r R
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}

			out = append(out, r)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", t.bucket, err)
	}

	return out, nil
}

// Get returns the record with the given id, or nil if not present.
func (t *Table[K, R]) Get(id K) (*R, error) {
	var r *R

	err := t.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(t.bucket).Get([]byte(string(id)))
		if v == nil {
			return nil
		}

		r = new(R)

		return json.Unmarshal(v, r)
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", t.bucket, string(id), err)
	}

	return r, nil
}

// Put writes the record, keyed by its id.
func (t *Table[K, R]) Put(r R) error {
	id := string(r.RecordID())
	if id == "" {
		return fmt.Errorf("record in %s has empty id", t.bucket)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", t.bucket, id, err)
	}

	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).Put([]byte(id), data)
	})
}

// Delete permanently removes the record with the given id.
func (t *Table[K, R]) Delete(id K) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).Delete([]byte(string(id)))
	})
}

// Tables bundles the typed table for every collection.
type Tables struct {
	Entries       *Table[model.EntryID, model.DiaryEntry]
	Foods         *Table[model.FoodID, model.FoodItem]
	BodyMetrics   *Table[model.MetricID, model.BodyMetric]
	Portions      *Table[model.PortionID, model.PortionPreset]
	Meals         *Table[model.MealID, model.MealTemplate]
	ActivityDays  *Table[model.ActivityID, model.ActivityDay]
	HeartRateDays *Table[model.DayID, model.HeartRateDay]
	SleepDays     *Table[model.SleepID, model.SleepDay]
}

// Tables returns typed tables over all collection buckets.
func (s *Store) Tables() *Tables {
	return &Tables{
		Entries:       TableFor[model.EntryID, model.DiaryEntry](s, model.CollectionEntries),
		Foods:         TableFor[model.FoodID, model.FoodItem](s, model.CollectionFoods),
		BodyMetrics:   TableFor[model.MetricID, model.BodyMetric](s, model.CollectionBodyMetrics),
		Portions:      TableFor[model.PortionID, model.PortionPreset](s, model.CollectionPortions),
		Meals:         TableFor[model.MealID, model.MealTemplate](s, model.CollectionMeals),
		ActivityDays:  TableFor[model.ActivityID, model.ActivityDay](s, model.CollectionActivityDays),
		HeartRateDays: TableFor[model.DayID, model.HeartRateDay](s, model.CollectionHeartRateDays),
		SleepDays:     TableFor[model.SleepID, model.SleepDay](s, model.CollectionSleepDays),
	}
}
