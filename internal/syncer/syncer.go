// Package syncer coordinates the replication cycle: pull the remote
// snapshot, merge it into the local store, collect expired tombstones,
// export, encrypt, and upload. Exactly one cycle runs at a time; timers
// (periodic and write-debounce) are the only other schedulers.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexjbarnes/tracker-sync/internal/blobcrypt"
	"github.com/alexjbarnes/tracker-sync/internal/collections"
	errs "github.com/alexjbarnes/tracker-sync/internal/errors"
	"github.com/alexjbarnes/tracker-sync/internal/merge"
	"github.com/alexjbarnes/tracker-sync/internal/model"
	"github.com/alexjbarnes/tracker-sync/internal/prune"
	"github.com/alexjbarnes/tracker-sync/internal/remote"
	"github.com/alexjbarnes/tracker-sync/internal/snapshot"
	"github.com/alexjbarnes/tracker-sync/internal/store"
)

const (
	// DefaultPullInterval is how often a full pull-then-push cycle runs.
	DefaultPullInterval = 5 * time.Minute

	// DefaultDebounce is how long after the last local mutation a
	// write-triggered cycle fires. A new mutation resets the timer, so a
	// burst of edits coalesces into one cycle.
	DefaultDebounce = 30 * time.Second
)

// Phase is the cycle state machine position.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDownloading
	PhaseMerging
	PhaseCollectingGarbage
	PhaseExporting
	PhaseEncrypting
	PhaseUploading
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDownloading:
		return "downloading"
	case PhaseMerging:
		return "merging"
	case PhaseCollectingGarbage:
		return "collecting-garbage"
	case PhaseExporting:
		return "exporting"
	case PhaseEncrypting:
		return "encrypting"
	case PhaseUploading:
		return "uploading"
	default:
		return "unknown"
	}
}

// Options configures a Syncer. Zero durations get the defaults.
type Options struct {
	Passphrase   string
	PullInterval time.Duration
	Debounce     time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// CycleStats reports what one cycle did.
type CycleStats struct {
	// Pulled is true when a remote snapshot was downloaded and merged.
	Pulled bool

	// Merged sums the merge outcome across all collections.
	Merged merge.Stats

	// Collections holds the per-collection merge outcome.
	Collections map[string]merge.Stats

	// SettingsReplaced is true when the remote settings copy won.
	SettingsReplaced bool

	// Pruned counts tombstones permanently removed before export.
	Pruned int

	// UploadedBytes is the size of the sealed blob pushed to the remote.
	UploadedBytes int
}

// Syncer owns the replication cycle for one local store and one remote
// replica. Construct it explicitly and share the one instance; the
// single-flight guard lives on it, not in package state.
type Syncer struct {
	store      *store.Store
	tables     *store.Tables
	transport  remote.Transport
	logger     *slog.Logger
	passphrase string

	pullInterval time.Duration
	debounce     time.Duration
	now          func() time.Time

	// guard enforces mutual exclusion between cycles. A request that
	// finds it held is dropped, not queued.
	guard sync.Mutex

	phase atomic.Int32

	mu            sync.Mutex
	debounceTimer *time.Timer
	periodicOn    bool

	// kick receives debounce firings; buffered so a firing during an
	// in-flight cycle coalesces instead of blocking the timer goroutine.
	kick chan struct{}
}

// New builds a Syncer over the given store and transport.
func New(st *store.Store, transport remote.Transport, opts Options, logger *slog.Logger) *Syncer {
	if opts.PullInterval <= 0 {
		opts.PullInterval = DefaultPullInterval
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Syncer{
		store:        st,
		tables:       st.Tables(),
		transport:    transport,
		logger:       logger,
		passphrase:   opts.Passphrase,
		pullInterval: opts.PullInterval,
		debounce:     opts.Debounce,
		now:          opts.Now,
		periodicOn:   true,
		kick:         make(chan struct{}, 1),
	}
}

// Phase returns the current cycle phase.
func (s *Syncer) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Syncer) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// RunCycle runs one replication cycle to completion. With pullFirst the
// remote snapshot is downloaded and merged before exporting; without it
// the cycle is a forced upload that still collects tombstones and
// rebuilds the export. Returns ErrCycleInFlight when another cycle holds
// the guard; the request is dropped, not queued, because the running
// cycle's next invocation will pick up any writes made meanwhile.
//
// A download failure or an absent remote snapshot is not fatal: the
// cycle degrades to upload-only. A decrypt failure (wrong passphrase)
// and an upload failure are fatal and surfaced without retry. A cycle
// that fails after merging leaves the merged data in place; the next
// cycle re-exports it, which is safe because export is idempotent given
// the same local state.
func (s *Syncer) RunCycle(ctx context.Context, pullFirst bool) (*CycleStats, error) {
	if !s.guard.TryLock() {
		return nil, errs.ErrCycleInFlight
	}
	defer s.guard.Unlock()
	defer s.setPhase(PhaseIdle)

	started := s.now()
	stats := &CycleStats{Collections: make(map[string]merge.Stats)}

	if pullFirst {
		if err := s.pull(ctx, stats); err != nil {
			return nil, err
		}
	}

	s.setPhase(PhaseCollectingGarbage)

	pruned, err := s.collect(s.now())
	if err != nil {
		return nil, fmt.Errorf("collecting tombstones: %w", err)
	}

	stats.Pruned = pruned

	s.setPhase(PhaseExporting)

	doc, err := s.export(s.now())
	if err != nil {
		return nil, fmt.Errorf("building export snapshot: %w", err)
	}

	plaintext, err := doc.Encode()
	if err != nil {
		return nil, err
	}

	s.setPhase(PhaseEncrypting)

	sealed, err := blobcrypt.Seal(plaintext, s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("sealing snapshot: %w", err)
	}

	s.setPhase(PhaseUploading)

	if err := s.transport.Upload(ctx, sealed); err != nil {
		return nil, fmt.Errorf("uploading snapshot: %w", err)
	}

	stats.UploadedBytes = len(sealed)

	s.logger.Info("sync cycle complete",
		slog.Bool("pulled", stats.Pulled),
		slog.Int("added", stats.Merged.Added),
		slog.Int("updated", stats.Merged.Updated),
		slog.Int("skipped", stats.Merged.Skipped),
		slog.Int("id_collisions", stats.Merged.Collisions),
		slog.Int("failed", stats.Merged.Failed),
		slog.Int("pruned", stats.Pruned),
		slog.Int("uploaded_bytes", stats.UploadedBytes),
		slog.Duration("took", s.now().Sub(started)),
	)

	return stats, nil
}

// pull downloads, decrypts, parses, and merges the remote snapshot.
func (s *Syncer) pull(ctx context.Context, stats *CycleStats) error {
	s.setPhase(PhaseDownloading)

	blob, err := s.transport.Download(ctx)

	switch {
	case errors.Is(err, errs.ErrNoSnapshot):
		s.logger.Info("no remote snapshot yet, continuing upload-only")
		return nil

	case err != nil:
		// Download failure is non-fatal: local data is pushed anyway and
		// the next cycle retries the pull.
		s.logger.Warn("download failed, continuing upload-only", slog.String("error", err.Error()))
		return nil
	}

	plaintext, err := blobcrypt.Open(blob, s.passphrase)
	if err != nil {
		return err
	}

	doc, err := snapshot.Parse(plaintext)
	if err != nil {
		return fmt.Errorf("parsing remote snapshot: %w", err)
	}

	s.setPhase(PhaseMerging)

	if err := s.mergeDocument(doc, stats); err != nil {
		return err
	}

	stats.Pulled = true

	return nil
}

// mergeDocument merges every collection present in the document into the
// local store. Absent collections mean the snapshot predates them and
// are skipped.
func (s *Syncer) mergeDocument(doc *snapshot.Document, stats *CycleStats) error {
	if err := mergeOne(s, doc, stats, collections.Entries(), doc.Entries, s.tables.Entries); err != nil {
		return err
	}

	if err := mergeOne(s, doc, stats, collections.Foods(), doc.Foods, s.tables.Foods); err != nil {
		return err
	}

	if err := mergeOne(s, doc, stats, collections.BodyMetrics(), doc.BodyMetrics, s.tables.BodyMetrics); err != nil {
		return err
	}

	if err := mergeOne(s, doc, stats, collections.Portions(), doc.Portions, s.tables.Portions); err != nil {
		return err
	}

	if err := mergeOne(s, doc, stats, collections.Meals(), doc.Meals, s.tables.Meals); err != nil {
		return err
	}

	if err := mergeOne(s, doc, stats, collections.ActivityDays(), doc.ActivityDays, s.tables.ActivityDays); err != nil {
		return err
	}

	if err := mergeOne(s, doc, stats, collections.HeartRateDays(), doc.HeartRateDays, s.tables.HeartRateDays); err != nil {
		return err
	}

	if err := mergeOne(s, doc, stats, collections.SleepDays(), doc.SleepDays, s.tables.SleepDays); err != nil {
		return err
	}

	return s.mergeSettings(doc, stats)
}

// mergeOne merges a single collection when the document carries it.
func mergeOne[K model.ID, R model.Record[K]](s *Syncer, doc *snapshot.Document, stats *CycleStats, ad merge.Adapter[K, R], records []R, tbl merge.Table[K, R]) error {
	if !doc.Has(ad.Collection) {
		return nil
	}

	st, err := merge.Apply(tbl, ad, records, s.logger)
	if err != nil {
		return fmt.Errorf("merging %s: %w", ad.Collection, err)
	}

	stats.Collections[ad.Collection] = st
	stats.Merged.Add(st)

	return nil
}

// mergeSettings applies the singleton rule: the copy with the newer
// side-channel timestamp replaces the other wholesale. Ties keep local.
func (s *Syncer) mergeSettings(doc *snapshot.Document, stats *CycleStats) error {
	if !doc.Has(model.CollectionSettings) || doc.Settings == nil {
		return nil
	}

	_, localAt, err := s.store.Settings()
	if err != nil {
		return err
	}

	if !merge.RemoteSettingsWin(localAt, doc.SettingsUpdatedAt) {
		return nil
	}

	if err := s.store.SetSettings(*doc.Settings, doc.SettingsUpdatedAt); err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}

	stats.SettingsReplaced = true

	return nil
}

// collect sweeps expired tombstones from every collection.
func (s *Syncer) collect(now time.Time) (int, error) {
	total := 0

	if err := sweepOne(s, &total, collections.Entries(), s.tables.Entries, now); err != nil {
		return total, err
	}

	if err := sweepOne(s, &total, collections.Foods(), s.tables.Foods, now); err != nil {
		return total, err
	}

	if err := sweepOne(s, &total, collections.BodyMetrics(), s.tables.BodyMetrics, now); err != nil {
		return total, err
	}

	if err := sweepOne(s, &total, collections.Portions(), s.tables.Portions, now); err != nil {
		return total, err
	}

	if err := sweepOne(s, &total, collections.Meals(), s.tables.Meals, now); err != nil {
		return total, err
	}

	if err := sweepOne(s, &total, collections.ActivityDays(), s.tables.ActivityDays, now); err != nil {
		return total, err
	}

	if err := sweepOne(s, &total, collections.HeartRateDays(), s.tables.HeartRateDays, now); err != nil {
		return total, err
	}

	return total, sweepOne(s, &total, collections.SleepDays(), s.tables.SleepDays, now)
}

func sweepOne[K model.ID, R model.Record[K]](s *Syncer, total *int, ad merge.Adapter[K, R], tbl prune.Table[K, R], now time.Time) error {
	removed, err := prune.Sweep(tbl, ad.Collection, ad.Retention, now, s.logger)
	if err != nil {
		return fmt.Errorf("pruning %s: %w", ad.Collection, err)
	}

	*total += removed

	return nil
}

// export assembles the full local state, live tombstones included, into
// a snapshot document.
func (s *Syncer) export(now time.Time) (*snapshot.Document, error) {
	doc := snapshot.New(now)

	if err := fill(&doc.Entries, s.tables.Entries); err != nil {
		return nil, err
	}

	if err := fill(&doc.Foods, s.tables.Foods); err != nil {
		return nil, err
	}

	if err := fill(&doc.BodyMetrics, s.tables.BodyMetrics); err != nil {
		return nil, err
	}

	if err := fill(&doc.Portions, s.tables.Portions); err != nil {
		return nil, err
	}

	if err := fill(&doc.Meals, s.tables.Meals); err != nil {
		return nil, err
	}

	if err := fill(&doc.ActivityDays, s.tables.ActivityDays); err != nil {
		return nil, err
	}

	if err := fill(&doc.HeartRateDays, s.tables.HeartRateDays); err != nil {
		return nil, err
	}

	if err := fill(&doc.SleepDays, s.tables.SleepDays); err != nil {
		return nil, err
	}

	settings, savedAt, err := s.store.Settings()
	if err != nil {
		return nil, err
	}

	doc.Settings = &settings
	doc.SettingsUpdatedAt = savedAt

	return doc, nil
}

func fill[K model.ID, R model.Record[K]](dst *[]R, tbl *store.Table[K, R]) error {
	records, err := tbl.All()
	if err != nil {
		return err
	}

	if records != nil {
		*dst = records
	}

	return nil
}

// NotifyLocalMutation (re)arms the debounce timer. When the timer fires
// a pull-then-push cycle runs; a mutation before it fires resets it, so
// a burst of edits becomes one cycle.
func (s *Syncer) NotifyLocalMutation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Reset(s.debounce)
		return
	}

	s.debounceTimer = time.AfterFunc(s.debounce, s.debounceFired)
}

func (s *Syncer) debounceFired() {
	s.mu.Lock()
	s.debounceTimer = nil
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// SetPeriodicEnabled toggles the periodic trigger. It does not cancel an
// in-flight cycle; a disabled tick is simply skipped.
func (s *Syncer) SetPeriodicEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periodicOn = enabled
}

func (s *Syncer) periodicEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.periodicOn
}

// Run drives the timers until the context is cancelled. Periodic ticks
// and debounce firings both request a pull-then-push cycle; whichever
// arrives while a cycle is in flight finds the guard held and is
// dropped for that tick.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pullInterval)
	defer ticker.Stop()

	defer s.stopDebounce()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if !s.periodicEnabled() {
				continue
			}

			s.runTriggered(ctx, "periodic")

		case <-s.kick:
			s.runTriggered(ctx, "debounce")
		}
	}
}

func (s *Syncer) runTriggered(ctx context.Context, trigger string) {
	_, err := s.RunCycle(ctx, true)

	switch {
	case errors.Is(err, errs.ErrCycleInFlight):
		s.logger.Info("cycle already in flight, skipping trigger", slog.String("trigger", trigger))

	case err != nil:
		s.logger.Error("sync cycle failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Syncer) stopDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}
