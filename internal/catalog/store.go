// Package catalog holds the canonical file listing for the current owner and
// the aggregates derived from it.
//
// A Snapshot is immutable once built. Load replaces the whole snapshot in a
// single step; there are no incremental edits. Deleting a file is a remote
// operation followed by a full reload (see Service).
package catalog

import (
	"errors"
	"sync"
	"time"

	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/counter"
	"github.com/vaultlink/vaultlink/internal/events"
	"github.com/vaultlink/vaultlink/internal/logging"
	"github.com/vaultlink/vaultlink/internal/models"
)

// ErrStale is returned by Commit when a newer load has already been applied.
var ErrStale = errors.New("catalog load superseded by a newer one")

// Entry is a FileRecord with its counters decoded.
type Entry struct {
	Record     models.FileRecord
	Size       counter.Value
	Downloads  counter.Value
	UploadTime counter.Value // epoch milliseconds
	Category   models.Category
}

// UploadedAt converts the upload counter to a time.
func (e Entry) UploadedAt() time.Time {
	return time.UnixMilli(e.UploadTime.Int64())
}

// UploadDay returns the calendar day of the upload in loc (UTC when nil).
func (e Entry) UploadDay(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return e.UploadedAt().In(loc).Format(constants.DayLayout)
}

// Snapshot is one complete listing plus its aggregates.
type Snapshot struct {
	Entries        []Entry
	TotalCount     int
	TotalSize      counter.Value
	TotalDownloads counter.Value
	AverageSize    float64 // TotalSize / TotalCount, 0 when empty
	Seq            uint64
	LoadedAt       time.Time
}

// Empty reports whether the snapshot holds no entries.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Entries) == 0
}

// Find returns the entry with the given id.
func (s *Snapshot) Find(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	for _, e := range s.Entries {
		if e.Record.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Store owns the current snapshot. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	snap    *Snapshot
	issued  uint64
	applied uint64

	logger   *logging.Logger
	eventBus *events.EventBus
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithEventBus publishes catalog events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Store) { s.eventBus = bus }
}

// NewStore creates a store holding an empty snapshot.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Component("catalog")
	s.snap = &Snapshot{}
	return s
}

// Snapshot returns the current snapshot. It is never nil and must not be
// modified by the caller.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Load builds a snapshot from records and installs it.
func (s *Store) Load(records []models.FileRecord) *Snapshot {
	snap, _ := s.Commit(s.Begin(), records)
	return snap
}

// Begin reserves a sequence number for a load whose records are not yet
// available. Tickets are handed out in issue order.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Commit installs records under ticket seq. If a load with a higher ticket
// has already been applied the records are discarded, the current snapshot
// is returned and the error is ErrStale.
func (s *Store) Commit(seq uint64, records []models.FileRecord) (*Snapshot, error) {
	snap, skipped := build(records, s.logger)
	snap.Seq = seq
	snap.LoadedAt = s.now()

	s.mu.Lock()
	if seq <= s.applied {
		current, applied := s.snap, s.applied
		s.mu.Unlock()
		s.logger.Debug().Uint64("seq", seq).Uint64("applied", applied).Msg("discarding out-of-order catalog load")
		s.eventBus.Publish(&events.CatalogEvent{BaseEvent: events.NewBase(events.EventCatalogRefreshStale), Seq: seq})
		return current, ErrStale
	}
	s.applied = seq
	s.snap = snap
	s.mu.Unlock()

	s.eventBus.Publish(&events.CatalogEvent{
		BaseEvent:  events.NewBase(events.EventCatalogLoaded),
		Seq:        seq,
		TotalFiles: snap.TotalCount,
		Skipped:    skipped,
	})
	return snap, nil
}

// Invalidate clears the snapshot to the empty state.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.snap = &Snapshot{Seq: s.applied, LoadedAt: s.now()}
	s.mu.Unlock()

	s.eventBus.Publish(&events.CatalogEvent{BaseEvent: events.NewBase(events.EventCatalogInvalidated)})
}

// build decodes every record in a single pass. Unreadable counters count as
// zero and are logged; duplicate ids keep the first occurrence.
func build(records []models.FileRecord, logger *logging.Logger) (*Snapshot, int) {
	snap := &Snapshot{Entries: make([]Entry, 0, len(records))}
	seen := make(map[string]struct{}, len(records))
	skipped := 0

	for _, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			logger.Warn().Str("record_id", rec.ID).Str("name", rec.Name).Msg("duplicate record id in listing, keeping first")
			skipped++
			continue
		}
		seen[rec.ID] = struct{}{}

		e := Entry{
			Record:     rec,
			Size:       decode(logger, rec.ID, "file_size", rec.SizeRaw),
			Downloads:  decode(logger, rec.ID, "download_count", rec.DownloadCountRaw),
			UploadTime: decode(logger, rec.ID, "upload_time", rec.UploadTimeRaw),
			Category:   models.Classify(rec.Name),
		}
		snap.Entries = append(snap.Entries, e)
		snap.TotalSize = snap.TotalSize.Add(e.Size)
		snap.TotalDownloads = snap.TotalDownloads.Add(e.Downloads)
	}

	snap.TotalCount = len(snap.Entries)
	if snap.TotalCount > 0 {
		snap.AverageSize = snap.TotalSize.Float64() / float64(snap.TotalCount)
	}
	return snap, skipped
}

func decode(logger *logging.Logger, id, field, raw string) counter.Value {
	v, err := counter.Normalize(raw)
	if err != nil {
		logger.Warn().Err(err).Str("record_id", id).Str("field", field).Msg("unreadable counter treated as zero")
		return counter.Zero
	}
	return v
}
