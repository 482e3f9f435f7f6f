package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaultlink/vaultlink/internal/events"
	"github.com/vaultlink/vaultlink/internal/models"
)

// Lister fetches the full listing for an owner.
type Lister interface {
	ListFiles(ctx context.Context, owner string) ([]models.FileRecord, error)
}

// Deleter removes a remote file.
type Deleter interface {
	DeleteFile(ctx context.Context, owner, fileID string) error
}

// Backend is the remote side of the catalog.
type Backend interface {
	Lister
	Deleter
}

// Service ties a Store to its remote backend. Refreshes may overlap; each
// one takes a ticket before the listing call and completions that arrive
// after a newer refresh has been applied are discarded.
type Service struct {
	store   *Store
	backend Backend
}

// NewService creates a catalog service.
func NewService(store *Store, backend Backend) *Service {
	return &Service{store: store, backend: backend}
}

// Store returns the underlying store.
func (s *Service) Store() *Store {
	return s.store
}

// Refresh fetches the listing for owner and installs it. On a listing error
// the previous snapshot is kept and the error is returned. ErrStale is
// returned when a newer refresh won the race.
func (s *Service) Refresh(ctx context.Context, owner string) (*Snapshot, error) {
	seq := s.store.Begin()

	records, err := s.backend.ListFiles(ctx, owner)
	if err != nil {
		s.store.logger.Error().Err(err).Str("owner", owner).Uint64("seq", seq).Msg("catalog refresh failed")
		s.store.eventBus.Publish(&events.CatalogEvent{
			BaseEvent: events.NewBase(events.EventCatalogRefreshFailed),
			Owner:     owner,
			Seq:       seq,
			Error:     err,
		})
		return s.store.Snapshot(), fmt.Errorf("failed to list files: %w", err)
	}

	return s.store.Commit(seq, records)
}

// Delete removes fileID remotely and reloads the full listing. The local
// snapshot is never edited in place.
func (s *Service) Delete(ctx context.Context, owner, fileID string) (*Snapshot, error) {
	if err := s.backend.DeleteFile(ctx, owner, fileID); err != nil {
		return s.store.Snapshot(), fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}

	snap, err := s.Refresh(ctx, owner)
	if errors.Is(err, ErrStale) {
		// A concurrent refresh already installed a newer listing.
		return snap, nil
	}
	return snap, err
}
