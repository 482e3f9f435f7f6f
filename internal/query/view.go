package query

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vaultlink/vaultlink/internal/catalog"
	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/models"
)

// Source supplies the snapshot a view pages over.
type Source interface {
	Snapshot() *catalog.Snapshot
}

// SourceFunc adapts a function to Source.
type SourceFunc func() *catalog.Snapshot

func (f SourceFunc) Snapshot() *catalog.Snapshot { return f() }

// View couples one Engine and one State to a record source. The catalog
// screen and the download screen are two views over the same store.
type View struct {
	mu     sync.Mutex
	source Source
	engine *Engine
	state  State
}

// NewView creates a view starting from DefaultState.
func NewView(source Source, opts Options) *View {
	return &View{
		source: source,
		engine: NewEngine(opts),
		state:  DefaultState(),
	}
}

// NewCatalogView is the browsing view: every record, fine-grained categories.
func NewCatalogView(source Source, loc *time.Location) *View {
	return NewView(source, Options{Location: loc})
}

// NewDownloadView lists only downloadable records and matches categories in
// the unified table.
func NewDownloadView(source Source, loc *time.Location) *View {
	return NewView(source, Options{
		UnifiedCategories: true,
		DownloadableOnly:  true,
		Location:          loc,
	})
}

// State returns a copy of the current query state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Current applies the current state to the latest snapshot.
func (v *View) Current() Page {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.engine.Apply(v.source.Snapshot(), &v.state)
}

// update mutates the state and re-clamps the page index.
func (v *View) update(fn func(*State)) Page {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(&v.state)
	return v.engine.Apply(v.source.Snapshot(), &v.state)
}

// SetSearch sets the case-insensitive name filter.
func (v *View) SetSearch(text string) Page {
	return v.update(func(s *State) { s.SearchText = text })
}

// SetType sets the category filter. Empty clears it.
func (v *View) SetType(c models.Category) Page {
	return v.update(func(s *State) { s.TypeFilter = c })
}

// SetDate sets the upload-day filter (YYYY-MM-DD). Empty clears it.
func (v *View) SetDate(day string) (Page, error) {
	day = strings.TrimSpace(day)
	if day != "" {
		if _, err := time.Parse(constants.DayLayout, day); err != nil {
			return v.Current(), fmt.Errorf("invalid date filter %q: want YYYY-MM-DD", day)
		}
	}
	return v.update(func(s *State) { s.DateFilter = day }), nil
}

// SetSort changes the ordering.
func (v *View) SetSort(key SortKey) Page {
	return v.update(func(s *State) { s.SortKey = key })
}

// SetPageSize changes the page size. Values outside [1, MaxPageSize] are
// rejected.
func (v *View) SetPageSize(size int) (Page, error) {
	if size < 1 || size > constants.MaxPageSize {
		return v.Current(), fmt.Errorf("page size %d out of range [1, %d]", size, constants.MaxPageSize)
	}
	return v.update(func(s *State) { s.PageSize = size }), nil
}

// GoTo requests a page; out-of-range requests are clamped.
func (v *View) GoTo(index int) Page {
	return v.update(func(s *State) { s.PageIndex = index })
}

// Next moves forward one page if there is one.
func (v *View) Next() Page {
	return v.update(func(s *State) { s.PageIndex++ })
}

// Prev moves back one page if there is one.
func (v *View) Prev() Page {
	return v.update(func(s *State) { s.PageIndex-- })
}

// Reset restores DefaultState, keeping the page size.
func (v *View) Reset() Page {
	return v.update(func(s *State) {
		size := s.PageSize
		*s = DefaultState()
		s.PageSize = size
	})
}
