// Package query derives filtered, sorted and paginated pages from a catalog
// snapshot. Every call recomputes the page from the full snapshot.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vaultlink/vaultlink/internal/catalog"
	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/models"
)

// SortKey selects the page ordering.
type SortKey string

const (
	SortSize      SortKey = "size"      // largest first
	SortDownloads SortKey = "downloads" // most downloaded first
	SortDate      SortKey = "date"      // most recent first
	SortName      SortKey = "name"      // locale-aware ascending
)

// ParseSortKey validates a sort key. Empty input selects SortDate.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortDate, nil
	case SortSize, SortDownloads, SortDate, SortName:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q (want size, downloads, date or name)", s)
}

// State is the mutable query owned by one view.
type State struct {
	SearchText string
	TypeFilter models.Category // empty matches every category
	DateFilter string          // YYYY-MM-DD, empty matches every day
	SortKey    SortKey
	PageIndex  int // 1-based
	PageSize   int
}

// DefaultState returns the state a fresh view starts with.
func DefaultState() State {
	return State{
		SortKey:   SortDate,
		PageIndex: 1,
		PageSize:  constants.DefaultPageSize,
	}
}

// Page is one slice of the filtered and sorted catalog.
type Page struct {
	Items         []catalog.Entry
	PageIndex     int
	PageSize      int
	TotalFiltered int
	TotalPages    int // 0 when nothing matches
	TotalCount    int // size of the underlying snapshot
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool {
	return p.PageIndex < p.TotalPages
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool {
	return p.PageIndex > 1
}

// Options tune an Engine for a particular screen.
type Options struct {
	// UnifiedCategories folds log into text and markdown into code before
	// comparing with the type filter.
	UnifiedCategories bool

	// DownloadableOnly hides records whose status does not allow download.
	DownloadableOnly bool

	// Location is the zone used to derive the upload day. Nil means UTC.
	Location *time.Location

	// Language drives name collation. The zero tag means language.Und.
	Language language.Tag
}

// Engine applies queries with fixed options. It holds no per-query state and
// is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{opts: opts}
}

// Apply filters, sorts and slices snap according to st. st.PageIndex and
// st.PageSize are normalized in place: PageSize falls back to the default
// when not positive and PageIndex is clamped to [1, max(1, TotalPages)].
func (e *Engine) Apply(snap *catalog.Snapshot, st *State) Page {
	if st.PageSize <= 0 {
		st.PageSize = constants.DefaultPageSize
	}

	var entries []catalog.Entry
	total := 0
	if snap != nil {
		entries = snap.Entries
		total = snap.TotalCount
	}

	filtered := e.filter(entries, st)
	e.sort(filtered, st.SortKey)

	page := Page{
		PageSize:      st.PageSize,
		TotalFiltered: len(filtered),
		TotalPages:    TotalPages(len(filtered), st.PageSize),
		TotalCount:    total,
	}

	st.PageIndex = ClampPage(st.PageIndex, page.TotalPages)
	page.PageIndex = st.PageIndex

	start := (st.PageIndex - 1) * st.PageSize
	end := start + st.PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	if start < end {
		page.Items = filtered[start:end]
	} else {
		page.Items = []catalog.Entry{}
	}
	return page
}

// TotalPages is ceil(n/size), 0 when n is 0.
func TotalPages(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// ClampPage bounds a 1-based page index to [1, max(1, totalPages)].
func ClampPage(index, totalPages int) int {
	if index > totalPages {
		index = totalPages
	}
	if index < 1 {
		index = 1
	}
	return index
}

func (e *Engine) filter(entries []catalog.Entry, st *State) []catalog.Entry {
	needle := strings.ToLower(st.SearchText)
	out := make([]catalog.Entry, 0, len(entries))

	for _, entry := range entries {
		if e.opts.DownloadableOnly && !entry.Record.Status.Downloadable() {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(entry.Record.Name), needle) {
			continue
		}
		if st.TypeFilter != "" && e.category(entry) != e.filterCategory(st.TypeFilter) {
			continue
		}
		if st.DateFilter != "" && entry.UploadDay(e.opts.Location) != st.DateFilter {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (e *Engine) category(entry catalog.Entry) models.Category {
	if e.opts.UnifiedCategories {
		return entry.Category.Unified()
	}
	return entry.Category
}

func (e *Engine) filterCategory(c models.Category) models.Category {
	if e.opts.UnifiedCategories {
		return c.Unified()
	}
	return c
}

func (e *Engine) sort(entries []catalog.Entry, key SortKey) {
	var less func(a, b catalog.Entry) bool

	switch key {
	case SortSize:
		less = func(a, b catalog.Entry) bool { return a.Size.Cmp(b.Size) > 0 }
	case SortDownloads:
		less = func(a, b catalog.Entry) bool { return a.Downloads.Cmp(b.Downloads) > 0 }
	case SortName:
		// Collators keep scratch buffers and are not safe to share.
		col := collate.New(e.opts.Language)
		less = func(a, b catalog.Entry) bool {
			return col.CompareString(a.Record.Name, b.Record.Name) < 0
		}
	default:
		less = func(a, b catalog.Entry) bool { return a.UploadTime.Cmp(b.UploadTime) > 0 }
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
}
