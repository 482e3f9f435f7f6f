package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultlink/vaultlink/internal/catalog"
	"github.com/vaultlink/vaultlink/internal/errs"
	"github.com/vaultlink/vaultlink/internal/models"
	"github.com/vaultlink/vaultlink/internal/query"
	"github.com/vaultlink/vaultlink/internal/session"
	strutil "github.com/vaultlink/vaultlink/internal/util/strings"
)

// newFilesCmd creates the 'files' command group.
func newFilesCmd() *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Browse and manage remote files",
		Long: `Commands for the remote file catalog.

Commands:
  list    - Search, filter, sort and page through your files
  info    - Show one file
  delete  - Delete files`,
	}

	filesCmd.AddCommand(newFilesListCmd())
	filesCmd.AddCommand(newFilesInfoCmd())
	filesCmd.AddCommand(newFilesDeleteCmd())

	return filesCmd
}

// queryFlags are the catalog query flags shared by list and download.
type queryFlags struct {
	search   string
	fileType string
	date     string
	sortKey  string
	page     int
	pageSize int
}

func (q *queryFlags) bind(cmd *cobra.Command, withPaging bool) {
	cmd.Flags().StringVarP(&q.search, "search", "s", "", "Case-insensitive name filter")
	cmd.Flags().StringVarP(&q.fileType, "type", "t", "", "Category filter: "+categoryNames())
	cmd.Flags().StringVar(&q.date, "date", "", "Upload day filter (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.sortKey, "sort", string(query.SortDate), "Sort by: date, size, downloads, name")
	if withPaging {
		cmd.Flags().IntVarP(&q.page, "page", "p", 1, "Page number (clamped to the last page)")
		cmd.Flags().IntVar(&q.pageSize, "page-size", 0, "Files per page (default from config)")
	}
}

// filtered reports whether any filter flag was given.
func (q *queryFlags) filtered() bool {
	return q.search != "" || q.fileType != "" || q.date != ""
}

// apply sets the flags on view. Paging is applied last so the requested
// page is clamped against the filtered result.
func (q *queryFlags) apply(view *query.View, defaultPageSize int) (query.Page, error) {
	category, ok := models.ParseCategory(q.fileType)
	if !ok {
		return query.Page{}, fmt.Errorf("unknown file type %q (use one of %s)", q.fileType, categoryNames())
	}
	key, err := query.ParseSortKey(q.sortKey)
	if err != nil {
		return query.Page{}, err
	}
	size := q.pageSize
	if size == 0 {
		size = defaultPageSize
	}
	if _, err := view.SetPageSize(size); err != nil {
		return query.Page{}, err
	}
	if _, err := view.SetDate(q.date); err != nil {
		return query.Page{}, err
	}
	view.SetSearch(q.search)
	view.SetType(category)
	view.SetSort(key)

	page := q.page
	if page == 0 {
		page = 1
	}
	return view.GoTo(page), nil
}

func categoryNames() string {
	names := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

// fileRow is one catalog entry as printed.
type fileRow struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Size      string `json:"size" yaml:"size"`
	Bytes     string `json:"bytes" yaml:"bytes"`
	Downloads string `json:"downloads" yaml:"downloads"`
	Uploaded  string `json:"uploaded" yaml:"uploaded"`
	Day       string `json:"day" yaml:"day"`
	Uploader  string `json:"uploader" yaml:"uploader"`
	Status    string `json:"status" yaml:"status"`
	Hash      string `json:"hash,omitempty" yaml:"hash,omitempty"`
}

func newFileRow(e catalog.Entry, loc *time.Location) fileRow {
	return fileRow{
		ID:        e.Record.ID,
		Name:      e.Record.Name,
		Type:      string(e.Category),
		Size:      strutil.FormatBytes(e.Size.Float64()),
		Bytes:     e.Size.String(),
		Downloads: e.Downloads.String(),
		Uploaded:  e.UploadedAt().In(loc).Format("2006-01-02 15:04:05"),
		Day:       e.UploadDay(loc),
		Uploader:  e.Record.Uploader,
		Status:    string(e.Record.Status),
		Hash:      e.Record.Hash,
	}
}

// listOutput is the structured form of one result page.
type listOutput struct {
	Files         []fileRow `json:"files" yaml:"files"`
	Page          int       `json:"page" yaml:"page"`
	PageSize      int       `json:"page_size" yaml:"page_size"`
	TotalPages    int       `json:"total_pages" yaml:"total_pages"`
	TotalFiltered int       `json:"total_filtered" yaml:"total_filtered"`
	TotalCount    int       `json:"total_count" yaml:"total_count"`
}

// newFilesListCmd creates the 'files list' command.
func newFilesListCmd() *cobra.Command {
	var q queryFlags
	var downloadable bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List files in the catalog",
		Long: `List files from the remote catalog, one page at a time.

Filters combine: a file is shown only when it matches the search text,
the type and the upload day. Sorting is applied after filtering.

Examples:
  vaultlink files list
  vaultlink files list --search report --type pdf --sort size
  vaultlink files list --date 2024-05-01 --page 2 --page-size 50
  vaultlink files list --downloadable --type code -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, cfg, session.OpBrowse)
			if err != nil {
				return err
			}
			defer e.close()

			if _, err := e.refresh(GetContext()); err != nil {
				return err
			}

			view := query.NewCatalogView(e.store, e.loc)
			if downloadable {
				view = query.NewDownloadView(e.store, e.loc)
			}
			page, err := q.apply(view, cfg.Query.PageSize)
			if err != nil {
				return err
			}
			return printPage(out, page, e.loc)
		},
	}

	q.bind(cmd, true)
	cmd.Flags().BoolVar(&downloadable, "downloadable", false, "Only active files, matched against the unified type table")

	return cmd
}

func printPage(out *printer, page query.Page, loc *time.Location) error {
	rows := make([]fileRow, 0, len(page.Items))
	for _, e := range page.Items {
		rows = append(rows, newFileRow(e, loc))
	}
	if ok, err := out.structured(listOutput{
		Files:         rows,
		Page:          page.PageIndex,
		PageSize:      page.PageSize,
		TotalPages:    page.TotalPages,
		TotalFiltered: page.TotalFiltered,
		TotalCount:    page.TotalCount,
	}); ok {
		return err
	}

	if page.TotalFiltered == 0 {
		if page.TotalCount == 0 {
			fmt.Fprintln(out.w, "No files.")
		} else {
			fmt.Fprintf(out.w, "No files match (%d %s in catalog).\n", page.TotalCount, strutil.Pluralize("file", int64(page.TotalCount)))
		}
		return nil
	}

	tw := out.table()
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tDOWNLOADS\tUPLOADED\tSTATUS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Type, r.Size, r.Downloads, r.Uploaded, r.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out.w, "\nPage %d of %d (%d matching, %d %s total)\n",
		page.PageIndex, page.TotalPages, page.TotalFiltered, page.TotalCount, strutil.Pluralize("file", int64(page.TotalCount)))
	return nil
}

// newFilesInfoCmd creates the 'files info' command.
func newFilesInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file-id>",
		Short: "Show details of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, cfg, session.OpBrowse)
			if err != nil {
				return err
			}
			defer e.close()

			snap, err := e.refresh(GetContext())
			if err != nil {
				return err
			}
			entry, ok := snap.Find(args[0])
			if !ok {
				return &errs.NotFoundError{Kind: "file", ID: args[0]}
			}

			row := newFileRow(entry, e.loc)
			if ok, err := out.structured(row); ok {
				return err
			}
			tw := out.table()
			fmt.Fprintf(tw, "ID:\t%s\n", row.ID)
			fmt.Fprintf(tw, "Name:\t%s\n", row.Name)
			fmt.Fprintf(tw, "Type:\t%s\n", row.Type)
			fmt.Fprintf(tw, "Size:\t%s (%s bytes)\n", row.Size, row.Bytes)
			fmt.Fprintf(tw, "Downloads:\t%s\n", row.Downloads)
			fmt.Fprintf(tw, "Uploaded:\t%s by %s\n", row.Uploaded, row.Uploader)
			fmt.Fprintf(tw, "Status:\t%s\n", row.Status)
			fmt.Fprintf(tw, "SHA-256:\t%s\n", row.Hash)
			return tw.Flush()
		},
	}
	return cmd
}

// newFilesDeleteCmd creates the 'files delete' command.
func newFilesDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <file-id> [file-id...]",
		Aliases: []string{"rm"},
		Short:   "Delete remote files",
		Long: `Delete files from the storage service. The catalog is reloaded after
each deletion.

Use --force to skip the confirmation prompt.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, cfg, session.OpBrowse)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := GetContext()
			snap, err := e.refresh(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			svc := e.catalogService()
			ask := newPrompter(cmd)
			failed := 0
			for _, id := range args {
				entry, ok := snap.Find(id)
				if !ok {
					fmt.Fprintf(w, "✗ %s: not found\n", id)
					failed++
					continue
				}
				if !force {
					yes, err := ask.confirm(fmt.Sprintf("Delete %s (%s)?", entry.Record.Name, id))
					if err != nil {
						return err
					}
					if !yes {
						fmt.Fprintf(w, "- %s skipped\n", entry.Record.Name)
						continue
					}
				}

				snap, err = svc.Delete(ctx, e.sess.Username(), id)
				if err != nil {
					e.logger.Error().Err(err).Str("file_id", id).Msg("delete failed")
					e.center.Error(fmt.Sprintf("delete of %s failed", entry.Record.Name))
					fmt.Fprintf(w, "✗ %s: %v\n", entry.Record.Name, err)
					failed++
					continue
				}
				fmt.Fprintf(w, "✓ deleted %s (%s)\n", entry.Record.Name, id)
			}

			fmt.Fprintf(w, "%d %s remaining\n", snap.TotalCount, strutil.Pluralize("file", int64(snap.TotalCount)))
			if failed > 0 {
				return fmt.Errorf("%d of %d deletions failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete without asking")
	return cmd
}

// statsOutput is the catalog summary.
type statsOutput struct {
	TotalFiles     int    `json:"total_files" yaml:"total_files"`
	TotalSize      string `json:"total_size" yaml:"total_size"`
	TotalBytes     string `json:"total_bytes" yaml:"total_bytes"`
	TotalDownloads string `json:"total_downloads" yaml:"total_downloads"`
	AverageSize    string `json:"average_size" yaml:"average_size"`
	AverageBytes   int64  `json:"average_bytes" yaml:"average_bytes"`
}

// newStatsCmd creates the 'stats' command.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog totals",
		Long:  `Show the number of files, total storage, total downloads and average file size.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, cfg, session.OpBrowse)
			if err != nil {
				return err
			}
			defer e.close()

			snap, err := e.refresh(GetContext())
			if err != nil {
				return err
			}

			stats := statsOutput{
				TotalFiles:     snap.TotalCount,
				TotalSize:      strutil.FormatBytes(snap.TotalSize.Float64()),
				TotalBytes:     snap.TotalSize.String(),
				TotalDownloads: snap.TotalDownloads.String(),
				AverageSize:    strutil.FormatBytes(snap.AverageSize),
				AverageBytes:   int64(snap.AverageSize),
			}
			if ok, err := out.structured(stats); ok {
				return err
			}

			tw := out.table()
			fmt.Fprintf(tw, "Total files:\t%d\n", stats.TotalFiles)
			fmt.Fprintf(tw, "Total storage:\t%s\n", stats.TotalSize)
			fmt.Fprintf(tw, "Total downloads:\t%s\n", stats.TotalDownloads)
			fmt.Fprintf(tw, "Average size:\t%s\n", stats.AverageSize)
			return tw.Flush()
		},
	}
}
