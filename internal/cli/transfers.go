package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vaultlink/vaultlink/internal/bridge"
	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/localfs"
	"github.com/vaultlink/vaultlink/internal/metrics"
	"github.com/vaultlink/vaultlink/internal/pathutil"
	"github.com/vaultlink/vaultlink/internal/progress"
	"github.com/vaultlink/vaultlink/internal/query"
	"github.com/vaultlink/vaultlink/internal/session"
	"github.com/vaultlink/vaultlink/internal/transfer"
	strutil "github.com/vaultlink/vaultlink/internal/util/strings"
)

// closeTimeout bounds how long we wait for cancelled transfers to return.
const closeTimeout = 10 * time.Second

// transferFlags are shared by upload and download.
type transferFlags struct {
	maxConcurrent int
	retries       int
	timeout       time.Duration
}

func (f *transferFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.maxConcurrent, "max-concurrent", "m", 0,
		fmt.Sprintf("Maximum concurrent transfers (1-%d, default from config)", constants.MaxMaxConcurrent))
	cmd.Flags().IntVar(&f.retries, "retries", 0, "Retry a failed transfer up to this many times")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-attempt timeout, 0 disables (default from config)")
}

// resolve fills unset flags from cfg and checks ranges.
func (f *transferFlags) resolve(cmd *cobra.Command, cfg *config.Config) error {
	if f.maxConcurrent == 0 {
		f.maxConcurrent = cfg.Transfer.MaxConcurrent
	}
	if f.maxConcurrent < 1 || f.maxConcurrent > constants.MaxMaxConcurrent {
		return fmt.Errorf("--max-concurrent must be between 1 and %d, got %d", constants.MaxMaxConcurrent, f.maxConcurrent)
	}
	if f.retries < 0 {
		return fmt.Errorf("--retries must not be negative")
	}
	if !cmd.Flags().Changed("timeout") {
		f.timeout = cfg.Transfer.Timeout
	}
	if f.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative")
	}
	return nil
}

// transferResult is one settled transfer as printed.
type transferResult struct {
	Direction string `json:"direction" yaml:"direction"`
	Subject   string `json:"subject" yaml:"subject"`
	State     string `json:"state" yaml:"state"`
	FileID    string `json:"file_id,omitempty" yaml:"file_id,omitempty"`
	Attempts  int    `json:"attempts" yaml:"attempts"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration  string `json:"duration" yaml:"duration"`
}

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var flags transferFlags
	var recursive, hidden bool

	cmd := &cobra.Command{
		Use:   "upload <path> [path...]",
		Short: "Upload files",
		Long: `Upload local files to the storage service.

Several files are uploaded concurrently, each with its own progress bar.
Directories are expanded with --recursive; dot files found while walking
are skipped unless --hidden is given.

Examples:
  vaultlink upload report.pdf
  vaultlink upload *.csv --max-concurrent 8
  vaultlink upload ./results --recursive --retries 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := flags.resolve(cmd, cfg); err != nil {
				return err
			}

			paths, err := localfs.Collect(args, localfs.Options{Recursive: recursive, IncludeHidden: hidden})
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files to upload")
			}

			e, err := newEnv(cmd, cfg, session.OpUpload)
			if err != nil {
				return err
			}
			defer e.close()

			return runTransfers(cmd, out, e, transfer.Upload, paths, flags)
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Upload directory contents recursively")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "Include dot files when walking directories")

	return cmd
}

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var flags transferFlags
	var q queryFlags
	var dir string

	cmd := &cobra.Command{
		Use:   "download [file-id...]",
		Short: "Download files",
		Long: `Download files into the download directory.

Files are given by id, or selected from the downloadable files with
--search, --type and --date. Existing local files are never overwritten;
a second copy is saved as "name (1).ext".

Examples:
  vaultlink download 6650f0c2a1
  vaultlink download --type image --dir ~/Pictures
  vaultlink download --search invoice --date 2024-05-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !q.filtered() {
				return fmt.Errorf("give file ids or at least one of --search, --type, --date")
			}
			if len(args) > 0 && q.filtered() {
				return fmt.Errorf("file ids cannot be combined with --search, --type or --date")
			}

			out, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := flags.resolve(cmd, cfg); err != nil {
				return err
			}
			if dir != "" {
				resolved, err := pathutil.ResolveDownloadDir(dir)
				if err != nil {
					return fmt.Errorf("invalid download directory: %w", err)
				}
				cfg.Session.DownloadDir = resolved
			}

			e, err := newEnv(cmd, cfg, session.OpDownload)
			if err != nil {
				return err
			}
			defer e.close()

			ids := args
			if len(ids) == 0 {
				ids, err = selectDownloads(GetContext(), e, &q)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "No downloadable files match.")
					return nil
				}
			}

			return runTransfers(cmd, out, e, transfer.Download, ids, flags)
		},
	}

	flags.bind(cmd)
	q.bind(cmd, false)
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Download directory (default from config)")

	return cmd
}

// selectDownloads returns the ids of every downloadable file matching q,
// in q's sort order.
func selectDownloads(ctx context.Context, e *env, q *queryFlags) ([]string, error) {
	if _, err := e.refresh(ctx); err != nil {
		return nil, err
	}
	view := query.NewDownloadView(e.store, e.loc)
	page, err := q.apply(view, constants.MaxPageSize)
	if err != nil {
		return nil, err
	}

	var ids []string
	for {
		for _, entry := range page.Items {
			ids = append(ids, entry.Record.ID)
		}
		if !page.HasNext() {
			return ids, nil
		}
		page = view.Next()
	}
}

// runTransfers submits one task per subject, at most flags.maxConcurrent
// at a time, and shows their progress until all settle. Failed tasks are
// retried up to flags.retries times.
func runTransfers(cmd *cobra.Command, out *printer, e *env, dir transfer.Direction, subjects []string, flags transferFlags) error {
	ctx, cancel := context.WithCancel(GetContext())
	defer cancel()

	op := session.OpUpload
	if dir == transfer.Download {
		op = session.OpDownload
	}
	if err := e.prepare(ctx, op); err != nil {
		return err
	}

	provider := bridge.NewProvider(e.client, e.sess, bridge.WithLogger(e.logger))
	sup := transfer.NewSupervisor(provider,
		transfer.WithPrecheck(bridge.Precheck(e.sess)),
		transfer.WithTimeout(flags.timeout),
		transfer.WithLogger(e.logger),
		transfer.WithEventBus(e.bus),
	)
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), closeTimeout)
		defer done()
		if err := sup.Close(closeCtx); err != nil {
			e.logger.Warn().Err(err).Msg("transfers still running at exit")
		}
	}()

	go e.center.Follow(ctx, e.bus)
	e.serveMetrics(ctx, metrics.Sources{Catalog: e.store.Snapshot, Tasks: sup.Stats})

	w := out.progressOutput(cmd)
	show := singleDisplay(w)
	var board *progress.Board
	if len(subjects) > 1 {
		board = progress.NewBoard(w, len(subjects))
		prev := e.logger.Output()
		e.logger.SetOutput(board.Writer())
		defer e.logger.SetOutput(prev)
		show = func(ctx context.Context, sup *transfer.Supervisor, id string) (transfer.Task, error) {
			final := board.Follow(ctx, sup, id)
			return final, ctx.Err()
		}
	}

	results := make([]transfer.Task, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flags.maxConcurrent)
	for i, subject := range subjects {
		i, subject := i, subject
		g.Go(func() error {
			final, err := runOne(gctx, sup, show, dir, subject, flags.retries)
			results[i] = final
			return err
		})
	}
	err := g.Wait()
	if board != nil {
		board.Wait()
	}
	cleared := sup.ClearSettled()
	e.logger.Debug().Int("cleared", cleared).Msg("transfer tasks cleared")
	if err != nil {
		return err
	}

	return report(cmd, out, dir, results)
}

type displayFunc func(ctx context.Context, sup *transfer.Supervisor, id string) (transfer.Task, error)

func singleDisplay(w io.Writer) displayFunc {
	return func(ctx context.Context, sup *transfer.Supervisor, id string) (transfer.Task, error) {
		t, err := sup.Task(id)
		if err != nil {
			return t, err
		}
		return progress.NewBar(w, fmt.Sprintf("%s %s", t.Direction, progress.Label(t))).Follow(ctx, sup, id)
	}
}

// runOne submits subject and follows it, retrying failures. A submit
// error, such as missing configuration, is returned and stops the batch;
// transfer failures are reported through the returned task.
func runOne(ctx context.Context, sup *transfer.Supervisor, show displayFunc, dir transfer.Direction, subject string, retries int) (transfer.Task, error) {
	id, err := sup.Submit(dir, subject)
	if err != nil {
		return transfer.Task{Direction: dir, Subject: subject, State: transfer.StateFailed, Reason: err.Error()}, err
	}

	for {
		final, err := show(ctx, sup, id)
		if err != nil {
			_ = sup.Cancel(id)
			return final, err
		}
		if final.State != transfer.StateFailed || final.Attempt > retries {
			return final, nil
		}
		if err := sup.Retry(id); err != nil {
			return final, err
		}
	}
}

// report prints the outcome of a batch and returns an error when any
// transfer did not succeed.
func report(cmd *cobra.Command, out *printer, dir transfer.Direction, results []transfer.Task) error {
	rows := make([]transferResult, 0, len(results))
	succeeded := 0
	for _, t := range results {
		if t.State == transfer.StateSucceeded {
			succeeded++
		}
		rows = append(rows, transferResult{
			Direction: string(dir),
			Subject:   t.Subject,
			State:     string(t.State),
			FileID:    t.FileID,
			Attempts:  t.Attempt,
			Reason:    t.Reason,
			Duration:  t.Duration().Round(time.Millisecond).String(),
		})
	}

	if ok, err := out.structured(rows); ok && err != nil {
		return err
	} else if !ok && len(results) > 1 {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d %ss succeeded\n", succeeded, len(results), dir)
	}

	if failed := len(results) - succeeded; failed > 0 {
		return fmt.Errorf("%d %s %s", failed, strutil.Pluralize(string(dir), int64(failed)), "did not complete")
	}
	return nil
}
