// Package progress renders transfer tasks in the terminal: a single
// progressbar for one task, an mpb board for several. Both read task
// copies from the supervisor and fall back to plain lines when the output
// is not a terminal.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/transfer"
)

// Source is what the renderers need from the supervisor.
type Source interface {
	Task(id string) (transfer.Task, error)
	Watch(id string) (<-chan transfer.Task, error)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !term.IsTerminal(int(f.Fd())) {
		return false
	}
	enableANSI(f)
	return true
}

// follow calls fn with every fresh copy of task id until it settles or ctx
// is done, and returns the last copy seen. Watch updates are merged with a
// periodic poll so the smoothed percentage keeps moving between reports.
func follow(ctx context.Context, src Source, id string, fn func(transfer.Task)) (transfer.Task, error) {
	updates, err := src.Watch(id)
	if err != nil {
		return transfer.Task{}, err
	}

	ticker := time.NewTicker(constants.ProgressBarRefresh)
	defer ticker.Stop()

	var last transfer.Task
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()

		case t, ok := <-updates:
			if !ok {
				// Closed on success, cancel or dismiss; fetch the final copy if
				// the task is still tracked.
				if final, err := src.Task(id); err == nil {
					last = final
				} else if last.State == transfer.StateRunning || last.State == transfer.StateQueued {
					last.State = transfer.StateCancelled
				}
				fn(last)
				return last, nil
			}
			last = t
			fn(t)
			if t.State == transfer.StateFailed {
				return t, nil
			}

		case <-ticker.C:
			t, err := src.Task(id)
			if err != nil {
				continue
			}
			last = t
			fn(t)
			if t.State.Settled() {
				return t, nil
			}
		}
	}
}

// Bar shows one task with a progressbar/v3 bar.
type Bar struct {
	w     io.Writer
	tty   bool
	label string
}

// NewBar creates a bar writing to w.
func NewBar(w io.Writer, label string) *Bar {
	return &Bar{w: w, tty: IsTerminal(w), label: label}
}

// Follow renders task id until it settles and returns its final copy.
func (b *Bar) Follow(ctx context.Context, src Source, id string) (transfer.Task, error) {
	if !b.tty {
		return b.followPlain(ctx, src, id)
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(b.label),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(constants.ProgressBarRefresh),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)

	final, err := follow(ctx, src, id, func(t transfer.Task) {
		if t.Message != "" {
			bar.Describe(fmt.Sprintf("%s (%s)", b.label, t.Message))
		}
		_ = bar.Set(t.Displayed)
	})
	if final.State == transfer.StateSucceeded {
		_ = bar.Finish()
	} else {
		_ = bar.Exit()
	}
	fmt.Fprintln(b.w, summary(final))
	return final, err
}

// followPlain prints one line per reported stage.
func (b *Bar) followPlain(ctx context.Context, src Source, id string) (transfer.Task, error) {
	lastPct := -1
	final, err := follow(ctx, src, id, func(t transfer.Task) {
		if t.Progress != lastPct && t.State == transfer.StateRunning {
			lastPct = t.Progress
			fmt.Fprintf(b.w, "%s: %3d%% %s\n", b.label, t.Progress, t.Message)
		}
	})
	fmt.Fprintln(b.w, summary(final))
	return final, err
}

// summary is the line printed once a task settles.
func summary(t transfer.Task) string {
	name := Label(t)
	switch t.State {
	case transfer.StateSucceeded:
		if t.FileID != "" {
			return fmt.Sprintf("✓ %s %s (id %s, %s)", t.Direction, name, t.FileID, t.Duration().Round(time.Millisecond))
		}
		return fmt.Sprintf("✓ %s %s (%s)", t.Direction, name, t.Duration().Round(time.Millisecond))
	case transfer.StateFailed:
		return fmt.Sprintf("✗ %s %s: %s (attempt %d)", t.Direction, name, t.Message, t.Attempt)
	case transfer.StateCancelled:
		return fmt.Sprintf("- %s %s cancelled", t.Direction, name)
	default:
		return fmt.Sprintf("%s %s: %s", t.Direction, name, t.State)
	}
}

// Label is the short display name of a task's subject.
func Label(t transfer.Task) string {
	if t.Direction == transfer.Upload {
		return truncatePath(t.Subject, 2)
	}
	return t.Subject
}

// truncatePath keeps the last n components of a path.
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, n int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= n {
		return filepath.Base(path)
	}
	return "…/" + strings.Join(parts[len(parts)-n:], "/")
}
