package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/transfer"
)

// Board shows several concurrent tasks, one mpb bar each. Summary lines
// are written above the bars.
type Board struct {
	w     io.Writer
	tty   bool
	p     *mpb.Progress
	total int
	wg    sync.WaitGroup

	mu      sync.Mutex
	index   map[string]int
	order   []string
	results map[string]transfer.Task
}

// NewBoard creates a board for total tasks writing to w.
func NewBoard(w io.Writer, total int) *Board {
	b := &Board{
		w:       w,
		tty:     IsTerminal(w),
		total:   total,
		index:   make(map[string]int),
		results: make(map[string]transfer.Task),
	}
	if b.tty {
		b.p = mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(constants.ProgressBarRefresh),
			mpb.WithWidth(80),
		)
	}
	return b
}

// Writer returns a writer that prints above the bars. Loggers should be
// pointed at it while the board is active.
func (b *Board) Writer() io.Writer {
	if b.p != nil {
		return b.p
	}
	return b.w
}

// Track follows task id in the background until it settles.
func (b *Board) Track(ctx context.Context, src Source, id string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Follow(ctx, src, id)
	}()
}

// Follow shows task id until it settles and returns its final copy. Following
// the same id again after a retry reuses its position on the board.
func (b *Board) Follow(ctx context.Context, src Source, id string) transfer.Task {
	b.mu.Lock()
	index, ok := b.index[id]
	if !ok {
		b.order = append(b.order, id)
		index = len(b.order)
		b.index[id] = index
	}
	b.mu.Unlock()

	final := b.run(ctx, src, id, index)

	b.mu.Lock()
	b.results[id] = final
	b.mu.Unlock()
	return final
}

func (b *Board) run(ctx context.Context, src Source, id string, index int) transfer.Task {
	initial, err := src.Task(id)
	if err != nil {
		return transfer.Task{ID: id, State: transfer.StateCancelled}
	}
	name := fmt.Sprintf("[%d/%d] %s %s", index, b.total, initial.Direction, Label(initial))

	if b.p == nil {
		fmt.Fprintf(b.w, "%s started\n", name)
		final, _ := follow(ctx, src, id, func(transfer.Task) {})
		fmt.Fprintln(b.w, summary(final))
		return final
	}

	var attempt atomic.Int32
	var message atomic.Value
	message.Store("")
	bar := b.p.New(100,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				if n := attempt.Load(); n > 1 {
					return fmt.Sprintf("%s (retry %d)", name, n-1)
				}
				return name
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Any(func(decor.Statistics) string {
				return "  " + message.Load().(string)
			}),
		),
		mpb.BarRemoveOnComplete(),
	)

	final, _ := follow(ctx, src, id, func(t transfer.Task) {
		attempt.Store(int32(t.Attempt))
		message.Store(t.Message)
		bar.SetCurrent(int64(t.Displayed))
	})

	if final.State == transfer.StateSucceeded {
		bar.SetCurrent(100)
		bar.SetTotal(100, true)
	} else {
		bar.Abort(false)
	}
	_, _ = b.p.Write([]byte(summary(final) + "\n"))
	return final
}

// Wait blocks until every tracked task settled and the bars are drawn,
// then returns the final task copies in the order tasks joined the board.
func (b *Board) Wait() []transfer.Task {
	b.wg.Wait()
	if b.p != nil {
		b.p.Wait()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]transfer.Task, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.results[id])
	}
	return out
}
