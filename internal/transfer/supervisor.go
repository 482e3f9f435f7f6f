package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/errs"
	"github.com/vaultlink/vaultlink/internal/events"
	"github.com/vaultlink/vaultlink/internal/logging"
)

// ProgressFunc receives percent (0-100) and a status message from a provider.
type ProgressFunc func(percent int, message string)

// Provider performs the actual transfers. Implementations should return
// promptly once ctx is cancelled.
type Provider interface {
	Upload(ctx context.Context, localPath string, progress ProgressFunc) (fileID string, err error)
	Download(ctx context.Context, fileID string, progress ProgressFunc) error
}

// Precheck validates the required configuration before a provider call. It
// should return an *errs.ConfigError listing what is missing.
type Precheck func(Direction) error

// task is the tracked, mutable form of Task. All fields are guarded by the
// supervisor mutex.
type task struct {
	Task

	gen      int                // attempt generation, bumped on each start
	cancel   context.CancelFunc // cancels the current attempt
	done     chan struct{}      // closed when the current attempt's provider call returns
	smooth   smoothing
	changed  chan struct{} // closed and replaced on every state change
	watchers []chan Task
}

func (t *task) snapshot(now time.Time) Task {
	out := t.Task
	if t.State == StateRunning {
		out.Displayed = t.smooth.value(t.Progress, now)
	} else {
		out.Displayed = t.Progress
	}
	return out
}

// Supervisor creates, tracks and retires transfer tasks. It is safe for
// concurrent use.
type Supervisor struct {
	mu    sync.Mutex
	tasks map[string]*task
	order []string // creation order

	provider Provider
	precheck Precheck
	timeout  time.Duration
	logger   *logging.Logger
	eventBus *events.EventBus
	now      func() time.Time
	newID    func() string

	base     context.Context
	stopBase context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTimeout fails an attempt with reason "timeout" once d elapses. Zero
// disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.timeout = d }
}

// WithPrecheck installs a configuration check run before every provider call.
func WithPrecheck(p Precheck) Option {
	return func(s *Supervisor) { s.precheck = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithEventBus publishes task events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Supervisor) { s.eventBus = bus }
}

// WithClock overrides time.Now, used by tests of progress smoothing.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// ErrClosed is returned by Submit and Retry once Close has been called.
var ErrClosed = errors.New("supervisor is closed")

// NewSupervisor creates a supervisor driving provider.
func NewSupervisor(provider Provider, opts ...Option) *Supervisor {
	base, stop := context.WithCancel(context.Background())
	s := &Supervisor{
		tasks:    make(map[string]*task),
		provider: provider,
		timeout:  constants.DefaultTransferTimeout,
		now:      time.Now,
		newID:    uuid.NewString,
		base:     base,
		stopBase: stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Component("transfer")
	return s
}

// Submit creates a task and starts it. The id is returned immediately; the
// transfer proceeds in the background.
func (s *Supervisor) Submit(dir Direction, subject string) (string, error) {
	if _, err := ParseDirection(string(dir)); err != nil {
		return "", err
	}
	if subject == "" {
		return "", fmt.Errorf("%s requires a subject", dir)
	}
	if s.precheck != nil {
		if err := s.precheck(dir); err != nil {
			return "", err
		}
	}

	now := s.now()
	t := &task{
		Task: Task{
			ID:        s.newID(),
			Direction: dir,
			Subject:   subject,
			State:     StateQueued,
			Message:   "queued",
			CreatedAt: now,
		},
		changed: make(chan struct{}),
	}

	s.mu.Lock()
	if s.base.Err() != nil {
		s.mu.Unlock()
		return "", ErrClosed
	}
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	s.publish(events.EventTransferQueued, t, nil)
	s.start(t)
	s.mu.Unlock()

	s.logger.Info().Str("task_id", t.ID).Str("direction", string(dir)).Str("subject", subject).Msg("transfer submitted")
	return t.ID, nil
}

// start moves t to Running and launches a new attempt. Caller holds s.mu.
func (s *Supervisor) start(t *task) {
	prev := t.done

	ctx, cancel := context.WithCancel(s.base)

	t.gen++
	t.Attempt++
	t.cancel = cancel
	t.done = make(chan struct{})
	t.Progress = 0
	t.Reason = ""
	t.Message = "starting"
	t.StartedAt = s.now()
	t.CompletedAt = time.Time{}
	t.smooth = smoothing{at: t.StartedAt}
	s.transition(t, StateRunning)
	s.publish(events.EventTransferStarted, t, nil)

	s.wg.Add(1)
	go s.run(ctx, cancel, t, t.gen, prev, t.done)
}

// run executes one attempt. A retry waits for the previous attempt's
// provider call to return before issuing its own; the timeout only starts
// once the provider is invoked.
func (s *Supervisor) run(ctx context.Context, cancel context.CancelFunc, t *task, gen int, prev <-chan struct{}, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	defer cancel()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	if s.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, s.timeout)
		defer stop()
	}

	result := make(chan Outcome, 1)
	go func() {
		result <- s.invoke(ctx, t.Direction, t.Subject, func(percent int, message string) {
			s.report(t.ID, gen, percent, message)
		})
	}()

	select {
	case out := <-result:
		if out.Err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.Err = failure("timeout", out.Err)
		}
		s.finish(t.ID, gen, out)
	case <-ctx.Done():
		s.expire(ctx, t.ID, gen)
		// Hold done until the provider call returns.
		<-result
	}
}

// expire fails the attempt when its deadline passed. Cancellation through
// Cancel or Complete has already settled the task.
func (s *Supervisor) expire(ctx context.Context, id string, gen int) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.finish(id, gen, Outcome{Err: failure("timeout", ctx.Err())})
	}
}

func (s *Supervisor) invoke(ctx context.Context, dir Direction, subject string, progress ProgressFunc) Outcome {
	switch dir {
	case Upload:
		fileID, err := s.provider.Upload(ctx, subject, progress)
		return Outcome{FileID: fileID, Err: err}
	default:
		return Outcome{Err: s.provider.Download(ctx, subject, progress)}
	}
}

// failure wraps err as a TransferError unless it already is one.
func failure(reason string, err error) error {
	var te *errs.TransferError
	if err != nil && errors.As(err, &te) {
		return err
	}
	return &errs.TransferError{Reason: reason, Err: err}
}

// finish applies an attempt result unless the attempt has been superseded
// or the task already left Running.
func (s *Supervisor) finish(id string, gen int, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.gen != gen || t.State != StateRunning {
		s.logger.Debug().Str("task_id", id).Int("attempt", gen).Msg("ignoring completion of abandoned attempt")
		return
	}
	s.settle(t, out)
}

// settle moves a running task to Succeeded or Failed. Caller holds s.mu.
func (s *Supervisor) settle(t *task, out Outcome) {
	t.CompletedAt = s.now()
	if out.Err == nil {
		t.Progress = 100
		t.FileID = out.FileID
		t.Message = "completed"
		s.transition(t, StateSucceeded)
		s.publish(events.EventTransferSucceeded, t, nil)
		s.logger.Info().Str("task_id", t.ID).Str("file_id", out.FileID).Dur("took", t.CompletedAt.Sub(t.StartedAt)).Msg("transfer succeeded")
		s.closeWatchers(t)
		return
	}

	err := failure(errs.TransferReason(out.Err), out.Err)
	t.Reason = errs.TransferReason(err)
	t.Message = err.Error()
	s.transition(t, StateFailed)
	s.publish(events.EventTransferFailed, t, err)
	s.logger.Error().Err(err).Str("task_id", t.ID).Int("attempt", t.Attempt).Msg("transfer failed")
}

// Complete settles a running task with outcome. The attempt's context is
// cancelled and any later result from its provider call is ignored.
func (s *Supervisor) Complete(id string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return &errs.NotFoundError{Kind: "task", ID: id}
	}
	if t.State != StateRunning {
		return fmt.Errorf("complete task %s in state %s: %w", id, t.State, errs.ErrInvalidState)
	}
	t.cancel()
	s.settle(t, outcome)
	return nil
}

// ReportProgress records progress for a running task. Reports for tasks in
// any other state are ignored. percent is clamped to [0,100] and never moves
// backwards within one attempt.
func (s *Supervisor) ReportProgress(id string, percent int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[id]; ok {
		s.applyProgress(t, percent, message)
	}
}

func (s *Supervisor) report(id string, gen int, percent int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[id]; ok && t.gen == gen {
		s.applyProgress(t, percent, message)
	}
}

// applyProgress caller holds s.mu.
func (s *Supervisor) applyProgress(t *task, percent int, message string) {
	if t.State != StateRunning {
		return
	}
	if percent > 100 {
		percent = 100
	}
	now := s.now()
	if percent > t.Progress {
		t.smooth = smoothing{from: t.smooth.value(t.Progress, now), at: now}
		t.Progress = percent
	}
	if message != "" {
		t.Message = message
	}
	s.publish(events.EventTransferProgress, t, nil)
	s.notifyWatchers(t, now)
}

// Cancel moves a queued or running task to Cancelled, cancels its attempt
// context and stops tracking it. Unknown or settled tasks are left alone.
func (s *Supervisor) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.State.Settled() {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.CompletedAt = s.now()
	t.Message = "cancelled"
	s.transition(t, StateCancelled)
	s.publish(events.EventTransferCancelled, t, nil)
	s.remove(id)
	s.logger.Info().Str("task_id", id).Msg("transfer cancelled")
	return nil
}

// CancelAll cancels every queued or running task and returns how many were
// cancelled.
func (s *Supervisor) CancelAll() int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if t := s.tasks[id]; !t.State.Settled() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Cancel(id)
	}
	return len(ids)
}

// Retry restarts a failed task with the same subject. Unknown ids are a
// no-op. Any state other than Failed is rejected with errs.ErrInvalidState.
func (s *Supervisor) Retry(id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if t.State != StateFailed {
		state := t.State
		s.mu.Unlock()
		return fmt.Errorf("retry task %s in state %s: %w", id, state, errs.ErrInvalidState)
	}
	dir := t.Direction
	s.mu.Unlock()

	if s.precheck != nil {
		if err := s.precheck(dir); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: the task may have been dismissed or retried meanwhile.
	if t, ok = s.tasks[id]; !ok || t.State != StateFailed {
		return nil
	}
	if s.base.Err() != nil {
		return ErrClosed
	}
	s.logger.Info().Str("task_id", id).Int("attempt", t.Attempt+1).Msg("retrying transfer")
	s.start(t)
	return nil
}

// Dismiss stops tracking a settled task. Running or queued tasks must be
// cancelled instead. Unknown ids are a no-op.
func (s *Supervisor) Dismiss(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	if !t.State.Settled() {
		return fmt.Errorf("dismiss task %s in state %s: %w", id, t.State, errs.ErrInvalidState)
	}
	s.publish(events.EventTransferDismissed, t, nil)
	s.closeWatchers(t)
	s.remove(id)
	return nil
}

// ClearSettled dismisses every succeeded or failed task and returns the count.
func (s *Supervisor) ClearSettled() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range append([]string(nil), s.order...) {
		t := s.tasks[id]
		if t.State.Settled() {
			s.publish(events.EventTransferDismissed, t, nil)
			s.closeWatchers(t)
			s.remove(id)
			n++
		}
	}
	return n
}

// remove caller holds s.mu.
func (s *Supervisor) remove(id string) {
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Task returns a copy of a tracked task.
func (s *Supervisor) Task(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, &errs.NotFoundError{Kind: "task", ID: id}
	}
	return t.snapshot(s.now()), nil
}

// Tasks returns copies of all tracked tasks in creation order.
func (s *Supervisor) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].snapshot(now))
	}
	return out
}

// Stats counts tracked tasks per state.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	for _, t := range s.tasks {
		switch t.State {
		case StateQueued:
			st.Queued++
		case StateRunning:
			st.Running++
		case StateSucceeded:
			st.Succeeded++
		case StateFailed:
			st.Failed++
		case StateCancelled:
			st.Cancelled++
		}
	}
	return st
}

// Watch returns a channel receiving a copy of the task on every progress
// update and state change. The channel is closed when the task succeeds, is
// cancelled or dismissed. Slow readers miss intermediate updates.
func (s *Supervisor) Watch(id string) (<-chan Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "task", ID: id}
	}
	ch := make(chan Task, constants.WatchBuffer)
	ch <- t.snapshot(s.now())
	if t.State.IsTerminal() {
		close(ch)
		return ch, nil
	}
	t.watchers = append(t.watchers, ch)
	return ch, nil
}

// Await blocks until the task leaves Running and returns its final copy.
// A task that failed is returned with a nil error; callers inspect State.
func (s *Supervisor) Await(ctx context.Context, id string) (Task, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return Task{}, &errs.NotFoundError{Kind: "task", ID: id}
	}

	for {
		s.mu.Lock()
		if t.State.Settled() {
			out := t.snapshot(s.now())
			s.mu.Unlock()
			return out, nil
		}
		changed := t.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Task{}, ctx.Err()
		}
	}
}

// Close cancels every unsettled task and waits for provider calls to return
// or ctx to expire. Submit fails afterwards.
func (s *Supervisor) Close(ctx context.Context) error {
	// Stop the base first so no attempt can start after CancelAll has
	// collected the unsettled tasks.
	s.mu.Lock()
	s.stopBase()
	s.mu.Unlock()
	s.CancelAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition caller holds s.mu.
func (s *Supervisor) transition(t *task, to State) {
	t.State = to
	close(t.changed)
	t.changed = make(chan struct{})
	s.notifyWatchers(t, s.now())
	if to == StateCancelled {
		s.closeWatchers(t)
	}
}

func (s *Supervisor) notifyWatchers(t *task, now time.Time) {
	if len(t.watchers) == 0 {
		return
	}
	snap := t.snapshot(now)
	for _, ch := range t.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Supervisor) closeWatchers(t *task) {
	for _, ch := range t.watchers {
		close(ch)
	}
	t.watchers = nil
}

func (s *Supervisor) publish(typ events.EventType, t *task, err error) {
	s.eventBus.Publish(&events.TransferEvent{
		BaseEvent: events.NewBase(typ),
		TaskID:    t.ID,
		Direction: string(t.Direction),
		Subject:   t.Subject,
		State:     string(t.State),
		Progress:  t.Progress,
		Message:   t.Message,
		Attempt:   t.Attempt,
		Error:     err,
	})
}
