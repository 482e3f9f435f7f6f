// Package transfer supervises asynchronous upload and download tasks.
//
// Each task moves through a small state machine:
//
//	Queued -> Running -> Succeeded | Failed
//	Failed -> Running            (retry)
//	Queued | Running -> Cancelled (cancel)
//
// Succeeded and Cancelled are terminal. A task has at most one provider call
// in flight; completions from an abandoned attempt are ignored.
package transfer

import (
	"fmt"
	"time"

	"github.com/vaultlink/vaultlink/internal/constants"
)

// Direction indicates whether a task is an upload or download.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Upload, Download:
		return d, nil
	}
	return "", fmt.Errorf("unknown transfer direction %q", s)
}

// State represents the current state of a transfer task.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateCancelled
}

// Settled reports whether the task is not (or no longer) doing work.
func (s State) Settled() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Task is a point-in-time copy of a tracked task.
type Task struct {
	ID        string
	Direction Direction
	Subject   string // local path (upload) or remote file id (download)
	State     State
	Progress  int // last reported percent, 0-100
	Displayed int // smoothed percent for display, never above Progress
	Message   string
	Reason    string // failure reason while Failed
	FileID    string // remote id returned by a successful upload
	Attempt   int

	CreatedAt   time.Time
	StartedAt   time.Time // start of the current attempt
	CompletedAt time.Time
}

// CanRetry reports whether Retry would be accepted.
func (t Task) CanRetry() bool {
	return t.State == StateFailed
}

// Duration returns the run time of the latest attempt.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if t.CompletedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// Stats counts tracked tasks per state.
type Stats struct {
	Queued    int
	Running   int
	Succeeded int
	Failed    int
	Cancelled int // cancelled tasks still tracked (normally zero)
}

// Total returns the number of tracked tasks.
func (s Stats) Total() int {
	return s.Queued + s.Running + s.Succeeded + s.Failed + s.Cancelled
}

// Outcome is the result handed to Complete.
type Outcome struct {
	FileID string
	Err    error // nil for success
}

// Succeeded builds a success outcome.
func Succeeded(fileID string) Outcome {
	return Outcome{FileID: fileID}
}

// Failed builds a failure outcome with a reason.
func Failed(reason string) Outcome {
	return Outcome{Err: failure(reason, nil)}
}

// smoothing interpolates displayed progress from the value shown when the
// last report arrived to the reported value over a fixed number of steps.
type smoothing struct {
	from int
	at   time.Time
}

func (sm smoothing) value(target int, now time.Time) int {
	if target <= sm.from {
		return target
	}
	steps := int(now.Sub(sm.at) / constants.ProgressSmoothingInterval)
	if steps >= constants.ProgressSmoothingSteps {
		return target
	}
	if steps < 0 {
		steps = 0
	}
	return sm.from + (target-sm.from)*steps/constants.ProgressSmoothingSteps
}
