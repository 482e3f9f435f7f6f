// Package errs defines the error taxonomy shared by the catalog, query and
// transfer packages.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not allowed from the
	// current task state (for example retrying a running task).
	ErrInvalidState = errors.New("invalid state")

	// ErrNoSession is returned when an operation needs a session and none is set.
	ErrNoSession = errors.New("no active session")
)

// FormatError reports a malformed wire counter.
type FormatError struct {
	Input string
	Pos   int  // byte offset of the first offending character
	Char  rune // offending character
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed counter %q: invalid character %q at offset %d", e.Input, e.Char, e.Pos)
}

// NotFoundError references an unknown task or record id.
type NotFoundError struct {
	Kind string // "task" or "record"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold for any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransferError is a provider-reported upload or download failure.
type TransferError struct {
	Reason string
	Err    error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer failed: %s: %v", e.Reason, e.Err)
	}
	return "transfer failed: " + e.Reason
}

func (e *TransferError) Unwrap() error { return e.Err }

// ConfigError lists every required parameter that is missing before an
// operation can be attempted.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// IsFormatError reports whether err wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsNotFound reports whether err wraps a *NotFoundError or ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// TransferReason extracts the reason of a wrapped *TransferError. For any
// other non-nil error it returns the error text.
func TransferReason(err error) string {
	if err == nil {
		return ""
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Reason
	}
	return err.Error()
}
