package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/vaultlink/vaultlink/internal/errs"
)

// ErrFileAlreadyExists indicates the server rejected an upload because a
// file with the same name and hash is already stored for the user.
var ErrFileAlreadyExists = errors.New("file already exists")

// APIError is a failed call: either a non-2xx HTTP status or an envelope
// with status "error".
type APIError struct {
	Op         string
	StatusCode int
	Code       int    // envelope error_code, 0 when absent
	Message    string // envelope error_message or raw body excerpt
}

func (e *APIError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s failed: error %d: %s", e.Op, e.Code, e.Message)
	case e.StatusCode != 0 && e.StatusCode != nethttp.StatusOK:
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	}
}

// Is maps 404 responses onto errs.ErrNotFound and duplicate uploads onto
// ErrFileAlreadyExists.
func (e *APIError) Is(target error) bool {
	switch target {
	case errs.ErrNotFound:
		return e.StatusCode == nethttp.StatusNotFound
	case ErrFileAlreadyExists:
		return e.StatusCode == nethttp.StatusConflict || isConflictMessage(e.Message)
	}
	return false
}

// IsFileExistsError checks if an error indicates a duplicate file.
func IsFileExistsError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFileAlreadyExists) {
		return true
	}
	return isConflictMessage(err.Error())
}

func isConflictMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, indicator := range []string{"already exists", "duplicate", "file exists"} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
