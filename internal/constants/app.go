package constants

import (
	"time"
)

// Query defaults
const (
	// DefaultPageSize - number of catalog rows per page when none is configured
	DefaultPageSize = 20

	// MaxPageSize - upper bound accepted from flags and config
	MaxPageSize = 1000

	// DayLayout - calendar-day format used by the date filter
	DayLayout = "2006-01-02"
)

// Counter wire format
const (
	// CounterWidth - hex digits in a fully padded wire counter (192 bits)
	CounterWidth = 48

	// CounterBlockSize - hex digits per space-separated block
	CounterBlockSize = 8
)

// Progress display smoothing
const (
	// ProgressSmoothingSteps - number of discrete steps between two reported values
	ProgressSmoothingSteps = 10

	// ProgressSmoothingInterval - time between two smoothing steps (300ms total)
	ProgressSmoothingInterval = 30 * time.Millisecond

	// ProgressBarRefresh - terminal redraw rate for multi-transfer boards
	ProgressBarRefresh = 150 * time.Millisecond
)

// Transfer supervisor
const (
	// DefaultMaxConcurrent - parallel transfers in batch commands
	DefaultMaxConcurrent = 5

	// MaxMaxConcurrent - cap on --max-concurrent
	MaxMaxConcurrent = 32

	// DefaultTransferTimeout - zero disables the per-attempt timeout
	DefaultTransferTimeout = time.Duration(0)

	// WatchBuffer - per-task progress channel capacity
	WatchBuffer = 64
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for transient API errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second
)

// HTTP client
const (
	HTTPDialTimeout           = 30 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second
	HTTPResponseHeaderTimeout = 60 * time.Second

	// DefaultAPITimeout - overall timeout for catalog and parameter calls
	DefaultAPITimeout = 60 * time.Second
)

// Caches
const (
	// SystemParamsTTL - how long fetched system parameters stay valid
	SystemParamsTTL = 10 * time.Minute

	// FileDetailCacheSize - entries kept in the file detail cache
	FileDetailCacheSize = 256

	// FileDetailTTL - lifetime of a cached file detail
	FileDetailTTL = 2 * time.Minute
)

// Notifications
const (
	// NotificationTTL - lifetime of a notification before auto-dismiss
	NotificationTTL = 3 * time.Second
)

// Event bus buffers
const (
	// EventBusDefaultBuffer - channel capacity per subscriber
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - upper bound for requested buffer sizes
	EventBusMaxBuffer = 10000
)

// Local files
const (
	// PartialFilePattern - temp files a download is written to before it
	// gets its final name
	PartialFilePattern = ".vaultlink-*.part"
)
