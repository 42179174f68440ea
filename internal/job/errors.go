package job

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrAlreadyRunning is returned by Start when a run of the same job type
	// is active in this process or holds the persisted lease.
	ErrAlreadyRunning = eris.New("job: already running")
	// ErrUnknownJobType is returned for job types other than price_refresh
	// and discovery_sync.
	ErrUnknownJobType = eris.New("job: unknown job type")

	errNoListingURLs = eris.New("no listing urls configured")
)

// staleMessage is the lastError reported for a running row whose owner
// stopped heartbeating.
const staleMessage = "stale: job owner stopped heartbeating"

// SetupError is a failure before any item was processed. It is the only
// kind of error that ends a run in the error state.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return "job: setup " + e.Op + ": " + e.Err.Error()
}

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetupError reports whether err is (or wraps) a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
