package scrape

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// FailureKind classifies why a page could not be extracted.
type FailureKind string

const (
	// KindFetch is a transport failure or non-2xx from the extraction service.
	KindFetch FailureKind = "fetch"
	// KindService is a service-reported failure (success:false).
	KindService FailureKind = "service"
	// KindBlocked is an anti-bot page returned in place of content.
	KindBlocked FailureKind = "blocked"
	// KindParse means the page rendered but a required field was missing.
	KindParse FailureKind = "parse"
	// KindExcluded means the URL matched an exclude pattern and was not fetched.
	KindExcluded FailureKind = "excluded"
)

// ErrMissingTitle is returned when no title strategy matched.
var ErrMissingTitle = eris.New("no title found")

var errExcluded = eris.New("url excluded by path pattern")

// ExtractionFailed is returned for any per-page failure. It is never fatal to
// a batch.
type ExtractionFailed struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Err        error
}

func (e *ExtractionFailed) Error() string {
	msg := fmt.Sprintf("scrape: %s failure for %s", e.Kind, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionFailed) Unwrap() error { return e.Err }

func failed(kind FailureKind, url string, err error) *ExtractionFailed {
	return &ExtractionFailed{Kind: kind, URL: url, Err: err}
}

// IsExtractionFailed reports whether err is (or wraps) an ExtractionFailed
// and returns it.
func IsExtractionFailed(err error) (*ExtractionFailed, bool) {
	var ef *ExtractionFailed
	if errors.As(err, &ef) {
		return ef, true
	}
	return nil, false
}
