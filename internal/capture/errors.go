package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is the class of every network or HTTP status failure.
	ErrTransport = errors.New("transport failure")

	// ErrPageLimit is returned when the API keeps advertising pages past the
	// configured maximum.
	ErrPageLimit = errors.New("page limit exceeded")

	// ErrMalformedPage is returned when a page body is not a JSON object.
	ErrMalformedPage = errors.New("malformed page body")

	// ErrInvalidRange is returned for unparseable or inverted date ranges.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrNoManifest is returned when a run directory has no RUN_META.json,
	// which means the capture never completed.
	ErrNoManifest = errors.New("run manifest not found")

	// ErrHashMismatch is returned when a page file no longer matches the
	// digest recorded for it.
	ErrHashMismatch = errors.New("page hash mismatch")
)

// TransportError reports which page request failed. It matches both
// ErrTransport and the underlying cause under errors.Is.
type TransportError struct {
	Page int
	URL  string
	Err  error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transport failure on page %d (%s): %v", e.Page, e.URL, e.Err)
	}
	return fmt.Sprintf("transport failure on page %d: %v", e.Page, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
