package providers

import "errors"

var (
	// ErrUnavailable means the provider has no credentials configured. It is
	// detected up front and never results in network I/O.
	ErrUnavailable = errors.New("provider not configured")

	// ErrBadResponse wraps provider answers that arrived but could not be
	// parsed into the requested shape. Distinct from transport failures so
	// callers can tell "provider broke" from "provider babbled".
	ErrBadResponse = errors.New("unparseable provider response")
)
