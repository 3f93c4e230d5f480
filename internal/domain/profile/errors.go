package profile

import "errors"

var (
	// ErrNoReports signals that an owner has no readable reports to merge.
	// The aggregator treats this as a benign outcome, not a failure.
	ErrNoReports = errors.New("no reports available for owner")

	// ErrMalformedReport signals a report payload that could not be decoded.
	// Individual malformed reports are skipped during a merge.
	ErrMalformedReport = errors.New("malformed report payload")
)
