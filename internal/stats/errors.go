package stats

import "errors"

var (
	// ErrUnauthorized is returned by the role guard before any query runs.
	ErrUnauthorized = errors.New("stats: unauthorized")
	// ErrStatsFetch hides every downstream failure behind one generic code.
	ErrStatsFetch = errors.New("stats-fetch-error")
	// ErrInvalidRange signals a range whose start is after its end.
	ErrInvalidRange = errors.New("stats: invalid date range")
)
