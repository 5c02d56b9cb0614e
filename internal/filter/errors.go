package filter

import "errors"

var (
	// ErrScanNotFound is returned when a filter call names a scan-id with
	// no session on record.
	ErrScanNotFound = errors.New("filter: scan-id not found")

	// ErrInvalidHexPattern is returned when filter_method "exact" supplies
	// a pattern that is not valid hex.
	ErrInvalidHexPattern = errors.New("filter: pattern is not valid hex")
)
