package scanner

import "errors"

var (
	// ErrInvalidHexPattern is returned when an exact-mode, non-regex
	// pattern is not valid hex.
	ErrInvalidHexPattern = errors.New("scanner: pattern is not valid hex")

	// ErrInvalidRegex is returned when a regex-type pattern fails to
	// compile; it aborts only the worker that hit it, not the whole pass.
	ErrInvalidRegex = errors.New("scanner: invalid regex pattern")
)
