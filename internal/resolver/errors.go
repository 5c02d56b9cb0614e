package resolver

import "errors"

var (
	// ErrMalformedExpression is returned when an address expression has
	// unbalanced brackets or no numeric term at all.
	ErrMalformedExpression = errors.New("resolver: malformed address expression")

	// ErrMissingOperator is returned when two numeric terms appear back
	// to back without a +, -, or * between them.
	ErrMissingOperator = errors.New("resolver: expected operator between terms")

	// ErrShortDereference is returned when a bracketed dereference reads
	// fewer than 8 bytes back from the bridge.
	ErrShortDereference = errors.New("resolver: short read during dereference")
)
