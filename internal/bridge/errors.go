package bridge

import "errors"

var (
	// ErrUnsupportedPlatform is returned by every method of the stub
	// bridge compiled in for GOOS values without a native implementation.
	ErrUnsupportedPlatform = errors.New("bridge: unsupported platform")

	// ErrNotAttached names the case where the underlying platform
	// mechanism could not reach the target process at all (distinct from
	// a short/partial read, which is not an error). The Linux and Fake
	// bridges do not return it; they report such failures with their own
	// wrapped errors.
	ErrNotAttached = errors.New("bridge: target not attached")
)
