package snapshot

import "errors"

var (
	// ErrDecompressFailed is returned when a block's compressed bytes fail
	// to decode, or decode to a length other than UncompressedSize.
	ErrDecompressFailed = errors.New("snapshot: decompression failed")

	// ErrMalformedSnapshot is returned when an on-disk or packed-offset
	// encoding does not match the expected shape.
	ErrMalformedSnapshot = errors.New("snapshot: malformed snapshot data")
)
