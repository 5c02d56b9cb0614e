// Package chunked splits an address range into fixed-size chunks and reads
// each one through a bridge.Bridge, treating a failed chunk read as an
// empty result rather than aborting the whole range.
package chunked

import (
	"context"

	"github.com/dorastack/memscan/internal/bridge"
)

// DefaultSize is the chunk size used when a caller does not override it,
// matching the 16 MiB block size the snapshot format is built around.
const DefaultSize = 16 * 1024 * 1024

// Range is a half-open address interval [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// Len reports the number of bytes in the range.
func (r Range) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Split divides [start, end) into chunks of at most size bytes each; the
// final chunk may be short. An empty or inverted range yields no chunks.
func Split(start, end, size uint64) []Range {
	if size == 0 {
		size = DefaultSize
	}
	if end <= start {
		return nil
	}
	var ranges []Range
	for cur := start; cur < end; cur += size {
		next := cur + size
		if next > end {
			next = end
		}
		ranges = append(ranges, Range{Start: cur, End: next})
	}
	return ranges
}

// Read issues a single OS read for r through br. A read failure is
// reported back to the caller as (nil, err); callers performing a
// multi-chunk scan treat that as an empty contribution for this chunk
// and continue with the remaining chunks rather than aborting.
func Read(ctx context.Context, br bridge.Bridge, pid int, r Range) ([]byte, error) {
	n := r.Len()
	if n == 0 {
		return nil, nil
	}
	return br.Read(ctx, pid, r.Start, int(n))
}
