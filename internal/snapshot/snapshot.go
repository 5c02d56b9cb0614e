// Package snapshot implements the unknown-initial-value scan state: a
// compressed copy of one memory chunk plus, after the first filter pass,
// the packed list of offsets within it that still survive filtering.
package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/s2"
)

// Block is the unknown-mode state for one chunk-sized region of the
// target's address space.
type Block struct {
	BaseAddress      uint64
	CompressedData   []byte
	UncompressedSize int

	// CompressedOffsets holds the packed little-endian surviving offsets,
	// meaningful only once IsFirst is false.
	CompressedOffsets []byte

	// IsFirst is true before the first filter pass touches this block: a
	// filter walks every aligned offset in the block rather than a
	// previously-narrowed set.
	IsFirst bool
}

// offsetWidth is the fixed on-the-wire width of one packed offset,
// matching the 8-byte "usize" width the on-disk spill format specifies.
const offsetWidth = 8

// NewBlock captures data as a fresh, never-yet-filtered snapshot block.
func NewBlock(base uint64, data []byte) *Block {
	return &Block{
		BaseAddress:      base,
		CompressedData:   Compress(data),
		UncompressedSize: len(data),
		IsFirst:          true,
	}
}

// Compress encodes data with the s2 block compressor.
func Compress(data []byte) []byte {
	return s2.Encode(nil, data)
}

// Decode decompresses the block's captured bytes. The result's length is
// always UncompressedSize; a mismatch there is a decoding error.
func (b *Block) Decode() ([]byte, error) {
	data, err := s2.Decode(nil, b.CompressedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	if len(data) != b.UncompressedSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrDecompressFailed, len(data), b.UncompressedSize)
	}
	return data, nil
}

// SetData replaces the block's captured bytes with a fresh compression of
// data, recording its uncompressed length.
func (b *Block) SetData(data []byte) {
	b.CompressedData = Compress(data)
	b.UncompressedSize = len(data)
}

// Offsets decodes the packed surviving offsets.
func (b *Block) Offsets() ([]int, error) {
	return UnpackOffsets(b.CompressedOffsets)
}

// SetOffsets packs and stores the surviving offsets, and clears IsFirst.
func (b *Block) SetOffsets(offsets []int) {
	b.CompressedOffsets = PackOffsets(offsets)
	b.IsFirst = false
}

// PackOffsets encodes offsets as fixed-width little-endian uint64s.
func PackOffsets(offsets []int) []byte {
	buf := make([]byte, len(offsets)*offsetWidth)
	for i, o := range offsets {
		binary.LittleEndian.PutUint64(buf[i*offsetWidth:], uint64(o))
	}
	return buf
}

// UnpackOffsets decodes a packed offset buffer produced by PackOffsets.
func UnpackOffsets(data []byte) ([]int, error) {
	if len(data)%offsetWidth != 0 {
		return nil, fmt.Errorf("%w: offsets buffer length %d not a multiple of %d", ErrMalformedSnapshot, len(data), offsetWidth)
	}
	n := len(data) / offsetWidth
	offsets := make([]int, n)
	for i := 0; i < n; i++ {
		offsets[i] = int(binary.LittleEndian.Uint64(data[i*offsetWidth:]))
	}
	return offsets, nil
}
