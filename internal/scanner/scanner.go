// Package scanner is the first-pass, data-parallel memory scan: it reads
// a set of address ranges chunk by chunk and either records explicit
// matches (exact mode) or captures a compressed baseline snapshot
// (unknown-initial-value mode) into a scan session.
package scanner

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/dorastack/memscan/internal/bridge"
	"github.com/dorastack/memscan/internal/chunked"
	"github.com/dorastack/memscan/internal/guard"
	"github.com/dorastack/memscan/internal/scanstore"
	"github.com/dorastack/memscan/internal/scantypes"
	"github.com/dorastack/memscan/internal/snapshot"
)

// matchOverlap is how far past a chunk's nominal end the scanner keeps
// reading when searching for exact/regex matches, so a pattern straddling
// a chunk boundary is still found by the chunk it starts in. The
// implementation mandates the property, not a specific mechanism; this
// value comfortably covers any pattern the client-facing API practically
// sends (hex patterns and short regexes), and is documented as a fixed
// assumption rather than derived from the pattern itself.
const matchOverlap = 4096

// Request carries one scan call's parameters.
type Request struct {
	ScanID    string
	Pattern   string
	Ranges    []chunked.Range
	FindType  scantypes.FindType
	DataType  scantypes.DataType
	Align     uint64
	DoSuspend bool
}

// Engine runs scans against a single bridge-reachable target.
type Engine struct {
	Bridge      bridge.Bridge
	Store       *scanstore.Store
	Guard       *guard.Guard
	ChunkSize   uint64
	InFlightCap int
	Log         *slog.Logger

	// SpillDir, when non-empty, makes an unknown-mode Scan write its
	// snapshot blocks to <SpillDir>/<scan-id>/prefilter.spill once the
	// pass completes, per the on-disk snapshot format. Left empty, spill
	// is skipped entirely and blocks only ever live in memory.
	SpillDir string
}

// New returns a scan engine. A nil logger is replaced with slog's default.
func New(br bridge.Bridge, store *scanstore.Store, g *guard.Guard, chunkSize uint64, inFlightCap int, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Bridge: br, Store: store, Guard: g, ChunkSize: chunkSize, InFlightCap: inFlightCap, Log: log}
}

func resolveAlign(align uint64, dt scantypes.DataType) uint64 {
	if align != 0 {
		return align
	}
	if w := dt.Width(); w > 0 {
		return uint64(w)
	}
	return 1
}

// Scan resets the session for req.ScanID and runs the first pass over
// every chunk of every requested range in parallel, returning the
// (approximate, for unknown mode) total found count.
func (e *Engine) Scan(ctx context.Context, pid int, req Request) (int, error) {
	align := resolveAlign(req.Align, req.DataType)
	sess := e.Store.Reset(req.ScanID, scanstore.Params{
		Pattern: req.Pattern, Ranges: req.Ranges, FindType: req.FindType, DataType: req.DataType, Align: align,
	})

	var patternBytes []byte
	if req.FindType == scantypes.FindExact && req.DataType != scantypes.Regex {
		decoded, err := hex.DecodeString(req.Pattern)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidHexPattern, err)
		}
		patternBytes = decoded
	}

	found := newCounter()
	err := e.Guard.Run(ctx, e.Bridge, pid, req.DoSuspend, func() error {
		g, gctx := errgroup.WithContext(ctx)

		for _, r := range req.Ranges {
			for _, chunk := range chunked.Split(r.Start, r.End, e.ChunkSize) {
				chunk := chunk
				rangeEnd := r.End
				g.Go(func() error {
					return e.scanChunk(gctx, pid, sess, req, patternBytes, align, chunk, rangeEnd, found)
				})
			}
		}
		return g.Wait()
	})
	e.Log.Info("scan complete", "scan_id", req.ScanID, "found", found.load(), "bytes_requested", humanize.IBytes(rangesTotalBytes(req.Ranges)))
	if err == nil && req.FindType == scantypes.FindUnknown && e.SpillDir != "" {
		if spillErr := e.spillBlocks(req.ScanID, sess.Blocks); spillErr != nil {
			return int(found.load()), spillErr
		}
	}
	return int(found.load()), err
}

// spillBlocks writes a fresh pre-filter spill file for scanID's snapshot
// blocks. A no-op when SpillDir is unset.
func (e *Engine) spillBlocks(scanID string, blocks []*snapshot.Block) error {
	if e.SpillDir == "" {
		return nil
	}
	dir := filepath.Join(e.SpillDir, scanstore.NormalizeID(scanID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("scanner: create spill dir %s: %w", dir, err)
	}
	entries := make([]snapshot.PreFilterEntry, len(blocks))
	for i, b := range blocks {
		entries[i] = snapshot.PreFilterEntry{
			BaseAddress:     b.BaseAddress,
			CompressedLen:   uint64(len(b.CompressedData)),
			UncompressedLen: uint64(b.UncompressedSize),
			Compressed:      b.CompressedData,
		}
	}
	return snapshot.WritePreFilter(filepath.Join(dir, "prefilter.spill"), entries)
}

func (e *Engine) scanChunk(ctx context.Context, pid int, sess *scanstore.Session, req Request, patternBytes []byte, align uint64, chunk chunked.Range, rangeEnd uint64, found *counter) error {
	readRange := chunk
	if req.FindType == scantypes.FindExact {
		extEnd := chunk.End + matchOverlap
		if extEnd > rangeEnd {
			extEnd = rangeEnd
		}
		readRange.End = extEnd
	}

	data, err := chunked.Read(ctx, e.Bridge, pid, readRange)
	if err != nil {
		return nil // a chunk read failure is never fatal to the whole scan
	}

	switch req.FindType {
	case scantypes.FindUnknown:
		block := snapshot.NewBlock(chunk.Start, data)
		sess.AppendBlock(block)
		width := req.DataType.Width()
		if width == 0 {
			width = 1
		}
		found.add(int64(len(data) / width))

	default: // exact
		var local []scanstore.Candidate
		if req.DataType == scantypes.Regex {
			local, err = scanRegex(chunk.Start, data, req.Pattern, align, chunk.End)
			if err != nil {
				return nil // pattern-compile errors abort only this worker
			}
		} else {
			local = scanExactBytes(chunk.Start, data, patternBytes, align, chunk.End)
		}
		found.add(int64(len(local)))
		flushInBatches(sess, local, e.InFlightCap)
	}
	return nil
}

// scanExactBytes finds pattern in data (read starting at base, possibly
// extended past keepEnd to catch a straddling match). keepEnd is the
// chunk's own nominal end: a match starting at or past it belongs to the
// next chunk's own primary read, so it is excluded here to avoid being
// reported twice.
func scanExactBytes(base uint64, data, pattern []byte, align uint64, keepEnd uint64) []scanstore.Candidate {
	if len(pattern) == 0 {
		return nil
	}
	var out []scanstore.Candidate
	patternHex := hex.EncodeToString(pattern)
	for i := 0; i+len(pattern) <= len(data); i++ {
		addr := base + uint64(i)
		if addr >= keepEnd {
			break
		}
		if !bytes.Equal(data[i:i+len(pattern)], pattern) {
			continue
		}
		if align <= 1 || addr%align == 0 {
			out = append(out, scanstore.Candidate{Address: addr, PriorHex: patternHex})
		}
	}
	return out
}

// scanRegex is scanExactBytes's regex counterpart; see its keepEnd comment.
func scanRegex(base uint64, data []byte, pattern string, align uint64, keepEnd uint64) ([]scanstore.Candidate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}
	var out []scanstore.Candidate
	for _, m := range re.FindAllIndex(data, -1) {
		addr := base + uint64(m[0])
		if addr >= keepEnd {
			continue
		}
		if align <= 1 || addr%align == 0 {
			out = append(out, scanstore.Candidate{Address: addr, PriorHex: hex.EncodeToString(data[m[0]:m[1]])})
		}
	}
	return out, nil
}

// flushInBatches appends local into the session's candidate list in
// pieces no larger than cap, bounding a single worker's contribution to
// the append under the session's writer lock even when one chunk yields
// an unusually large number of hits (e.g. a one-byte AOB pattern).
func flushInBatches(sess *scanstore.Session, local []scanstore.Candidate, cap int) {
	if len(local) == 0 {
		return
	}
	if cap <= 0 {
		sess.AppendCandidates(local)
		return
	}
	for len(local) > 0 {
		n := len(local)
		if n > cap {
			n = cap
		}
		sess.AppendCandidates(local[:n])
		local = local[n:]
	}
}

func rangesTotalBytes(ranges []chunked.Range) uint64 {
	var total uint64
	for _, r := range ranges {
		total += r.Len()
	}
	return total
}
