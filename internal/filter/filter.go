// Package filter is the Nth-pass refinement over a scan session: it
// re-reads target memory and narrows either a session's snapshot blocks
// (unknown-mode, until materialized) or its candidate list (exact-mode,
// or unknown-mode after materialization) by a typed comparison.
package filter

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dorastack/memscan/internal/bridge"
	"github.com/dorastack/memscan/internal/comparator"
	"github.com/dorastack/memscan/internal/guard"
	"github.com/dorastack/memscan/internal/scanstore"
	"github.com/dorastack/memscan/internal/scantypes"
	"github.com/dorastack/memscan/internal/snapshot"
)

// Request carries one filter call's parameters.
type Request struct {
	ScanID       string
	Pattern      string
	DataType     scantypes.DataType
	FilterMethod scantypes.FilterMethod
	DoSuspend    bool
}

// Engine runs filter passes against sessions in a Store.
type Engine struct {
	Bridge                   bridge.Bridge
	Store                    *scanstore.Store
	Guard                    *guard.Guard
	MaterializationThreshold int
	Log                      *slog.Logger

	// SpillDir, when non-empty, makes every completed pass write its
	// resulting state to <SpillDir>/<scan-id>/, post-filter candidates or
	// still-unmaterialized pre-filter blocks, per the on-disk snapshot
	// format. Left empty, spill is skipped entirely.
	SpillDir string
}

// New returns a filter engine. A nil logger is replaced with slog's default.
func New(br bridge.Bridge, store *scanstore.Store, g *guard.Guard, materializationThreshold int, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Bridge: br, Store: store, Guard: g, MaterializationThreshold: materializationThreshold, Log: log}
}

// Filter runs one pass for req.ScanID, returning the surviving count.
func (e *Engine) Filter(ctx context.Context, pid int, req Request) (int, error) {
	sess, ok := e.Store.Get(req.ScanID)
	if !ok {
		return 0, ErrScanNotFound
	}

	var count int
	err := e.Guard.Run(ctx, e.Bridge, pid, req.DoSuspend, func() error {
		sess.Lock()
		defer sess.Unlock()

		var err error
		if sess.InSnapshotMode() {
			count, err = e.filterSnapshot(ctx, pid, sess, req)
		} else {
			count, err = e.filterCandidates(ctx, pid, sess, req)
		}
		return err
	})
	e.Log.Info("filter complete", "scan_id", req.ScanID, "survivors", count)
	return count, err
}

type survivor struct {
	addr uint64
	hex  string
}

// filterSnapshot implements the snapshot branch: every block is
// decompressed, re-read, and compared in parallel; blocks that survive
// the compression/read below the materialization threshold cause the
// whole session to fold into candidate form.
func (e *Engine) filterSnapshot(ctx context.Context, pid int, sess *scanstore.Session, req Request) (int, error) {
	align := sess.Params.Align
	if align == 0 {
		align = 1
	}
	width := req.DataType.Width()
	if width == 0 {
		width = 1
	}

	var patternBytes []byte
	if req.FilterMethod == scantypes.MethodExact {
		decoded, err := hex.DecodeString(req.Pattern)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidHexPattern, err)
		}
		patternBytes = decoded
	}

	perBlock := make([][]survivor, len(sess.Blocks))
	g, gctx := errgroup.WithContext(ctx)
	for i, block := range sess.Blocks {
		i, block := i, block
		g.Go(func() error {
			old, err := block.Decode()
			if err != nil {
				return nil // corrupted block: skip it, leave it unchanged for the next pass
			}
			fresh, err := e.Bridge.Read(gctx, pid, block.BaseAddress, block.UncompressedSize)
			if err != nil {
				return nil // read failure: skip the block, it remains unchanged
			}

			var offsets []int
			if block.IsFirst {
				for o := 0; o+width <= len(old) && o+width <= len(fresh); o++ {
					if (block.BaseAddress+uint64(o))%align == 0 {
						offsets = append(offsets, o)
					}
				}
			} else {
				offsets, err = block.Offsets()
				if err != nil {
					return nil // malformed offsets: skip the block
				}
			}

			var survivingOffsets []int
			var hits []survivor
			for _, o := range offsets {
				if o+width > len(old) || o+width > len(fresh) {
					continue
				}
				comparand := old[o : o+width]
				if req.FilterMethod == scantypes.MethodExact {
					comparand = patternBytes
				}
				ok, err := comparator.Compare(req.DataType, req.FilterMethod, comparand, fresh[o:o+width])
				if err != nil || !ok {
					continue
				}
				survivingOffsets = append(survivingOffsets, o)
				hits = append(hits, survivor{addr: block.BaseAddress + uint64(o), hex: hex.EncodeToString(fresh[o : o+width])})
			}

			block.SetData(fresh)
			block.SetOffsets(survivingOffsets)
			perBlock[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var all []survivor
	for _, hits := range perBlock {
		all = append(all, hits...)
	}

	if len(all) < e.MaterializationThreshold {
		candidates := make([]scanstore.Candidate, len(all))
		for i, s := range all {
			candidates[i] = scanstore.Candidate{Address: s.addr, PriorHex: s.hex}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Address < candidates[j].Address })
		sess.Candidates = candidates
		sess.Blocks = nil
		sess.Materialized = true
		if err := e.spillCandidates(req.ScanID, req.DataType, candidates); err != nil {
			return len(all), err
		}
	} else if e.SpillDir != "" {
		if err := e.spillBlocks(req.ScanID, sess.Blocks); err != nil {
			return len(all), err
		}
	}
	return len(all), nil
}

// filterCandidates implements the candidate branch: every candidate is
// re-read and compared in parallel against either the request's pattern
// (filter_method exact) or its own prior value.
func (e *Engine) filterCandidates(ctx context.Context, pid int, sess *scanstore.Session, req Request) (int, error) {
	var patternBytes []byte
	if req.FilterMethod == scantypes.MethodExact && req.DataType != scantypes.Regex {
		decoded, err := hex.DecodeString(req.Pattern)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidHexPattern, err)
		}
		patternBytes = decoded
	}

	keep := make([]*scanstore.Candidate, len(sess.Candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range sess.Candidates {
		i, cand := i, cand
		g.Go(func() error {
			priorBytes, err := hex.DecodeString(cand.PriorHex)
			if err != nil {
				return nil // malformed stored state: drop the candidate
			}
			width := len(priorBytes)
			if width == 0 {
				width = req.DataType.Width()
				if width == 0 {
					width = 1
				}
			}
			fresh, err := e.Bridge.Read(gctx, pid, cand.Address, width)
			if err != nil {
				return nil // partial-read failure: drop the candidate, not fatal
			}

			var matched bool
			if req.DataType == scantypes.Regex {
				matched, err = comparator.MatchRegex(req.Pattern, fresh)
				if err != nil {
					return nil
				}
			} else {
				comparand := priorBytes
				if req.FilterMethod == scantypes.MethodExact {
					comparand = patternBytes
				}
				matched, err = comparator.Compare(req.DataType, req.FilterMethod, comparand, fresh)
				if err != nil {
					return nil
				}
			}
			if !matched {
				return nil
			}
			keep[i] = &scanstore.Candidate{Address: cand.Address, PriorHex: hex.EncodeToString(fresh)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var out []scanstore.Candidate
	for _, k := range keep {
		if k != nil {
			out = append(out, *k)
		}
	}
	sess.Candidates = out
	if err := e.spillCandidates(req.ScanID, req.DataType, out); err != nil {
		return len(out), err
	}
	return len(out), nil
}

// spillBlocks writes a fresh pre-filter spill file for scanID's remaining
// snapshot blocks. A no-op when SpillDir is unset.
func (e *Engine) spillBlocks(scanID string, blocks []*snapshot.Block) error {
	if e.SpillDir == "" {
		return nil
	}
	dir := filepath.Join(e.SpillDir, scanstore.NormalizeID(scanID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("filter: create spill dir %s: %w", dir, err)
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

// spillCandidates writes a fresh post-filter spill file for scanID's
// surviving candidates. A no-op when SpillDir is unset or there is
// nothing to spill; entries whose stored value doesn't match the file's
// fixed width are dropped from the spill rather than failing the pass.
func (e *Engine) spillCandidates(scanID string, dataType scantypes.DataType, candidates []scanstore.Candidate) error {
	if e.SpillDir == "" || len(candidates) == 0 {
		return nil
	}
	width := dataType.Width()
	if width == 0 {
		if decoded, err := hex.DecodeString(candidates[0].PriorHex); err == nil {
			width = len(decoded)
		}
	}
	if width == 0 {
		width = 1
	}

	dir := filepath.Join(e.SpillDir, scanstore.NormalizeID(scanID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("filter: create spill dir %s: %w", dir, err)
	}
	entries := make([]snapshot.PostFilterEntry, 0, len(candidates))
	for _, c := range candidates {
		value, err := hex.DecodeString(c.PriorHex)
		if err != nil || len(value) != width {
			continue
		}
		entries = append(entries, snapshot.PostFilterEntry{Address: c.Address, Value: value})
	}
	return snapshot.WritePostFilter(filepath.Join(dir, "postfilter.spill"), width, entries)
}
