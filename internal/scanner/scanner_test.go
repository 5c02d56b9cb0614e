package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dorastack/memscan/internal/bridge"
	"github.com/dorastack/memscan/internal/chunked"
	"github.com/dorastack/memscan/internal/guard"
	"github.com/dorastack/memscan/internal/scanstore"
	"github.com/dorastack/memscan/internal/scantypes"
	"github.com/dorastack/memscan/internal/snapshot"
)

func newTestEngine(br bridge.Bridge) (*Engine, *scanstore.Store) {
	store := scanstore.New()
	eng := New(br, store, guard.New(), 16, 100000, nil)
	return eng, store
}

func TestScanExactHexFind(t *testing.T) {
	br := bridge.NewFake()
	br.SetRegion(0x1000, []byte{0xDE, 0xAD, 0xBE, 0xEF}, "rw-p")
	eng, store := newTestEngine(br)

	found, err := eng.Scan(context.Background(), 1, Request{
		ScanID:   "s1",
		Pattern:  "deadbeef",
		Ranges:   []chunked.Range{{Start: 0x1000, End: 0x1004}},
		FindType: scantypes.FindExact,
		DataType: scantypes.Int32,
		Align:    4,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if found != 1 {
		t.Fatalf("found = %d, want 1", found)
	}

	sess, ok := store.Get("s1")
	if !ok {
		t.Fatal("expected session to exist")
	}
	if len(sess.Candidates) != 1 || sess.Candidates[0].Address != 0x1000 {
		t.Fatalf("candidates = %+v", sess.Candidates)
	}
}

func TestScanRegexFind(t *testing.T) {
	br := bridge.NewFake()
	br.SetRegion(0x3000, []byte("say hello world"), "rw-p")
	eng, store := newTestEngine(br)

	found, err := eng.Scan(context.Background(), 1, Request{
		ScanID:   "s2",
		Pattern:  "hel{2}o",
		Ranges:   []chunked.Range{{Start: 0x3000, End: 0x300F}},
		FindType: scantypes.FindExact,
		DataType: scantypes.Regex,
		Align:    1,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if found != 1 {
		t.Fatalf("found = %d, want 1", found)
	}
	sess, _ := store.Get("s2")
	if sess.Candidates[0].PriorHex != "68656c6c6f" { // hex("hello")
		t.Errorf("PriorHex = %q", sess.Candidates[0].PriorHex)
	}
}

func TestScanAlignmentFiltersMatches(t *testing.T) {
	br := bridge.NewFake()
	// "AA" at offset 1 (unaligned) and offset 4 (aligned to 4).
	data := []byte{0x00, 0xAA, 0x00, 0x00, 0xAA, 0x00, 0x00, 0x00}
	br.SetRegion(0x0, data, "rw-p")
	eng, store := newTestEngine(br)

	_, err := eng.Scan(context.Background(), 1, Request{
		ScanID:   "s3",
		Pattern:  "aa",
		Ranges:   []chunked.Range{{Start: 0x0, End: 0x8}},
		FindType: scantypes.FindExact,
		DataType: scantypes.Uint8,
		Align:    4,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sess, _ := store.Get("s3")
	if len(sess.Candidates) != 1 || sess.Candidates[0].Address != 0x4 {
		t.Fatalf("candidates = %+v, want exactly address 0x4", sess.Candidates)
	}
}

func TestScanUnknownModeProducesSnapshotBlocks(t *testing.T) {
	br := bridge.NewFake()
	br.SetRegion(0x2000, make([]byte, 16), "rw-p")
	eng, store := newTestEngine(br)

	_, err := eng.Scan(context.Background(), 1, Request{
		ScanID:   "s4",
		Ranges:   []chunked.Range{{Start: 0x2000, End: 0x2010}},
		FindType: scantypes.FindUnknown,
		DataType: scantypes.Int32,
		Align:    4,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sess, _ := store.Get("s4")
	if len(sess.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(sess.Blocks))
	}
	if !sess.Blocks[0].IsFirst {
		t.Error("fresh block should have IsFirst true")
	}
	if len(sess.Candidates) != 0 {
		t.Error("unknown-mode session should not populate candidates directly")
	}
}

func TestScanResetsPriorSessionState(t *testing.T) {
	br := bridge.NewFake()
	br.SetRegion(0x1000, []byte{1, 2, 3, 4}, "rw-p")
	eng, store := newTestEngine(br)

	_, _ = eng.Scan(context.Background(), 1, Request{
		ScanID: "s5", Pattern: "01020304",
		Ranges: []chunked.Range{{Start: 0x1000, End: 0x1004}}, FindType: scantypes.FindExact, DataType: scantypes.Int32, Align: 4,
	})
	sess, _ := store.Get("s5")
	if len(sess.Candidates) != 1 {
		t.Fatalf("expected 1 candidate before reset test, got %d", len(sess.Candidates))
	}

	// A second scan with a pattern that matches nothing must discard the
	// first scan's candidates rather than accumulate alongside them.
	_, _ = eng.Scan(context.Background(), 1, Request{
		ScanID: "s5", Pattern: "ffffffff",
		Ranges: []chunked.Range{{Start: 0x1000, End: 0x1004}}, FindType: scantypes.FindExact, DataType: scantypes.Int32, Align: 4,
	})
	sess, _ = store.Get("s5")
	if len(sess.Candidates) != 0 {
		t.Fatalf("expected reset session to have 0 candidates, got %d", len(sess.Candidates))
	}
}

func TestScanEmptyRangeYieldsNoCandidatesNoError(t *testing.T) {
	br := bridge.NewFake()
	eng, _ := newTestEngine(br)

	found, err := eng.Scan(context.Background(), 1, Request{
		ScanID: "s6", Pattern: "ab",
		Ranges: []chunked.Range{{Start: 0x5000, End: 0x5000}}, FindType: scantypes.FindExact, DataType: scantypes.Uint8, Align: 1,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if found != 0 {
		t.Errorf("found = %d, want 0", found)
	}
}

func TestScanInvalidHexPatternErrors(t *testing.T) {
	br := bridge.NewFake()
	eng, _ := newTestEngine(br)
	_, err := eng.Scan(context.Background(), 1, Request{
		ScanID: "s7", Pattern: "zz",
		Ranges: []chunked.Range{{Start: 0, End: 4}}, FindType: scantypes.FindExact, DataType: scantypes.Uint8, Align: 1,
	})
	if err == nil {
		t.Fatal("expected error for invalid hex pattern")
	}
}

func TestScanChunkBoundaryOverlapFindsStraddlingMatch(t *testing.T) {
	br := bridge.NewFake()
	data := make([]byte, 32)
	copy(data[14:], []byte{0xDE, 0xAD, 0xBE, 0xEF}) // straddles a 16-byte chunk boundary at offset 16
	br.SetRegion(0, data, "rw-p")
	eng, store := newTestEngine(br) // ChunkSize=16 from newTestEngine

	found, err := eng.Scan(context.Background(), 1, Request{
		ScanID:   "s8",
		Pattern:  "deadbeef",
		Ranges:   []chunked.Range{{Start: 0, End: 32}},
		FindType: scantypes.FindExact,
		DataType: scantypes.Int32,
		Align:    1,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if found != 1 {
		t.Fatalf("found = %d, want 1 (boundary-straddling match must still be found)", found)
	}
	sess, _ := store.Get("s8")
	if len(sess.Candidates) != 1 || sess.Candidates[0].Address != 14 {
		t.Fatalf("candidates = %+v, want address 14", sess.Candidates)
	}
}

func TestScanWritesPreFilterSpillWhenSpillDirSet(t *testing.T) {
	br := bridge.NewFake()
	br.SetRegion(0x2000, make([]byte, 16), "rw-p")
	eng, _ := newTestEngine(br)
	eng.SpillDir = t.TempDir()

	_, err := eng.Scan(context.Background(), 1, Request{
		ScanID:   "spill1",
		Ranges:   []chunked.Range{{Start: 0x2000, End: 0x2010}},
		FindType: scantypes.FindUnknown,
		DataType: scantypes.Int32,
		Align:    4,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	spillPath := filepath.Join(eng.SpillDir, scanstore.NormalizeID("spill1"), "prefilter.spill")
	if _, err := os.Stat(spillPath); err != nil {
		t.Fatalf("expected pre-filter spill file at %s: %v", spillPath, err)
	}
	pre, _, err := snapshot.ReadSpill(spillPath, 4)
	if err != nil {
		t.Fatalf("ReadSpill: %v", err)
	}
	if len(pre) != 1 || pre[0].BaseAddress != 0x2000 {
		t.Fatalf("spilled entries = %+v", pre)
	}
}

func TestScanNoSpillFileWhenSpillDirUnset(t *testing.T) {
	br := bridge.NewFake()
	br.SetRegion(0x2000, make([]byte, 16), "rw-p")
	eng, _ := newTestEngine(br) // SpillDir left empty

	_, err := eng.Scan(context.Background(), 1, Request{
		ScanID:   "spill2",
		Ranges:   []chunked.Range{{Start: 0x2000, End: 0x2010}},
		FindType: scantypes.FindUnknown,
		DataType: scantypes.Int32,
		Align:    4,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
}

func TestScanOverlapExtensionDoesNotDoubleReportAMatchOwnedByALaterChunk(t *testing.T) {
	br := bridge.NewFake()
	// ChunkSize=16 (from newTestEngine) over a range spanning far more than
	// matchOverlap (4096) bytes, so an early chunk's overlap-extended read
	// reaches all the way past a middle chunk's own primary read. Placing a
	// match at 260 (chunk boundaries fall on multiples of 16, so 260 is
	// chunk 16's own [256,272) chunk, not chunk 10's [160,176)) would
	// previously be found both by chunk 10's extended overlap read and by
	// chunk 16's own primary read.
	data := make([]byte, 4800)
	copy(data[260:], []byte{0xDE, 0xAD, 0xBE, 0xEF})
	br.SetRegion(0, data, "rw-p")
	eng, store := newTestEngine(br)

	found, err := eng.Scan(context.Background(), 1, Request{
		ScanID:   "s9",
		Pattern:  "deadbeef",
		Ranges:   []chunked.Range{{Start: 0, End: 4800}},
		FindType: scantypes.FindExact,
		DataType: scantypes.Int32,
		Align:    1,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if found != 1 {
		t.Fatalf("found = %d, want exactly 1 (no duplicate across chunk boundary)", found)
	}
	sess, _ := store.Get("s9")
	if len(sess.Candidates) != 1 || sess.Candidates[0].Address != 260 {
		t.Fatalf("candidates = %+v, want exactly one entry at address 260", sess.Candidates)
	}
}
