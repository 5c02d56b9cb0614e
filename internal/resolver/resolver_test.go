package resolver

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/dorastack/memscan/internal/bridge"
)

func TestResolveFlatArithmetic(t *testing.T) {
	got, err := Resolve(context.Background(), bridge.NewFake(), 1, "0x1000 + 0x10 - 0x4", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := uint64(0x100c); got != want {
		t.Errorf("got 0x%x, want 0x%x", got, want)
	}
}

func TestResolveModuleNameSubstitution(t *testing.T) {
	modules := []bridge.Module{{Name: "/usr/bin/target", Base: 0x400000}}
	got, err := Resolve(context.Background(), bridge.NewFake(), 1, "target + 0x10", modules)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := uint64(0x400010); got != want {
		t.Errorf("got 0x%x, want 0x%x", got, want)
	}
}

func TestResolveModuleNameCaseInsensitive(t *testing.T) {
	modules := []bridge.Module{{Name: "/usr/bin/Target.exe", Base: 0x10000}}
	got, err := Resolve(context.Background(), bridge.NewFake(), 1, "TARGET.EXE + 0x4", modules)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := uint64(0x10004); got != want {
		t.Errorf("got 0x%x, want 0x%x", got, want)
	}
}

func TestResolveDoesNotSubstitutePartialName(t *testing.T) {
	modules := []bridge.Module{{Name: "libc", Base: 0x70000}}
	// "libc.so" should NOT be treated as a reference to module "libc" since
	// it is immediately followed by '.', forming a longer file name.
	got, err := Resolve(context.Background(), bridge.NewFake(), 1, "libc.so", modules)
	if err == nil {
		t.Fatalf("expected resolve failure for non-numeric leftover text, got 0x%x", got)
	}
}

func TestResolveNestedDereference(t *testing.T) {
	br := bridge.NewFake()
	// memory at 0x2000 holds the pointer value 0x3000.
	ptrBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(ptrBuf, 0x3000)
	br.SetRegion(0x2000, ptrBuf, "rw-p")

	got, err := Resolve(context.Background(), br, 1, "[0x2000] + 0x8", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := uint64(0x3008); got != want {
		t.Errorf("got 0x%x, want 0x%x", got, want)
	}
}

func TestResolveDoubleNestedDereference(t *testing.T) {
	br := bridge.NewFake()
	outer := make([]byte, 8)
	binary.LittleEndian.PutUint64(outer, 0x2000)
	br.SetRegion(0x1000, outer, "rw-p")

	inner := make([]byte, 8)
	binary.LittleEndian.PutUint64(inner, 0x4000)
	br.SetRegion(0x2000, inner, "rw-p")

	got, err := Resolve(context.Background(), br, 1, "[[0x1000] + 0x0]", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := uint64(0x4000); got != want {
		t.Errorf("got 0x%x, want 0x%x", got, want)
	}
}

func TestResolveMissingOperator(t *testing.T) {
	if _, err := Resolve(context.Background(), bridge.NewFake(), 1, "0x10 0x20", nil); err == nil {
		t.Fatal("expected missing-operator error")
	}
}

func TestResolveMalformedExpression(t *testing.T) {
	if _, err := Resolve(context.Background(), bridge.NewFake(), 1, "not-a-number", nil); err == nil {
		t.Fatal("expected malformed-expression error")
	}
}
