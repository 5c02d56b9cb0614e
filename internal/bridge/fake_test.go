package bridge

import (
	"context"
	"testing"
)

func TestFakeReadWriteRoundTrip(t *testing.T) {
	f := NewFake()
	f.SetRegion(0x1000, []byte{1, 2, 3, 4}, "rw-p")

	got, err := f.Read(context.Background(), 1, 0x1001, 2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != 2 || got[1] != 3 {
		t.Errorf("got %v, want [2 3]", got)
	}

	n, err := f.Write(context.Background(), 1, 0x1002, []byte{9, 9})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 2 {
		t.Errorf("Write returned %d, want 2", n)
	}

	got, _ = f.Read(context.Background(), 1, 0x1000, 4)
	if got[2] != 9 || got[3] != 9 {
		t.Errorf("after write, got %v", got)
	}
}

func TestFakeReadUnmappedAddress(t *testing.T) {
	f := NewFake()
	if _, err := f.Read(context.Background(), 1, 0xdead, 4); err == nil {
		t.Fatal("expected error reading unmapped address")
	}
}

func TestFakeReadRespectsFailReads(t *testing.T) {
	f := NewFake()
	f.SetRegion(0x1000, []byte{1, 2, 3, 4}, "rw-p")
	f.FailReads[0x1000] = true

	if _, err := f.Read(context.Background(), 1, 0x1000, 1); err == nil {
		t.Fatal("expected forced read failure")
	}
}

func TestFakeSuspendResumeNesting(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	f.Suspend(ctx, 1)
	f.Suspend(ctx, 1)
	if f.SuspendCount() != 2 {
		t.Fatalf("suspend count = %d, want 2", f.SuspendCount())
	}

	f.Resume(ctx, 1)
	if f.SuspendCount() != 1 {
		t.Fatalf("suspend count = %d, want 1 after one resume", f.SuspendCount())
	}

	f.Resume(ctx, 1)
	if f.SuspendCount() != 0 {
		t.Fatalf("suspend count = %d, want 0", f.SuspendCount())
	}

	ok, err := f.Resume(ctx, 1)
	if err != nil || ok {
		t.Fatalf("resume past zero: ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestFakeMutateWordVisibleToRead(t *testing.T) {
	f := NewFake()
	f.SetRegion(0x2000, []byte{0, 0, 0, 0}, "rw-p")
	f.MutateWord(0x2000, []byte{7, 7, 7, 7})

	got, err := f.Read(context.Background(), 1, 0x2000, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for _, b := range got {
		if b != 7 {
			t.Fatalf("got %v, want all 7s", got)
		}
	}
}

func TestFakeEventCallbackDelivery(t *testing.T) {
	f := NewFake()
	var gotPID int
	var gotEv RegisterEvent
	f.RegisterEventCallback(func(pid int, ev RegisterEvent) {
		gotPID = pid
		gotEv = ev
	})

	f.FireEvent(42, RegisterEvent{PC: 0xdeadbeef})
	if gotPID != 42 || gotEv.PC != 0xdeadbeef {
		t.Errorf("callback got pid=%d ev=%+v", gotPID, gotEv)
	}
}
