package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Fake is an in-memory Bridge used by tests for the scan engine, filter
// engine, and resolver. It models a single target process as a sparse set
// of byte regions and never touches the real OS.
type Fake struct {
	mu sync.Mutex

	regions      []Region
	modules      []Module
	processes    []ProcessInfo
	mem          map[uint64][]byte // region base -> bytes, matches a Region's [Start,End)
	suspendCount int

	watchpoints  map[uint64]WatchType
	breakpoints  map[uint64]int
	callback     EventCallback

	// FailReads/FailWrites simulate partial-failure: a Read/Write whose
	// start address is in these sets fails unconditionally, modeling an
	// unmapped or protected page.
	FailReads  map[uint64]bool
	FailWrites map[uint64]bool
}

// NewFake returns an empty Fake bridge.
func NewFake() *Fake {
	return &Fake{
		mem:         make(map[uint64][]byte),
		watchpoints: make(map[uint64]WatchType),
		breakpoints: make(map[uint64]int),
		FailReads:   make(map[uint64]bool),
		FailWrites:  make(map[uint64]bool),
	}
}

// SetRegion installs one contiguous block of target memory, starting at
// base. A block already installed at the same base has its bytes
// replaced; blocks at other bases are kept even where they overlap, and
// every call adds an entry to the region list.
func (f *Fake) SetRegion(base uint64, data []byte, prot string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mem[base] = append([]byte(nil), data...)
	f.regions = append(f.regions, Region{Start: base, End: base + uint64(len(data)), Protection: prot})
	sort.Slice(f.regions, func(i, j int) bool { return f.regions[i].Start < f.regions[j].Start })
}

// SetModule installs a module entry the resolver can look up by name.
func (f *Fake) SetModule(m Module) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modules = append(f.modules, m)
}

// SetProcesses installs the set of processes EnumProcesses reports.
func (f *Fake) SetProcesses(procs []ProcessInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processes = procs
}

// MutateWord overwrites bytes at address directly (bypassing Write),
// simulating the target process's own memory changing between scan
// passes, which is how filter-engine tests observe change.
func (f *Fake) MutateWord(address uint64, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeLocked(address, data)
}

func (f *Fake) writeLocked(address uint64, data []byte) bool {
	for base, buf := range f.mem {
		if address >= base && address+uint64(len(data)) <= base+uint64(len(buf)) {
			copy(buf[address-base:], data)
			return true
		}
	}
	return false
}

func (f *Fake) Read(_ context.Context, _ int, address uint64, size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailReads[address] {
		return nil, fmt.Errorf("fake bridge: read at 0x%x failed", address)
	}
	for base, buf := range f.mem {
		if address >= base && address+uint64(size) <= base+uint64(len(buf)) {
			out := make([]byte, size)
			copy(out, buf[address-base:address-base+uint64(size)])
			return out, nil
		}
	}
	return nil, fmt.Errorf("fake bridge: address 0x%x not mapped", address)
}

func (f *Fake) Write(_ context.Context, _ int, address uint64, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWrites[address] {
		return 0, fmt.Errorf("fake bridge: write at 0x%x failed", address)
	}
	if !f.writeLocked(address, data) {
		return 0, fmt.Errorf("fake bridge: address 0x%x not mapped", address)
	}
	return len(data), nil
}

func (f *Fake) Suspend(_ context.Context, _ int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspendCount++
	return true, nil
}

func (f *Fake) Resume(_ context.Context, _ int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.suspendCount == 0 {
		return false, nil
	}
	f.suspendCount--
	return true, nil
}

// SuspendCount reports the current nesting depth, for assertions on the
// process-state guard's discipline.
func (f *Fake) SuspendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suspendCount
}

func (f *Fake) EnumProcesses(_ context.Context) ([]ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ProcessInfo(nil), f.processes...), nil
}

func (f *Fake) EnumModules(_ context.Context, _ int) ([]Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Module(nil), f.modules...), nil
}

func (f *Fake) EnumRegions(_ context.Context, _ int) ([]Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Region(nil), f.regions...), nil
}

func (f *Fake) SetWatchpoint(_ context.Context, _ int, addr uint64, _ int, typ WatchType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchpoints[addr] = typ
	return nil
}

func (f *Fake) RemoveWatchpoint(_ context.Context, _ int, addr uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watchpoints, addr)
	return nil
}

func (f *Fake) SetBreakpoint(_ context.Context, _ int, addr uint64, hitCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakpoints[addr] = hitCount
	return nil
}

func (f *Fake) RemoveBreakpoint(_ context.Context, _ int, addr uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.breakpoints, addr)
	return nil
}

func (f *Fake) RegisterEventCallback(cb EventCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callback = cb
}

// FireEvent invokes the installed callback, simulating a watchpoint or
// breakpoint trapping in the target.
func (f *Fake) FireEvent(pid int, ev RegisterEvent) {
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	if cb != nil {
		cb(pid, ev)
	}
}

func (f *Fake) GetApplicationInfo(_ context.Context, _ int) ([]byte, error) {
	return []byte(`{"application":"fake"}`), nil
}
