// Package eventqueue is the bounded FIFO of register snapshots captured
// by armed watchpoints and breakpoints, drained by client polling.
package eventqueue

import (
	"context"
	"sync"

	"github.com/dorastack/memscan/internal/bridge"
)

// Event is one captured register snapshot, annotated with a disassembly
// string for the bytes at PC.
type Event struct {
	PID         int            `json:"pid"`
	PC          uint64         `json:"pc"`
	Registers   map[string]any `json:"registers"`
	Disassembly string         `json:"disassembly,omitempty"`
}

// Queue is a mutex-guarded bounded FIFO. Pushing past capacity drops the
// oldest entry rather than rejecting the new one.
type Queue struct {
	mu       sync.Mutex
	items    []Event
	capacity int
}

// New returns an empty queue bounded at capacity entries.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{capacity: capacity}
}

// Push appends ev, dropping the oldest entry first if the queue is full.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
	}
	q.items = append(q.items, ev)
}

// Drain atomically removes and returns every queued event.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Disassembler renders the bytes at pc into a human-readable instruction
// string. The core has no disassembler of its own — this is the hook an
// external collaborator plugs in.
type Disassembler func(pc uint64, data []byte) string

// NewSink builds a bridge.EventCallback that reads 4 bytes at the event's
// PC, annotates the event with a disassembly string, and enqueues it —
// the bridge → core capture path described for the event queue.
func NewSink(ctx context.Context, br bridge.Bridge, q *Queue, disasm Disassembler) bridge.EventCallback {
	return func(pid int, ev bridge.RegisterEvent) {
		data, _ := br.Read(ctx, pid, ev.PC, 4) // best effort: a failed read just yields no disassembly

		var text string
		if disasm != nil {
			text = disasm(ev.PC, data)
		}
		q.Push(Event{PID: pid, PC: ev.PC, Registers: ev.Registers, Disassembly: text})
	}
}
