package api

import (
	"log/slog"
	"sync"

	"github.com/dorastack/memscan/internal/bridge"
	"github.com/dorastack/memscan/internal/eventqueue"
	"github.com/dorastack/memscan/internal/filter"
	"github.com/dorastack/memscan/internal/guard"
	"github.com/dorastack/memscan/internal/scanner"
	"github.com/dorastack/memscan/internal/scanstore"
)

// Core wires every package the client API fronts: a single attached pid,
// the bridge to that process, the scan/filter engines over a shared
// session store, the suspend/resume guard, and the captured-event queue.
// One Core backs one HTTP server; there is exactly one attached pid at a
// time, matching the client API's "attach then operate" shape.
type Core struct {
	mu       sync.RWMutex
	pid      int
	attached bool

	Bridge  bridge.Bridge
	Store   *scanstore.Store
	Scanner *scanner.Engine
	Filter  *filter.Engine
	Guard   *guard.Guard
	Events  *eventqueue.Queue

	MaxResults               int
	MaterializationThreshold int

	Log *slog.Logger
}

// NewCore assembles a Core from its already-constructed collaborators.
func NewCore(br bridge.Bridge, store *scanstore.Store, scanEng *scanner.Engine, filterEng *filter.Engine, g *guard.Guard, events *eventqueue.Queue, maxResults, materializationThreshold int, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	return &Core{
		Bridge:                   br,
		Store:                    store,
		Scanner:                  scanEng,
		Filter:                   filterEng,
		Guard:                    g,
		Events:                   events,
		MaxResults:               maxResults,
		MaterializationThreshold: materializationThreshold,
		Log:                      log,
	}
}

// Attach records pid as the process future calls operate on.
func (c *Core) Attach(pid int) {
	c.mu.Lock()
	c.pid = pid
	c.attached = true
	c.mu.Unlock()
}

// PID returns the attached pid, or false if nothing has been attached yet.
func (c *Core) PID() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pid, c.attached
}
