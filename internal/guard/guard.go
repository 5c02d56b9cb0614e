// Package guard implements the suspend/resume discipline around a scan or
// filter pass: if requested, suspend the target before the pass and
// resume it afterward on every exit path, including errors.
package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/dorastack/memscan/internal/bridge"
)

// Guard tracks the client's desired final run state for the target
// process (do_play), which a separate "change process state" call may
// flip independently of any single scan/filter request.
type Guard struct {
	mu     sync.RWMutex
	doPlay bool
}

// New returns a Guard defaulting to do_play = true (target should be
// left running after a pass unless told otherwise).
func New() *Guard {
	return &Guard{doPlay: true}
}

// SetDoPlay updates the desired final run state.
func (g *Guard) SetDoPlay(v bool) {
	g.mu.Lock()
	g.doPlay = v
	g.mu.Unlock()
}

// DoPlay reports the current desired final run state.
func (g *Guard) DoPlay() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.doPlay
}

// Run suspends pid through br if doSuspend is set, invokes fn, and
// resumes pid afterward iff the suspend succeeded and DoPlay is true —
// on every return path out of fn, success or error.
func (g *Guard) Run(ctx context.Context, br bridge.Bridge, pid int, doSuspend bool, fn func() error) error {
	suspended := false
	if doSuspend {
		ok, err := br.Suspend(ctx, pid)
		if err != nil {
			return fmt.Errorf("guard: suspend pid=%d: %w", pid, err)
		}
		suspended = ok
	}
	defer func() {
		if suspended && g.DoPlay() {
			br.Resume(ctx, pid)
		}
	}()
	return fn()
}
