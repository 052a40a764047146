package ledger

import (
	"fmt"
	"sync"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
)

// Executor applies commands to the state using the global Handler registry.
// A single writer lock serializes mutations so concurrent callers observe a
// strict total order; queries run under the read lock and only ever see the
// last committed state.
type Executor struct {
	mu      sync.RWMutex
	state   core.State
	emitter *events.Emitter
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter}
}

// Apply executes one command as a single atomic unit: snapshot the write
// buffer, run the handler, revert everything on any error, commit the
// buffer in one batch on success. There is no externally observable
// intermediate state.
func (e *Executor) Apply(cmd *core.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cmd.Caller == "" {
		return fmt.Errorf("command %s: %w: missing caller", cmd.Type, core.ErrInvalidInput)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	ctx := &Context{State: e.state, Cmd: cmd, Emitter: e.emitter}
	if err := globalRegistry.Execute(cmd.Type, ctx, cmd.Payload); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after command failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	if err := e.state.Commit(); err != nil {
		return fmt.Errorf("commit command %s: %w", cmd.ID, err)
	}
	return nil
}

// View runs fn against the last committed state under the read lock.
// Reads never block each other and never observe a command in flight.
func (e *Executor) View(fn func(core.State) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(e.state)
}

// StateRoot returns the deterministic root of the committed state.
func (e *Executor) StateRoot() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.ComputeRoot()
}
