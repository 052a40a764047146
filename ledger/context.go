package ledger

import (
	"fmt"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
)

// Context is passed to every Handler and provides access to the ledger
// state, the triggering command, and the event emitter.
type Context struct {
	State   core.State
	Cmd     *core.Command
	Emitter *events.Emitter
}

// RequireAdmin checks the caller against the admin principal recorded in
// state. The principal is consulted at call time, never cached by modules.
func (c *Context) RequireAdmin() error {
	admin, err := c.State.GetAdmin()
	if err != nil {
		return fmt.Errorf("admin principal: %w", err)
	}
	if c.Cmd.Caller != admin {
		return fmt.Errorf("caller %s: %w", c.Cmd.Caller, core.ErrNotAdmin)
	}
	return nil
}

// Emit publishes ev if an emitter is wired. Handlers call this only after
// their state changes have fully succeeded.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	if c.Emitter == nil {
		return
	}
	c.Emitter.Emit(events.Event{Type: typ, CmdID: c.Cmd.ID, Data: data})
}
