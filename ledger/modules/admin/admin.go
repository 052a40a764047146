// Package admin manages the single privileged principal and the minter
// assignment.
package admin

import (
	"encoding/json"
	"fmt"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
	"github.com/landvn/landledger/ledger"
)

func init() {
	ledger.Register(core.CmdChangeAdmin, handleChangeAdmin)
	ledger.Register(core.CmdSetMinter, handleSetMinter)
}

func handleChangeAdmin(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.ChangeAdminPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode change_admin payload: %w", err)
	}
	if err := ctx.RequireAdmin(); err != nil {
		return err
	}
	if p.NewAdmin == "" {
		return fmt.Errorf("change_admin: %w", core.ErrInvalidInput)
	}
	if err := ctx.State.SetAdmin(p.NewAdmin); err != nil {
		return err
	}

	ctx.Emit(events.EventAdminChanged, map[string]any{"admin": p.NewAdmin})
	return nil
}

func handleSetMinter(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.SetMinterPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_minter payload: %w", err)
	}
	if err := ctx.RequireAdmin(); err != nil {
		return err
	}
	if p.NewMinter == "" {
		return fmt.Errorf("set_minter: %w", core.ErrInvalidInput)
	}
	return ctx.State.SetMinter(p.NewMinter)
}
