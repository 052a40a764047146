// Package token exposes the ownership-token operations callers use
// directly: transfer grants and owner-initiated transfers.
package token

import (
	"encoding/json"
	"fmt"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
	"github.com/landvn/landledger/ledger"
	"github.com/landvn/landledger/ledger/ownership"
)

func init() {
	ledger.Register(core.CmdApproveToken, handleApproveToken)
	ledger.Register(core.CmdSetApprovalForAll, handleSetApprovalForAll)
	ledger.Register(core.CmdTransferWithIdentifier, handleTransferWithIdentifier)
}

func handleApproveToken(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.ApproveTokenPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode approve_token payload: %w", err)
	}
	return ownership.Approve(ctx.State, ctx.Cmd.Caller, p.Operator, p.TokenID)
}

func handleSetApprovalForAll(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.SetApprovalForAllPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_approval_for_all payload: %w", err)
	}
	return ownership.SetApprovalForAll(ctx.State, ctx.Cmd.Caller, p.Operator, p.Approved)
}

func handleTransferWithIdentifier(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.TransferWithIdentifierPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_with_identifier payload: %w", err)
	}
	prev, err := ownership.TransferWithIdentifier(ctx.State, ctx.Cmd.Caller, p.From, p.To, p.TokenID, p.NewIdentifier)
	if err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"token_id":        p.TokenID,
		"from":            p.From,
		"to":              p.To,
		"identifier":      p.NewIdentifier,
		"prev_identifier": prev,
	})
	return nil
}
