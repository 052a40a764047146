// Package registry implements the parcel registration workflow: submission
// by a registrant, then administrative approval (which mints the ownership
// token) or rejection. Both outcomes are terminal.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
	"github.com/landvn/landledger/ledger"
	"github.com/landvn/landledger/ledger/ownership"
)

func init() {
	ledger.Register(core.CmdRegisterParcel, handleRegisterParcel)
	ledger.Register(core.CmdApproveParcel, handleApproveParcel)
	ledger.Register(core.CmdRejectParcel, handleRejectParcel)
}

func handleRegisterParcel(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.RegisterParcelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode register_parcel payload: %w", err)
	}
	if p.Location == "" || p.DocumentURI == "" || p.ImageURI == "" || p.OwnerIdentifier == "" {
		return fmt.Errorf("register_parcel: empty field: %w", core.ErrInvalidInput)
	}
	if p.Area == 0 {
		return fmt.Errorf("register_parcel: area must be > 0: %w", core.ErrInvalidInput)
	}

	id, err := ctx.State.NextParcelID()
	if err != nil {
		return err
	}
	parcel := &core.Parcel{
		ID:              id,
		Location:        p.Location,
		Area:            p.Area,
		OwnerIdentifier: p.OwnerIdentifier,
		Status:          core.ParcelPending,
		DocumentURI:     p.DocumentURI,
		ImageURI:        p.ImageURI,
		Registrant:      ctx.Cmd.Caller,
	}
	if err := ctx.State.SetParcel(parcel); err != nil {
		return err
	}
	// The registrant holds the parcel from submission time, so pending and
	// approved parcels alike show up in their forward list.
	if err := ownership.Add(ctx.State, ctx.Cmd.Caller, id); err != nil {
		return err
	}

	ctx.Emit(events.EventParcelRegistered, map[string]any{
		"parcel_id":  id,
		"registrant": ctx.Cmd.Caller,
		"identifier": p.OwnerIdentifier,
	})
	return nil
}

func handleApproveParcel(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.ApproveParcelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode approve_parcel payload: %w", err)
	}
	if err := ctx.RequireAdmin(); err != nil {
		return err
	}

	parcel, err := ctx.State.GetParcel(p.ParcelID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("parcel %d: %w", p.ParcelID, core.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if parcel.Status != core.ParcelPending {
		return fmt.Errorf("parcel %d is %s: %w", parcel.ID, parcel.Status, core.ErrNotPending)
	}

	parcel.Status = core.ParcelApproved
	if err := ctx.State.SetParcel(parcel); err != nil {
		return err
	}
	// The token goes to the registrant recorded at registration time.
	if err := ownership.Mint(ctx.State, core.RegistryPrincipal, parcel.ID, p.MetadataURI, ctx.Cmd.Timestamp); err != nil {
		return err
	}

	ctx.Emit(events.EventParcelApproved, map[string]any{"parcel_id": parcel.ID})
	ctx.Emit(events.EventTokenMinted, map[string]any{
		"token_id": parcel.ID,
		"owner":    parcel.Registrant,
	})
	return nil
}

func handleRejectParcel(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.RejectParcelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reject_parcel payload: %w", err)
	}
	if err := ctx.RequireAdmin(); err != nil {
		return err
	}

	parcel, err := ctx.State.GetParcel(p.ParcelID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("parcel %d: %w", p.ParcelID, core.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if parcel.Status != core.ParcelPending {
		return fmt.Errorf("parcel %d is %s: %w", parcel.ID, parcel.Status, core.ErrNotPending)
	}

	// No token is minted and the id is never revisited.
	parcel.Status = core.ParcelRejected
	if err := ctx.State.SetParcel(parcel); err != nil {
		return err
	}

	ctx.Emit(events.EventParcelRejected, map[string]any{"parcel_id": parcel.ID})
	return nil
}
