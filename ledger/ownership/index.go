// Package ownership maintains the bidirectional parcel↔owner index and the
// ownership-token operations built on top of it. Both the token module and
// the marketplace module go through this package, so the reverse map and
// the per-owner forward lists can never disagree.
package ownership

import (
	"errors"
	"fmt"

	"github.com/landvn/landledger/core"
)

// Add appends id to owner's forward list and points the reverse map at
// owner. The forward list is unordered membership only; the slot map keeps
// each parcel's position so removal stays O(1).
func Add(st core.State, owner string, id uint64) error {
	ids, err := st.GetOwnedParcels(owner)
	if err != nil {
		return err
	}
	if err := st.SetParcelSlot(id, len(ids)); err != nil {
		return err
	}
	if err := st.SetOwnedParcels(owner, append(ids, id)); err != nil {
		return err
	}
	return st.SetParcelOwner(id, owner)
}

// Remove evicts id from owner's forward list by overwriting its slot with
// the list's last element and truncating. Order is not preserved. A missing
// membership is a caller bug and is reported as ErrNotFound.
func Remove(st core.State, owner string, id uint64) error {
	cur, err := st.GetParcelOwner(id)
	if err != nil || cur != owner {
		return fmt.Errorf("parcel %d not held by %s: %w", id, owner, core.ErrNotFound)
	}

	slot, err := st.GetParcelSlot(id)
	if err != nil {
		return fmt.Errorf("parcel %d has no slot: %w", id, core.ErrNotFound)
	}
	ids, err := st.GetOwnedParcels(owner)
	if err != nil {
		return err
	}
	if slot >= len(ids) || ids[slot] != id {
		return fmt.Errorf("slot map out of sync for parcel %d: %w", id, core.ErrNotFound)
	}

	last := ids[len(ids)-1]
	ids[slot] = last
	ids = ids[:len(ids)-1]
	if last != id {
		if err := st.SetParcelSlot(last, slot); err != nil {
			return err
		}
	}
	if err := st.DeleteParcelSlot(id); err != nil {
		return err
	}
	return st.SetOwnedParcels(owner, ids)
}

// Transfer moves id from one owner to another. It runs inside the calling
// command's snapshot window, so either both halves happen or neither does.
func Transfer(st core.State, id uint64, from, to string) error {
	if err := Remove(st, from, id); err != nil {
		return err
	}
	return Add(st, to, id)
}

// OwnerAddress returns the reverse-map entry for id regardless of whether a
// token has been minted. Pending parcels have an owner here from the moment
// they are registered.
func OwnerAddress(st core.State, id uint64) (string, error) {
	owner, err := st.GetParcelOwner(id)
	if errors.Is(err, core.ErrNotFound) {
		return "", fmt.Errorf("parcel %d: %w", id, core.ErrNotFound)
	}
	return owner, err
}
