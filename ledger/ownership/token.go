package ownership

import (
	"errors"
	"fmt"

	"github.com/landvn/landledger/core"
)

// Mint creates the ownership token for an approved parcel. Only the
// configured minter principal (normally the registry module) may mint.
// Ownership itself is already indexed from registration time; minting only
// makes the token exist.
func Mint(st core.State, caller string, parcelID uint64, metadataURI string, mintedAt int64) error {
	minter, err := st.GetMinter()
	if err != nil {
		return fmt.Errorf("minter principal: %w", err)
	}
	if caller != minter {
		return fmt.Errorf("mint parcel %d by %s: %w", parcelID, caller, core.ErrNotMinter)
	}
	if _, err := st.GetToken(parcelID); err == nil {
		return fmt.Errorf("parcel %d: %w", parcelID, core.ErrAlreadyMinted)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	return st.SetToken(&core.Token{ID: parcelID, MetadataURI: metadataURI, MintedAt: mintedAt})
}

// OwnerOf resolves the current owner of a minted token.
func OwnerOf(st core.State, tokenID uint64) (string, error) {
	if _, err := st.GetToken(tokenID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("token %d: %w", tokenID, core.ErrTokenNotFound)
		}
		return "", err
	}
	return OwnerAddress(st, tokenID)
}

// Approve records a single-token transfer grant, overwriting any prior
// grant for that token. Only the current owner may grant it.
func Approve(st core.State, caller, operator string, tokenID uint64) error {
	owner, err := OwnerOf(st, tokenID)
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("approve token %d by %s: %w", tokenID, caller, core.ErrNotTokenOwner)
	}
	return st.SetApproved(tokenID, operator)
}

// SetApprovalForAll records or revokes a blanket grant from caller to operator.
func SetApprovalForAll(st core.State, caller, operator string, approved bool) error {
	if operator == "" {
		return fmt.Errorf("operator: %w", core.ErrInvalidInput)
	}
	return st.SetOperator(caller, operator, approved)
}

// canTransfer reports whether caller may move the token currently held by owner.
func canTransfer(st core.State, caller, owner string, tokenID uint64) (bool, error) {
	if caller == owner {
		return true, nil
	}
	approved, err := st.GetApproved(tokenID)
	if err != nil {
		return false, err
	}
	if approved != "" && caller == approved {
		return true, nil
	}
	return st.GetOperator(owner, caller)
}

// TransferWithIdentifier moves the token to a new owner and rewrites the
// parcel's stored identifier to the new owner's token in the same step.
// Caller must be the owner, the single-token approved address, or an
// approved operator for the owner. Any single-token grant is cleared.
// The identifier the parcel carried before the rewrite is returned so
// callers can emit it for secondary indexes.
func TransferWithIdentifier(st core.State, caller, from, to string, tokenID uint64, newIdentifier string) (string, error) {
	if to == "" || newIdentifier == "" {
		return "", fmt.Errorf("transfer token %d: %w", tokenID, core.ErrInvalidInput)
	}
	owner, err := OwnerOf(st, tokenID)
	if err != nil {
		return "", err
	}
	if from != owner {
		return "", fmt.Errorf("transfer token %d from %s (owner %s): %w",
			tokenID, from, owner, core.ErrNotOwnerOrApproved)
	}
	ok, err := canTransfer(st, caller, owner, tokenID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("transfer token %d by %s: %w", tokenID, caller, core.ErrNotOwnerOrApproved)
	}

	if err := Transfer(st, tokenID, from, to); err != nil {
		return "", err
	}
	if err := st.DeleteApproved(tokenID); err != nil {
		return "", err
	}

	parcel, err := st.GetParcel(tokenID)
	if err != nil {
		return "", err
	}
	prev := parcel.OwnerIdentifier
	parcel.OwnerIdentifier = newIdentifier
	return prev, st.SetParcel(parcel)
}
