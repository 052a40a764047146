package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Sentinel errors for command preconditions. Handlers return these (possibly
// wrapped) and the executor reverts the whole command, so a failed
// precondition never leaves a partial write behind.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotAdmin            = errors.New("caller is not the admin")
	ErrNotPending          = errors.New("record is not pending")
	ErrNotMinter           = errors.New("caller is not the minter")
	ErrNotTokenOwner       = errors.New("caller is not the token owner")
	ErrNotOwnerOrApproved  = errors.New("caller is not owner nor approved")
	ErrTokenNotFound       = errors.New("token not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrListingNotActive    = errors.New("listing is not active")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotBuyer            = errors.New("caller is not the transaction buyer")
	ErrInsufficientFee     = errors.New("listing fee not covered")
	ErrWrongDepositAmount  = errors.New("deposit must equal the listing price")
	ErrInsufficientBalance = errors.New("insufficient account balance")
	ErrAlreadyMinted       = errors.New("token already minted")
)
