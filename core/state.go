package core

import "github.com/holiman/uint256"

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed commands, and must
// commit atomically so a command's writes land together or not at all.
//
// The ownership index lives here as three views that are always mutated
// through ledger/ownership: the reverse map (parcel → owner), the forward
// list (owner → parcels, unordered) and the slot map (parcel → position in
// its owner's forward list) that keeps removal O(1).
type State interface {
	// Parcels
	GetParcel(id uint64) (*Parcel, error)
	SetParcel(p *Parcel) error

	// Ownership tokens
	GetToken(id uint64) (*Token, error)
	SetToken(t *Token) error

	// Ownership index
	GetParcelOwner(id uint64) (string, error)
	SetParcelOwner(id uint64, owner string) error
	GetOwnedParcels(owner string) ([]uint64, error)
	SetOwnedParcels(owner string, ids []uint64) error
	GetParcelSlot(id uint64) (int, error)
	SetParcelSlot(id uint64, slot int) error
	DeleteParcelSlot(id uint64) error

	// Transfer grants
	GetApproved(id uint64) (string, error) // empty string when no grant
	SetApproved(id uint64, operator string) error
	DeleteApproved(id uint64) error
	GetOperator(owner, operator string) (bool, error)
	SetOperator(owner, operator string, approved bool) error

	// Marketplace
	GetListing(id uint64) (*Listing, error)
	SetListing(l *Listing) error
	GetTransaction(id uint64) (*Transaction, error)
	SetTransaction(t *Transaction) error

	// Money
	GetAccount(address string) (*Account, error)
	SetAccount(a *Account) error
	GetEscrow(address string) (*uint256.Int, error)
	SetEscrow(address string, amount *uint256.Int) error
	GetTreasury() (*uint256.Int, error)
	SetTreasury(amount *uint256.Int) error

	// Authority and fee schedule
	GetFees() (*Fees, error)
	SetFees(f *Fees) error
	GetAdmin() (string, error)
	SetAdmin(address string) error
	GetMinter() (string, error)
	SetMinter(address string) error
	GetMarket() (string, error)
	SetMarket(address string) error

	// Id allocation. Counters start at 1 and are never reused, including
	// after a rejection; they are part of state so a reverted command
	// does not burn an id.
	NextParcelID() (uint64, error)
	NextListingID() (uint64, error)
	NextTransactionID() (uint64, error)

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current
	// write buffer without flushing.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
