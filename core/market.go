package core

import "github.com/holiman/uint256"

// ListingStatus tracks a sale offer. An Active listing whose transaction was
// rejected or cancelled is reused for the next buyer under the same id;
// Completed is terminal and the id is never reused.
type ListingStatus uint8

const (
	ListingActive        ListingStatus = 0
	ListingInTransaction ListingStatus = 1
	ListingCompleted     ListingStatus = 2
)

func (s ListingStatus) String() string {
	switch s {
	case ListingActive:
		return "active"
	case ListingInTransaction:
		return "in_transaction"
	case ListingCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// TransactionStatus tracks a buyer's escrowed purchase attempt.
// Approved, Rejected and Cancelled are all terminal.
type TransactionStatus uint8

const (
	TxPending   TransactionStatus = 0
	TxApproved  TransactionStatus = 1
	TxRejected  TransactionStatus = 2
	TxCancelled TransactionStatus = 3
)

func (s TransactionStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxApproved:
		return "approved"
	case TxRejected:
		return "rejected"
	case TxCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Listing is an offer to sell an approved parcel's ownership token at a
// fixed price. Price and SellerIdentifier are snapshots taken when the
// listing is created; later fee changes or identifier rewrites do not
// touch them.
type Listing struct {
	ID               uint64        `json:"id"`
	ParcelID         uint64        `json:"parcel_id"`
	SellerIdentifier string        `json:"seller_identifier"`
	Price            *uint256.Int  `json:"price"`
	Status           ListingStatus `json:"status"`
	CreatedAt        int64         `json:"created_at"`
}

// Transaction is a buyer's escrowed attempt to complete a listing's sale,
// pending administrative arbitration. Amount equals the listing price at
// initiation time.
type Transaction struct {
	ID              uint64            `json:"id"`
	ListingID       uint64            `json:"listing_id"`
	BuyerIdentifier string            `json:"buyer_identifier"`
	BuyerAddress    string            `json:"buyer_address"`
	Amount          *uint256.Int      `json:"amount"`
	Status          TransactionStatus `json:"status"`
	CreatedAt       int64             `json:"created_at"`
}

// Fees holds the marketplace fee schedule. Changes apply only to operations
// initiated afterwards; in-flight listings and transactions keep the
// amounts they were created with.
type Fees struct {
	ListingFee    *uint256.Int `json:"listing_fee"`
	CancelPenalty *uint256.Int `json:"cancel_penalty"`
}

// Account holds a participant's settlement balance. Deposits and listing
// fees are debited from it; payments and refunds are credited to it.
type Account struct {
	Address string       `json:"address"`
	Balance *uint256.Int `json:"balance"`
}
