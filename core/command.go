package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/crypto"
)

// CmdType identifies the kind of operation a command performs.
type CmdType string

const (
	CmdRegisterParcel         CmdType = "register_parcel"
	CmdApproveParcel          CmdType = "approve_parcel"
	CmdRejectParcel           CmdType = "reject_parcel"
	CmdApproveToken           CmdType = "approve_token"
	CmdSetApprovalForAll      CmdType = "set_approval_for_all"
	CmdTransferWithIdentifier CmdType = "transfer_with_identifier"
	CmdCreateListing          CmdType = "create_listing"
	CmdInitiateTransaction    CmdType = "initiate_transaction"
	CmdApproveTransaction     CmdType = "approve_transaction"
	CmdRejectTransaction      CmdType = "reject_transaction"
	CmdBuyerCancel            CmdType = "buyer_cancel"
	CmdSetFees                CmdType = "set_fees"
	CmdChangeAdmin            CmdType = "change_admin"
	CmdSetMinter              CmdType = "set_minter"
)

// Command is the atomic unit of work on the ledger. Caller is the address
// the boundary authenticated; the core treats it as an opaque principal
// (caller authentication, like key custody, lives outside the core).
type Command struct {
	ID        string          `json:"id"`
	Type      CmdType         `json:"type"`
	Caller    string          `json:"caller"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// hashBody holds the fields covered by the command id.
type hashBody struct {
	Type      CmdType         `json:"type"`
	Caller    string          `json:"caller"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the command.
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (c *Command) Hash() string {
	data, err := json.Marshal(hashBody{
		Type:      c.Type,
		Caller:    c.Caller,
		Timestamp: c.Timestamp,
		Payload:   c.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// NewCommand creates a command with the current timestamp and a derived id.
func NewCommand(typ CmdType, caller string, payload any) (*Command, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	cmd := &Command{
		Type:      typ,
		Caller:    caller,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}
	cmd.ID = cmd.Hash()
	return cmd, nil
}

// ---- Payload types ----

// RegisterParcelPayload submits a new land record for approval.
type RegisterParcelPayload struct {
	Location        string `json:"location"`
	Area            uint64 `json:"area"`
	OwnerIdentifier string `json:"owner_identifier"`
	DocumentURI     string `json:"document_uri"`
	ImageURI        string `json:"image_uri"`
}

// ApproveParcelPayload approves a pending parcel and mints its token.
type ApproveParcelPayload struct {
	ParcelID    uint64 `json:"parcel_id"`
	MetadataURI string `json:"metadata_uri"`
}

// RejectParcelPayload rejects a pending parcel. Terminal.
type RejectParcelPayload struct {
	ParcelID uint64 `json:"parcel_id"`
}

// ApproveTokenPayload grants a single-token transfer approval.
type ApproveTokenPayload struct {
	Operator string `json:"operator"`
	TokenID  uint64 `json:"token_id"`
}

// SetApprovalForAllPayload grants or revokes a blanket operator approval.
type SetApprovalForAllPayload struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

// TransferWithIdentifierPayload moves a token to a new owner and rewrites
// the parcel's stored identifier in the same step.
type TransferWithIdentifierPayload struct {
	From          string `json:"from"`
	To            string `json:"to"`
	TokenID       uint64 `json:"token_id"`
	NewIdentifier string `json:"new_identifier"`
}

// CreateListingPayload lists a token for sale. FeePaid is collected into
// the treasury unconditionally and is never refunded.
type CreateListingPayload struct {
	TokenID          uint64       `json:"token_id"`
	SellerIdentifier string       `json:"seller_identifier"`
	Price            *uint256.Int `json:"price"`
	FeePaid          *uint256.Int `json:"fee_paid"`
}

// InitiateTransactionPayload escrows a deposit against an active listing.
// Deposit must equal the listing price exactly.
type InitiateTransactionPayload struct {
	ListingID       uint64       `json:"listing_id"`
	BuyerIdentifier string       `json:"buyer_identifier"`
	Deposit         *uint256.Int `json:"deposit"`
}

// ApproveTransactionPayload completes a sale: token transfer, seller
// payment and escrow release happen as one unit.
type ApproveTransactionPayload struct {
	TransactionID uint64 `json:"transaction_id"`
}

// RejectTransactionPayload refunds the buyer in full and reactivates the listing.
type RejectTransactionPayload struct {
	TransactionID uint64 `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// BuyerCancelPayload lets the buyer withdraw, forfeiting the cancel penalty.
type BuyerCancelPayload struct {
	TransactionID uint64 `json:"transaction_id"`
}

// SetFeesPayload replaces the fee schedule for future operations.
type SetFeesPayload struct {
	ListingFee    *uint256.Int `json:"listing_fee"`
	CancelPenalty *uint256.Int `json:"cancel_penalty"`
}

// ChangeAdminPayload hands the admin authority to a new principal.
type ChangeAdminPayload struct {
	NewAdmin string `json:"new_admin"`
}

// SetMinterPayload replaces the minting principal.
type SetMinterPayload struct {
	NewMinter string `json:"new_minter"`
}
