// Package market implements the escrow-mediated, admin-arbitrated
// marketplace: listings, buyer deposits, and the three ways a pending
// transaction resolves (approval, rejection, buyer cancellation).
package market

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
	"github.com/landvn/landledger/ledger"
	"github.com/landvn/landledger/ledger/ownership"
)

func init() {
	ledger.Register(core.CmdCreateListing, handleCreateListing)
	ledger.Register(core.CmdInitiateTransaction, handleInitiateTransaction)
	ledger.Register(core.CmdApproveTransaction, handleApproveTransaction)
	ledger.Register(core.CmdRejectTransaction, handleRejectTransaction)
	ledger.Register(core.CmdBuyerCancel, handleBuyerCancel)
	ledger.Register(core.CmdSetFees, handleSetFees)
}

func handleCreateListing(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.CreateListingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode create_listing payload: %w", err)
	}
	if p.Price == nil || p.Price.IsZero() || p.SellerIdentifier == "" {
		return fmt.Errorf("create_listing: %w", core.ErrInvalidInput)
	}
	feePaid := p.FeePaid
	if feePaid == nil {
		feePaid = uint256.NewInt(0)
	}

	fees, err := ctx.State.GetFees()
	if err != nil {
		return fmt.Errorf("fee schedule: %w", err)
	}
	if feePaid.Lt(fees.ListingFee) {
		return fmt.Errorf("fee paid %s < listing fee %s: %w",
			feePaid.Dec(), fees.ListingFee.Dec(), core.ErrInsufficientFee)
	}

	owner, err := ownership.OwnerOf(ctx.State, p.TokenID)
	if err != nil {
		return err
	}
	if ctx.Cmd.Caller != owner {
		return fmt.Errorf("create_listing for token %d by %s: %w",
			p.TokenID, ctx.Cmd.Caller, core.ErrNotTokenOwner)
	}

	// The fee is collected into the treasury unconditionally and is never
	// refunded, even if the listing never sells.
	if err := debit(ctx.State, ctx.Cmd.Caller, feePaid); err != nil {
		return err
	}
	if err := treasuryAdd(ctx.State, feePaid); err != nil {
		return err
	}

	id, err := ctx.State.NextListingID()
	if err != nil {
		return err
	}
	listing := &core.Listing{
		ID:               id,
		ParcelID:         p.TokenID,
		SellerIdentifier: p.SellerIdentifier, // snapshot, not re-read later
		Price:            p.Price.Clone(),    // snapshot
		Status:           core.ListingActive,
		CreatedAt:        ctx.Cmd.Timestamp,
	}
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emit(events.EventListingCreated, map[string]any{
		"listing_id": id,
		"token_id":   p.TokenID,
		"seller":     ctx.Cmd.Caller,
		"price":      p.Price.Dec(),
	})
	return nil
}

func handleInitiateTransaction(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.InitiateTransactionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode initiate_transaction payload: %w", err)
	}
	if p.BuyerIdentifier == "" {
		return fmt.Errorf("initiate_transaction: %w", core.ErrInvalidInput)
	}

	listing, err := getListing(ctx.State, p.ListingID)
	if err != nil {
		return err
	}
	if listing.Status != core.ListingActive {
		return fmt.Errorf("listing %d is %s: %w", listing.ID, listing.Status, core.ErrListingNotActive)
	}
	// Exact-amount escrow: both overpayment and underpayment are refused.
	if p.Deposit == nil || !p.Deposit.Eq(listing.Price) {
		return fmt.Errorf("listing %d wants %s: %w", listing.ID, listing.Price.Dec(), core.ErrWrongDepositAmount)
	}

	buyer := ctx.Cmd.Caller
	if err := debit(ctx.State, buyer, p.Deposit); err != nil {
		return err
	}
	if err := escrowAdd(ctx.State, buyer, p.Deposit); err != nil {
		return err
	}

	id, err := ctx.State.NextTransactionID()
	if err != nil {
		return err
	}
	txn := &core.Transaction{
		ID:              id,
		ListingID:       listing.ID,
		BuyerIdentifier: p.BuyerIdentifier,
		BuyerAddress:    buyer,
		Amount:          p.Deposit.Clone(),
		Status:          core.TxPending,
		CreatedAt:       ctx.Cmd.Timestamp,
	}
	if err := ctx.State.SetTransaction(txn); err != nil {
		return err
	}

	listing.Status = core.ListingInTransaction
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emit(events.EventTxInitiated, map[string]any{
		"transaction_id": id,
		"listing_id":     listing.ID,
		"buyer":          buyer,
		"amount":         txn.Amount.Dec(),
	})
	return nil
}

func handleApproveTransaction(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.ApproveTransactionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode approve_transaction payload: %w", err)
	}
	if err := ctx.RequireAdmin(); err != nil {
		return err
	}

	txn, err := getTransaction(ctx.State, p.TransactionID)
	if err != nil {
		return err
	}
	if txn.Status != core.TxPending {
		return fmt.Errorf("transaction %d is %s: %w", txn.ID, txn.Status, core.ErrNotPending)
	}
	listing, err := getListing(ctx.State, txn.ListingID)
	if err != nil {
		return err
	}

	// Resolve the seller from the token, not the listing: the listing only
	// snapshots an identifier. The payment goes to whoever holds the token
	// immediately before the transfer.
	seller, err := ownership.OwnerOf(ctx.State, listing.ParcelID)
	if err != nil {
		return err
	}
	marketPrincipal, err := ctx.State.GetMarket()
	if err != nil {
		return fmt.Errorf("market principal: %w", err)
	}
	// If the seller never granted the marketplace transfer approval this
	// fails, and with it the entire command: no payment, no status change.
	prevIdentifier, err := ownership.TransferWithIdentifier(ctx.State, marketPrincipal,
		seller, txn.BuyerAddress, listing.ParcelID, txn.BuyerIdentifier)
	if err != nil {
		return err
	}

	if err := credit(ctx.State, seller, txn.Amount); err != nil {
		return err
	}
	if err := escrowSub(ctx.State, txn.BuyerAddress, txn.Amount); err != nil {
		return err
	}

	txn.Status = core.TxApproved
	if err := ctx.State.SetTransaction(txn); err != nil {
		return err
	}
	listing.Status = core.ListingCompleted
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"token_id":        listing.ParcelID,
		"from":            seller,
		"to":              txn.BuyerAddress,
		"identifier":      txn.BuyerIdentifier,
		"prev_identifier": prevIdentifier,
	})
	ctx.Emit(events.EventTxApproved, map[string]any{
		"transaction_id": txn.ID,
		"listing_id":     listing.ID,
		"seller":         seller,
		"buyer":          txn.BuyerAddress,
	})
	return nil
}

func handleRejectTransaction(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.RejectTransactionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reject_transaction payload: %w", err)
	}
	if err := ctx.RequireAdmin(); err != nil {
		return err
	}

	txn, err := getTransaction(ctx.State, p.TransactionID)
	if err != nil {
		return err
	}
	if txn.Status != core.TxPending {
		return fmt.Errorf("transaction %d is %s: %w", txn.ID, txn.Status, core.ErrNotPending)
	}
	listing, err := getListing(ctx.State, txn.ListingID)
	if err != nil {
		return err
	}

	// Full refund; the listing becomes sellable again under the same id.
	if err := escrowSub(ctx.State, txn.BuyerAddress, txn.Amount); err != nil {
		return err
	}
	if err := credit(ctx.State, txn.BuyerAddress, txn.Amount); err != nil {
		return err
	}

	txn.Status = core.TxRejected
	if err := ctx.State.SetTransaction(txn); err != nil {
		return err
	}
	listing.Status = core.ListingActive
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emit(events.EventTxRejected, map[string]any{
		"transaction_id": txn.ID,
		"listing_id":     listing.ID,
		"reason":         p.Reason,
	})
	return nil
}

func handleBuyerCancel(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.BuyerCancelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buyer_cancel payload: %w", err)
	}

	txn, err := getTransaction(ctx.State, p.TransactionID)
	if err != nil {
		return err
	}
	if ctx.Cmd.Caller != txn.BuyerAddress {
		return fmt.Errorf("buyer_cancel of transaction %d by %s: %w",
			txn.ID, ctx.Cmd.Caller, core.ErrNotBuyer)
	}
	if txn.Status != core.TxPending {
		return fmt.Errorf("transaction %d is %s: %w", txn.ID, txn.Status, core.ErrNotPending)
	}
	listing, err := getListing(ctx.State, txn.ListingID)
	if err != nil {
		return err
	}

	fees, err := ctx.State.GetFees()
	if err != nil {
		return fmt.Errorf("fee schedule: %w", err)
	}
	penalty := fees.CancelPenalty.Clone()
	if penalty.Gt(txn.Amount) {
		penalty = txn.Amount.Clone()
	}
	refund := new(uint256.Int).Sub(txn.Amount, penalty)

	if err := escrowSub(ctx.State, txn.BuyerAddress, txn.Amount); err != nil {
		return err
	}
	if err := credit(ctx.State, txn.BuyerAddress, refund); err != nil {
		return err
	}
	if err := treasuryAdd(ctx.State, penalty); err != nil {
		return err
	}

	txn.Status = core.TxCancelled
	if err := ctx.State.SetTransaction(txn); err != nil {
		return err
	}
	listing.Status = core.ListingActive
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emit(events.EventTxCancelled, map[string]any{
		"transaction_id": txn.ID,
		"listing_id":     listing.ID,
		"refund":         refund.Dec(),
		"penalty":        penalty.Dec(),
	})
	return nil
}

func handleSetFees(ctx *ledger.Context, payload json.RawMessage) error {
	var p core.SetFeesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_fees payload: %w", err)
	}
	if err := ctx.RequireAdmin(); err != nil {
		return err
	}
	if p.ListingFee == nil || p.CancelPenalty == nil {
		return fmt.Errorf("set_fees: %w", core.ErrInvalidInput)
	}

	// Prospective only: amounts already snapshotted into listings and
	// transactions are unaffected.
	fees := &core.Fees{
		ListingFee:    p.ListingFee.Clone(),
		CancelPenalty: p.CancelPenalty.Clone(),
	}
	if err := ctx.State.SetFees(fees); err != nil {
		return err
	}

	ctx.Emit(events.EventFeesUpdated, map[string]any{
		"listing_fee":    fees.ListingFee.Dec(),
		"cancel_penalty": fees.CancelPenalty.Dec(),
	})
	return nil
}

// ---- lookup and money helpers ----

func getListing(st core.State, id uint64) (*core.Listing, error) {
	l, err := st.GetListing(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("listing %d: %w", id, core.ErrListingNotFound)
	}
	return l, err
}

func getTransaction(st core.State, id uint64) (*core.Transaction, error) {
	t, err := st.GetTransaction(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("transaction %d: %w", id, core.ErrTransactionNotFound)
	}
	return t, err
}

func debit(st core.State, address string, amount *uint256.Int) error {
	acc, err := st.GetAccount(address)
	if err != nil {
		return err
	}
	if acc.Balance.Lt(amount) {
		return fmt.Errorf("%s has %s, needs %s: %w",
			address, acc.Balance.Dec(), amount.Dec(), core.ErrInsufficientBalance)
	}
	acc.Balance = new(uint256.Int).Sub(acc.Balance, amount)
	return st.SetAccount(acc)
}

func credit(st core.State, address string, amount *uint256.Int) error {
	acc, err := st.GetAccount(address)
	if err != nil {
		return err
	}
	acc.Balance = new(uint256.Int).Add(acc.Balance, amount)
	return st.SetAccount(acc)
}

func escrowAdd(st core.State, address string, amount *uint256.Int) error {
	cur, err := st.GetEscrow(address)
	if err != nil {
		return err
	}
	return st.SetEscrow(address, new(uint256.Int).Add(cur, amount))
}

func escrowSub(st core.State, address string, amount *uint256.Int) error {
	cur, err := st.GetEscrow(address)
	if err != nil {
		return err
	}
	if cur.Lt(amount) {
		return fmt.Errorf("escrow for %s has %s, needs %s: %w",
			address, cur.Dec(), amount.Dec(), core.ErrInsufficientBalance)
	}
	return st.SetEscrow(address, new(uint256.Int).Sub(cur, amount))
}

func treasuryAdd(st core.State, amount *uint256.Int) error {
	cur, err := st.GetTreasury()
	if err != nil {
		return err
	}
	return st.SetTreasury(new(uint256.Int).Add(cur, amount))
}
