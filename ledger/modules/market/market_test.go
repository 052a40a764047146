package market

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
	"github.com/landvn/landledger/internal/testutil"
	"github.com/landvn/landledger/ledger"
	"github.com/landvn/landledger/ledger/ownership"
)

func wei(dec string) *uint256.Int {
	v, err := uint256.FromDecimal(dec)
	if err != nil {
		panic(err)
	}
	return v
}

var (
	price      = wei("1000000000000000000") // 1e18
	listingFee = wei("10000000000000000")   // 1e16
	penalty    = wei("5000000000000000")    // 5e15
	seedFunds  = wei("3000000000000000000") // 3e18
)

// newState builds a ledger with one minted token held by "seller" and
// funded seller/buyer accounts. The seller has already granted the
// marketplace principal blanket transfer approval.
func newState(t *testing.T) core.State {
	t.Helper()
	st := testutil.NewStateDB()
	if err := st.SetAdmin("admin"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetMinter(core.RegistryPrincipal); err != nil {
		t.Fatal(err)
	}
	if err := st.SetMarket(core.MarketPrincipal); err != nil {
		t.Fatal(err)
	}
	if err := st.SetFees(&core.Fees{ListingFee: listingFee.Clone(), CancelPenalty: penalty.Clone()}); err != nil {
		t.Fatal(err)
	}
	for _, addr := range []string{"seller", "buyer"} {
		if err := st.SetAccount(&core.Account{Address: addr, Balance: seedFunds.Clone()}); err != nil {
			t.Fatal(err)
		}
	}

	if err := st.SetParcel(&core.Parcel{
		ID:              1,
		Location:        "Binh Thanh, TP.HCM",
		Area:            64,
		OwnerIdentifier: "tok-seller",
		Status:          core.ParcelApproved,
		Registrant:      "seller",
	}); err != nil {
		t.Fatal(err)
	}
	if err := ownership.Add(st, "seller", 1); err != nil {
		t.Fatal(err)
	}
	if err := ownership.Mint(st, core.RegistryPrincipal, 1, "ipfs://meta", 1); err != nil {
		t.Fatal(err)
	}
	if err := ownership.SetApprovalForAll(st, "seller", core.MarketPrincipal, true); err != nil {
		t.Fatal(err)
	}
	return st
}

func run(t *testing.T, st core.State, h ledger.Handler, typ core.CmdType, caller string, payload any) error {
	t.Helper()
	cmd, err := core.NewCommand(typ, caller, payload)
	if err != nil {
		t.Fatal(err)
	}
	return h(&ledger.Context{State: st, Cmd: cmd}, cmd.Payload)
}

func listParcel(t *testing.T, st core.State) {
	t.Helper()
	err := run(t, st, handleCreateListing, core.CmdCreateListing, "seller", core.CreateListingPayload{
		TokenID:          1,
		SellerIdentifier: "tok-seller",
		Price:            price.Clone(),
		FeePaid:          listingFee.Clone(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func initiate(t *testing.T, st core.State) {
	t.Helper()
	err := run(t, st, handleInitiateTransaction, core.CmdInitiateTransaction, "buyer", core.InitiateTransactionPayload{
		ListingID:       1,
		BuyerIdentifier: "tok-buyer",
		Deposit:         price.Clone(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func balance(t *testing.T, st core.State, addr string) *uint256.Int {
	t.Helper()
	acc, err := st.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	return acc.Balance
}

func TestCreateListingCollectsFee(t *testing.T) {
	st := newState(t)
	listParcel(t, st)

	listing, err := st.GetListing(1)
	if err != nil {
		t.Fatal(err)
	}
	if listing.ParcelID != 1 || listing.Status != core.ListingActive {
		t.Errorf("listing: %+v", listing)
	}
	if !listing.Price.Eq(price) || listing.SellerIdentifier != "tok-seller" {
		t.Errorf("listing snapshot: price %s identifier %q", listing.Price.Dec(), listing.SellerIdentifier)
	}

	wantSeller := new(uint256.Int).Sub(seedFunds, listingFee)
	if got := balance(t, st, "seller"); !got.Eq(wantSeller) {
		t.Errorf("seller balance: got %s, want %s", got.Dec(), wantSeller.Dec())
	}
	tre, err := st.GetTreasury()
	if err != nil {
		t.Fatal(err)
	}
	if !tre.Eq(listingFee) {
		t.Errorf("treasury: got %s, want %s", tre.Dec(), listingFee.Dec())
	}
}

func TestCreateListingInsufficientFee(t *testing.T) {
	st := newState(t)
	short := new(uint256.Int).Sub(listingFee, uint256.NewInt(1))
	err := run(t, st, handleCreateListing, core.CmdCreateListing, "seller", core.CreateListingPayload{
		TokenID:          1,
		SellerIdentifier: "tok-seller",
		Price:            price.Clone(),
		FeePaid:          short,
	})
	if !errors.Is(err, core.ErrInsufficientFee) {
		t.Errorf("got %v, want ErrInsufficientFee", err)
	}
}

func TestCreateListingNotOwner(t *testing.T) {
	st := newState(t)
	err := run(t, st, handleCreateListing, core.CmdCreateListing, "mallory", core.CreateListingPayload{
		TokenID:          1,
		SellerIdentifier: "tok-mallory",
		Price:            price.Clone(),
		FeePaid:          listingFee.Clone(),
	})
	if !errors.Is(err, core.ErrNotTokenOwner) {
		t.Errorf("got %v, want ErrNotTokenOwner", err)
	}
}

func TestInitiateRequiresExactDeposit(t *testing.T) {
	st := newState(t)
	listParcel(t, st)

	for _, deposit := range []*uint256.Int{
		new(uint256.Int).Sub(price, uint256.NewInt(1)),
		new(uint256.Int).Add(price, uint256.NewInt(1)),
	} {
		err := run(t, st, handleInitiateTransaction, core.CmdInitiateTransaction, "buyer",
			core.InitiateTransactionPayload{ListingID: 1, BuyerIdentifier: "tok-buyer", Deposit: deposit})
		if !errors.Is(err, core.ErrWrongDepositAmount) {
			t.Errorf("deposit %s: got %v, want ErrWrongDepositAmount", deposit.Dec(), err)
		}
	}
}

func TestInitiateEscrowsDeposit(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	wantBuyer := new(uint256.Int).Sub(seedFunds, price)
	if got := balance(t, st, "buyer"); !got.Eq(wantBuyer) {
		t.Errorf("buyer balance: got %s, want %s", got.Dec(), wantBuyer.Dec())
	}
	esc, err := st.GetEscrow("buyer")
	if err != nil {
		t.Fatal(err)
	}
	if !esc.Eq(price) {
		t.Errorf("escrow: got %s, want %s", esc.Dec(), price.Dec())
	}

	txn, err := st.GetTransaction(1)
	if err != nil {
		t.Fatal(err)
	}
	if txn.Status != core.TxPending || txn.BuyerAddress != "buyer" || !txn.Amount.Eq(price) {
		t.Errorf("transaction: %+v", txn)
	}
	listing, err := st.GetListing(1)
	if err != nil {
		t.Fatal(err)
	}
	if listing.Status != core.ListingInTransaction {
		t.Errorf("listing status: got %s, want in_transaction", listing.Status)
	}
}

func TestInitiateOnBusyListing(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	err := run(t, st, handleInitiateTransaction, core.CmdInitiateTransaction, "buyer2",
		core.InitiateTransactionPayload{ListingID: 1, BuyerIdentifier: "tok-b2", Deposit: price.Clone()})
	if !errors.Is(err, core.ErrListingNotActive) {
		t.Errorf("got %v, want ErrListingNotActive", err)
	}
}

func TestInitiateInsufficientFunds(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	if err := st.SetAccount(&core.Account{Address: "buyer", Balance: uint256.NewInt(1)}); err != nil {
		t.Fatal(err)
	}
	err := run(t, st, handleInitiateTransaction, core.CmdInitiateTransaction, "buyer",
		core.InitiateTransactionPayload{ListingID: 1, BuyerIdentifier: "tok-buyer", Deposit: price.Clone()})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestApproveTransactionSettles(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	err := run(t, st, handleApproveTransaction, core.CmdApproveTransaction, "admin",
		core.ApproveTransactionPayload{TransactionID: 1})
	if err != nil {
		t.Fatal(err)
	}

	owner, err := ownership.OwnerOf(st, 1)
	if err != nil || owner != "buyer" {
		t.Errorf("token owner: got (%q, %v), want buyer", owner, err)
	}
	parcel, err := st.GetParcel(1)
	if err != nil {
		t.Fatal(err)
	}
	if parcel.OwnerIdentifier != "tok-buyer" {
		t.Errorf("identifier: got %q, want tok-buyer", parcel.OwnerIdentifier)
	}

	wantSeller := new(uint256.Int).Sub(seedFunds, listingFee)
	wantSeller.Add(wantSeller, price)
	if got := balance(t, st, "seller"); !got.Eq(wantSeller) {
		t.Errorf("seller balance: got %s, want %s", got.Dec(), wantSeller.Dec())
	}
	esc, err := st.GetEscrow("buyer")
	if err != nil {
		t.Fatal(err)
	}
	if !esc.IsZero() {
		t.Errorf("escrow after settlement: got %s, want 0", esc.Dec())
	}

	txn, _ := st.GetTransaction(1)
	if txn.Status != core.TxApproved {
		t.Errorf("transaction status: got %s, want approved", txn.Status)
	}
	listing, _ := st.GetListing(1)
	if listing.Status != core.ListingCompleted {
		t.Errorf("listing status: got %s, want completed", listing.Status)
	}
}

func TestApproveTransactionRequiresAdmin(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	err := run(t, st, handleApproveTransaction, core.CmdApproveTransaction, "seller",
		core.ApproveTransactionPayload{TransactionID: 1})
	if !errors.Is(err, core.ErrNotAdmin) {
		t.Errorf("got %v, want ErrNotAdmin", err)
	}
}

// A settlement where the seller never granted the marketplace transfer
// approval must fail as one unit: applied through the executor, no money
// moves and no status changes.
func TestApproveTransactionAtomicWithoutGrant(t *testing.T) {
	st := newState(t)
	if err := ownership.SetApprovalForAll(st, "seller", core.MarketPrincipal, false); err != nil {
		t.Fatal(err)
	}
	listParcel(t, st)
	initiate(t, st)
	if err := st.Commit(); err != nil {
		t.Fatal(err)
	}

	exec := ledger.NewExecutor(st, events.NewEmitter())
	rootBefore := exec.StateRoot()

	cmd, err := core.NewCommand(core.CmdApproveTransaction, "admin",
		core.ApproveTransactionPayload{TransactionID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.Apply(cmd); !errors.Is(err, core.ErrNotOwnerOrApproved) {
		t.Fatalf("got %v, want ErrNotOwnerOrApproved", err)
	}

	if got := exec.StateRoot(); got != rootBefore {
		t.Errorf("state root moved on failed settlement: %s -> %s", rootBefore, got)
	}
	esc, err := st.GetEscrow("buyer")
	if err != nil {
		t.Fatal(err)
	}
	if !esc.Eq(price) {
		t.Errorf("escrow after failed settlement: got %s, want %s", esc.Dec(), price.Dec())
	}
	txn, _ := st.GetTransaction(1)
	if txn.Status != core.TxPending {
		t.Errorf("transaction status: got %s, want pending", txn.Status)
	}
	listing, _ := st.GetListing(1)
	if listing.Status != core.ListingInTransaction {
		t.Errorf("listing status: got %s, want in_transaction", listing.Status)
	}
	owner, err := ownership.OwnerOf(st, 1)
	if err != nil || owner != "seller" {
		t.Errorf("token owner: got (%q, %v), want seller", owner, err)
	}
}

func TestRejectRefundsInFull(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	err := run(t, st, handleRejectTransaction, core.CmdRejectTransaction, "admin",
		core.RejectTransactionPayload{TransactionID: 1, Reason: "documents do not match"})
	if err != nil {
		t.Fatal(err)
	}

	if got := balance(t, st, "buyer"); !got.Eq(seedFunds) {
		t.Errorf("buyer balance after refund: got %s, want %s", got.Dec(), seedFunds.Dec())
	}
	esc, _ := st.GetEscrow("buyer")
	if !esc.IsZero() {
		t.Errorf("escrow after refund: got %s, want 0", esc.Dec())
	}
	txn, _ := st.GetTransaction(1)
	if txn.Status != core.TxRejected {
		t.Errorf("transaction status: got %s, want rejected", txn.Status)
	}
	listing, _ := st.GetListing(1)
	if listing.Status != core.ListingActive {
		t.Errorf("listing status: got %s, want active", listing.Status)
	}

	// The listing is sellable again under the same id.
	initiate(t, st)
	txn2, err := st.GetTransaction(2)
	if err != nil {
		t.Fatal(err)
	}
	if txn2.ListingID != 1 || txn2.Status != core.TxPending {
		t.Errorf("second attempt: %+v", txn2)
	}
}

func TestBuyerCancelTakesPenalty(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	err := run(t, st, handleBuyerCancel, core.CmdBuyerCancel, "buyer",
		core.BuyerCancelPayload{TransactionID: 1})
	if err != nil {
		t.Fatal(err)
	}

	wantBuyer := new(uint256.Int).Sub(seedFunds, penalty)
	if got := balance(t, st, "buyer"); !got.Eq(wantBuyer) {
		t.Errorf("buyer balance: got %s, want %s", got.Dec(), wantBuyer.Dec())
	}
	wantTreasury := new(uint256.Int).Add(listingFee, penalty)
	tre, _ := st.GetTreasury()
	if !tre.Eq(wantTreasury) {
		t.Errorf("treasury: got %s, want %s", tre.Dec(), wantTreasury.Dec())
	}
	txn, _ := st.GetTransaction(1)
	if txn.Status != core.TxCancelled {
		t.Errorf("transaction status: got %s, want cancelled", txn.Status)
	}
	listing, _ := st.GetListing(1)
	if listing.Status != core.ListingActive {
		t.Errorf("listing status: got %s, want active", listing.Status)
	}
}

func TestBuyerCancelUsesCurrentPenalty(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	// Raise the penalty while the transaction is pending; cancellation
	// charges the schedule in force at cancel time.
	newPenalty := new(uint256.Int).Mul(penalty, uint256.NewInt(2))
	if err := run(t, st, handleSetFees, core.CmdSetFees, "admin",
		core.SetFeesPayload{ListingFee: listingFee.Clone(), CancelPenalty: newPenalty}); err != nil {
		t.Fatal(err)
	}
	if err := run(t, st, handleBuyerCancel, core.CmdBuyerCancel, "buyer",
		core.BuyerCancelPayload{TransactionID: 1}); err != nil {
		t.Fatal(err)
	}

	wantBuyer := new(uint256.Int).Sub(seedFunds, newPenalty)
	if got := balance(t, st, "buyer"); !got.Eq(wantBuyer) {
		t.Errorf("buyer balance: got %s, want %s", got.Dec(), wantBuyer.Dec())
	}
}

func TestBuyerCancelPenaltyClampedToDeposit(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	huge := new(uint256.Int).Mul(price, uint256.NewInt(10))
	if err := run(t, st, handleSetFees, core.CmdSetFees, "admin",
		core.SetFeesPayload{ListingFee: listingFee.Clone(), CancelPenalty: huge}); err != nil {
		t.Fatal(err)
	}
	if err := run(t, st, handleBuyerCancel, core.CmdBuyerCancel, "buyer",
		core.BuyerCancelPayload{TransactionID: 1}); err != nil {
		t.Fatal(err)
	}

	// The whole deposit is forfeited, nothing more.
	wantBuyer := new(uint256.Int).Sub(seedFunds, price)
	if got := balance(t, st, "buyer"); !got.Eq(wantBuyer) {
		t.Errorf("buyer balance: got %s, want %s", got.Dec(), wantBuyer.Dec())
	}
	esc, _ := st.GetEscrow("buyer")
	if !esc.IsZero() {
		t.Errorf("escrow: got %s, want 0", esc.Dec())
	}
}

func TestBuyerCancelOnlyByBuyer(t *testing.T) {
	st := newState(t)
	listParcel(t, st)
	initiate(t, st)

	err := run(t, st, handleBuyerCancel, core.CmdBuyerCancel, "seller",
		core.BuyerCancelPayload{TransactionID: 1})
	if !errors.Is(err, core.ErrNotBuyer) {
		t.Errorf("got %v, want ErrNotBuyer", err)
	}
}

func TestSetFeesIsProspective(t *testing.T) {
	st := newState(t)
	listParcel(t, st)

	err := run(t, st, handleSetFees, core.CmdSetFees, "admin", core.SetFeesPayload{
		ListingFee:    new(uint256.Int).Mul(listingFee, uint256.NewInt(3)),
		CancelPenalty: penalty.Clone(),
	})
	if err != nil {
		t.Fatal(err)
	}

	// The existing listing kept its price snapshot.
	listing, err := st.GetListing(1)
	if err != nil {
		t.Fatal(err)
	}
	if !listing.Price.Eq(price) {
		t.Errorf("listing price after fee change: got %s, want %s", listing.Price.Dec(), price.Dec())
	}

	// A new listing at the old fee is refused.
	err = run(t, st, handleCreateListing, core.CmdCreateListing, "seller", core.CreateListingPayload{
		TokenID:          1,
		SellerIdentifier: "tok-seller",
		Price:            price.Clone(),
		FeePaid:          listingFee.Clone(),
	})
	if !errors.Is(err, core.ErrInsufficientFee) {
		t.Errorf("got %v, want ErrInsufficientFee", err)
	}
}

func TestSetFeesRequiresAdmin(t *testing.T) {
	st := newState(t)
	err := run(t, st, handleSetFees, core.CmdSetFees, "seller", core.SetFeesPayload{
		ListingFee:    listingFee.Clone(),
		CancelPenalty: penalty.Clone(),
	})
	if !errors.Is(err, core.ErrNotAdmin) {
		t.Errorf("got %v, want ErrNotAdmin", err)
	}
}

func TestUnknownListingAndTransaction(t *testing.T) {
	st := newState(t)

	err := run(t, st, handleInitiateTransaction, core.CmdInitiateTransaction, "buyer",
		core.InitiateTransactionPayload{ListingID: 99, BuyerIdentifier: "tok-buyer", Deposit: price.Clone()})
	if !errors.Is(err, core.ErrListingNotFound) {
		t.Errorf("unknown listing: got %v, want ErrListingNotFound", err)
	}

	err = run(t, st, handleApproveTransaction, core.CmdApproveTransaction, "admin",
		core.ApproveTransactionPayload{TransactionID: 99})
	if !errors.Is(err, core.ErrTransactionNotFound) {
		t.Errorf("unknown transaction: got %v, want ErrTransactionNotFound", err)
	}
}
