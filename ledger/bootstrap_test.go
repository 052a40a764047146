package ledger

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/internal/testutil"
)

func testGenesis() Genesis {
	return Genesis{
		Admin:         "admin",
		ListingFee:    uint256.NewInt(100),
		CancelPenalty: uint256.NewInt(50),
		Alloc: map[string]*uint256.Int{
			"alice": uint256.NewInt(1_000_000),
		},
	}
}

func TestBootstrapSeedsFreshLedger(t *testing.T) {
	st := testutil.NewStateDB()
	if err := Bootstrap(st, testGenesis()); err != nil {
		t.Fatal(err)
	}

	admin, err := st.GetAdmin()
	if err != nil || admin != "admin" {
		t.Errorf("admin: got (%q, %v)", admin, err)
	}
	minter, err := st.GetMinter()
	if err != nil || minter != core.RegistryPrincipal {
		t.Errorf("minter: got (%q, %v), want registry principal", minter, err)
	}
	market, err := st.GetMarket()
	if err != nil || market != core.MarketPrincipal {
		t.Errorf("market: got (%q, %v), want market principal", market, err)
	}
	fees, err := st.GetFees()
	if err != nil {
		t.Fatal(err)
	}
	if fees.ListingFee.Uint64() != 100 || fees.CancelPenalty.Uint64() != 50 {
		t.Errorf("fees: %+v", fees)
	}
	acc, err := st.GetAccount("alice")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance.Uint64() != 1_000_000 {
		t.Errorf("alice balance: got %s", acc.Balance.Dec())
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	st := testutil.NewStateDB()
	if err := Bootstrap(st, testGenesis()); err != nil {
		t.Fatal(err)
	}

	// A node restart re-runs Bootstrap with whatever config it has; an
	// initialised ledger must be left alone.
	other := testGenesis()
	other.Admin = "mallory"
	other.Alloc = map[string]*uint256.Int{"mallory": uint256.NewInt(9)}
	if err := Bootstrap(st, other); err != nil {
		t.Fatal(err)
	}

	admin, err := st.GetAdmin()
	if err != nil || admin != "admin" {
		t.Errorf("admin after re-bootstrap: got (%q, %v)", admin, err)
	}
	acc, err := st.GetAccount("mallory")
	if err != nil {
		t.Fatal(err)
	}
	if !acc.Balance.IsZero() {
		t.Errorf("re-bootstrap seeded an account: %s", acc.Balance.Dec())
	}
}

func TestBootstrapValidation(t *testing.T) {
	gen := testGenesis()
	gen.Admin = ""
	if err := Bootstrap(testutil.NewStateDB(), gen); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("empty admin: got %v, want ErrInvalidInput", err)
	}

	gen = testGenesis()
	gen.ListingFee = nil
	if err := Bootstrap(testutil.NewStateDB(), gen); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("nil listing fee: got %v, want ErrInvalidInput", err)
	}
}
