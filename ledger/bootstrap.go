package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/core"
)

// Genesis describes the ledger's initial state: the admin principal, the
// starting fee schedule and the account balances to seed.
type Genesis struct {
	Admin         string
	ListingFee    *uint256.Int
	CancelPenalty *uint256.Int
	Alloc         map[string]*uint256.Int
}

// Bootstrap seeds a fresh ledger and commits. A ledger that already has an
// admin recorded is left untouched, so restarting a node is a no-op here.
func Bootstrap(st core.State, gen Genesis) error {
	if _, err := st.GetAdmin(); err == nil {
		return nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	if gen.Admin == "" {
		return fmt.Errorf("genesis admin: %w", core.ErrInvalidInput)
	}
	if gen.ListingFee == nil || gen.CancelPenalty == nil {
		return fmt.Errorf("genesis fee schedule: %w", core.ErrInvalidInput)
	}

	if err := st.SetAdmin(gen.Admin); err != nil {
		return err
	}
	if err := st.SetMinter(core.RegistryPrincipal); err != nil {
		return err
	}
	if err := st.SetMarket(core.MarketPrincipal); err != nil {
		return err
	}
	if err := st.SetFees(&core.Fees{
		ListingFee:    gen.ListingFee.Clone(),
		CancelPenalty: gen.CancelPenalty.Clone(),
	}); err != nil {
		return err
	}
	for address, balance := range gen.Alloc {
		if err := st.SetAccount(&core.Account{Address: address, Balance: balance.Clone()}); err != nil {
			return err
		}
	}
	return st.Commit()
}
