package abci

import (
	"encoding/json"
	"fmt"

	"crowdfund.ledger/cfl/internal/identity"
	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/token"
)

// Genesis is the app_state section of genesis.json.
type Genesis struct {
	Admin                   string       `json:"admin"`
	FeeRateBasisPoints      *uint64      `json:"fee_rate_bp,omitempty"`
	AllowRegisteredDeposits bool         `json:"allow_registered_deposits"`
	Allocations             []Allocation `json:"allocations"`
}

// Allocation mints an initial token balance.
type Allocation struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount,string"`
}

// ParseGenesis decodes app state bytes. Empty input yields an empty genesis.
func ParseGenesis(raw []byte) (Genesis, error) {
	var g Genesis
	if len(raw) == 0 || string(raw) == "null" {
		return g, nil
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return g, fmt.Errorf("decode genesis app state: %w", err)
	}
	return g, nil
}

// Params resolves ledger parameters, taking unset fields from fallback.
func (g Genesis) Params(fallback ledger.Params) (ledger.Params, error) {
	params := fallback
	if g.Admin != "" {
		params.Admin = g.Admin
	}
	if g.FeeRateBasisPoints != nil {
		params.FeeRateBasisPoints = *g.FeeRateBasisPoints
	}
	if g.AllowRegisteredDeposits {
		params.AllowRegisteredDeposits = true
	}
	if params.Admin != "" && !identity.ValidAccount(params.Admin) {
		return params, fmt.Errorf("admin %q is not a hex ed25519 public key", params.Admin)
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

// Apply mints every allocation into bank.
func (g Genesis) Apply(bank *token.Bank) error {
	for i, a := range g.Allocations {
		if a.Account == ledger.CustodyAccount {
			return fmt.Errorf("allocation %d: custody account cannot be funded at genesis", i)
		}
		if err := bank.Mint(a.Token, a.Account, a.Amount); err != nil {
			return fmt.Errorf("allocation %d (%s/%s): %w", i, a.Token, a.Account, err)
		}
	}
	return nil
}
