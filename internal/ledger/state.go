// Package ledger implements the campaign escrow state machine. It owns every
// campaign, donation, backer counter, refund statistic and the platform fee
// pool. All mutation goes through the Ledger operations; the State container
// is plain data so the ABCI application can snapshot and restore it.
package ledger

import (
	"encoding/json"
	"fmt"
)

// Campaign is a fundraising record keyed by a sequential id starting at 1.
//
// Raised counts every credited donation. Escrowed is the part of Raised that
// actually sits in the custody account, denominated in Token, which is bound
// by the first token donation. Registered deposits raise Raised only.
type Campaign struct {
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	MetadataRef   string `json:"metadata_ref"`
	Goal          uint64 `json:"goal"`
	Raised        uint64 `json:"raised"`
	Escrowed      uint64 `json:"escrowed"`
	Token         string `json:"token,omitempty"`
	Deadline      uint64 `json:"deadline"`
	Claimed       bool   `json:"claimed"`
	CreatedAt     uint64 `json:"created_at"`
	RefundEnabled bool   `json:"refund_enabled"`
}

// Donation aggregates everything a single donor gave to a single campaign.
// Registered is the share of Amount recorded through RegisterDeposit.
type Donation struct {
	Amount     uint64 `json:"amount"`
	Registered uint64 `json:"registered,omitempty"`
	Refunded   bool   `json:"refunded"`
}

// Escrowed is the part of the donation held in custody.
func (d Donation) Escrowed() uint64 {
	return d.Amount - d.Registered
}

// RefundStats tracks refunds paid out for a campaign.
type RefundStats struct {
	TotalRefunded uint64 `json:"total_refunded"`
	RefundCount   uint64 `json:"refund_count"`
}

// Params are fixed at genesis for the lifetime of a deployment.
type Params struct {
	Admin                   string `json:"admin"`
	FeeRateBasisPoints      uint64 `json:"fee_rate_bp"`
	AllowRegisteredDeposits bool   `json:"allow_registered_deposits"`
}

// DefaultFeeRateBasisPoints is 5%.
const DefaultFeeRateBasisPoints = 500

// Validate checks that the fee rate is expressible in basis points.
func (p Params) Validate() error {
	if p.FeeRateBasisPoints > basisPointsDenominator {
		return fmt.Errorf("fee rate %d bp exceeds %d", p.FeeRateBasisPoints, basisPointsDenominator)
	}
	return nil
}

// State is the full ledger state. Donations are keyed first by campaign id and
// then by donor identity so that each (campaign, donor) pair has at most one
// record. TotalFees is the sum of FeePools, which hold withdrawable fees per
// token.
type State struct {
	Params      Params                          `json:"params"`
	CampaignSeq uint64                          `json:"campaign_seq"`
	TotalFees   uint64                          `json:"total_fees"`
	FeePools    map[string]uint64               `json:"fee_pools"`
	Campaigns   map[uint64]*Campaign            `json:"campaigns"`
	Donations   map[uint64]map[string]*Donation `json:"donations"`
	Backers     map[uint64]uint64               `json:"backers"`
	Refunds     map[uint64]*RefundStats         `json:"refunds"`
}

func NewState(params Params) *State {
	return &State{
		Params:    params,
		FeePools:  make(map[string]uint64),
		Campaigns: make(map[uint64]*Campaign),
		Donations: make(map[uint64]map[string]*Donation),
		Backers:   make(map[uint64]uint64),
		Refunds:   make(map[uint64]*RefundStats),
	}
}

// MarshalState encodes the state deterministically (encoding/json sorts map
// keys), which makes the output usable as input to the app hash.
func MarshalState(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes a state produced by MarshalState.
func UnmarshalState(data []byte) (*State, error) {
	s := NewState(Params{})
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode ledger state: %w", err)
	}
	if s.FeePools == nil {
		s.FeePools = make(map[string]uint64)
	}
	if s.Campaigns == nil {
		s.Campaigns = make(map[uint64]*Campaign)
	}
	if s.Donations == nil {
		s.Donations = make(map[uint64]map[string]*Donation)
	}
	if s.Backers == nil {
		s.Backers = make(map[uint64]uint64)
	}
	if s.Refunds == nil {
		s.Refunds = make(map[uint64]*RefundStats)
	}
	return s, nil
}
