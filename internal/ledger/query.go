package ledger

import (
	"sort"
)

// Stats aggregates figures across every campaign.
type Stats struct {
	TotalCampaigns  uint64 `json:"total_campaigns"`
	TotalRaised     uint64 `json:"total_raised"`
	TotalBackers    uint64 `json:"total_backers"`
	FundedCampaigns uint64 `json:"funded_campaigns"`
	TotalFees       uint64 `json:"total_fees"`
}

// Campaign returns a copy of the campaign with id.
func (l *Ledger) Campaign(id uint64) (Campaign, bool) {
	c, ok := l.state.Campaigns[id]
	if !ok {
		return Campaign{}, false
	}
	return *c, true
}

// Donation returns the donation record for (campaignID, donor), or the zero
// value when none exists.
func (l *Ledger) Donation(campaignID uint64, donor string) Donation {
	if d := l.donation(campaignID, donor); d != nil {
		return *d
	}
	return Donation{}
}

func (l *Ledger) BackerCount(campaignID uint64) uint64 {
	return l.state.Backers[campaignID]
}

func (l *Ledger) RefundStats(campaignID uint64) RefundStats {
	if stats, ok := l.state.Refunds[campaignID]; ok {
		return *stats
	}
	return RefundStats{}
}

// CampaignCount is the number of campaigns ever created.
func (l *Ledger) CampaignCount() uint64 {
	return l.state.CampaignSeq
}

// TotalFees is the fee pool accrued since the last withdrawal.
func (l *Ledger) TotalFees() uint64 {
	return l.state.TotalFees
}

// FeePool is the withdrawable part of the fee pool held in token.
func (l *Ledger) FeePool(token string) uint64 {
	return l.state.FeePools[token]
}

func (l *Ledger) Params() Params {
	return l.state.Params
}

func (l *Ledger) IsGoalMet(campaignID uint64) bool {
	c, ok := l.state.Campaigns[campaignID]
	return ok && c.Raised >= c.Goal
}

func (l *Ledger) IsExpired(campaignID uint64) bool {
	c, ok := l.state.Campaigns[campaignID]
	return ok && l.height() > c.Deadline
}

// CanClaim reports whether the goal is met and funds are unclaimed. It does
// not consider who is asking.
func (l *Ledger) CanClaim(campaignID uint64) bool {
	c, ok := l.state.Campaigns[campaignID]
	return ok && c.Raised >= c.Goal && !c.Claimed
}

// CanRefund reports whether the refund window is open and donor has not been
// refunded yet.
func (l *Ledger) CanRefund(campaignID uint64, donor string) bool {
	c, ok := l.state.Campaigns[campaignID]
	if !ok || !l.refundWindowOpen(c) {
		return false
	}
	d := l.donation(campaignID, donor)
	return d == nil || !d.Refunded
}

// Campaigns returns up to count campaigns with ids starting at start.
func (l *Ledger) Campaigns(start, count uint64) []Campaign {
	if start == 0 {
		start = 1
	}
	out := make([]Campaign, 0)
	for id := start; id <= l.state.CampaignSeq && uint64(len(out)) < count; id++ {
		if c, ok := l.state.Campaigns[id]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// CampaignsByOwner returns up to count campaigns created by owner with ids
// starting at start, ordered by id.
func (l *Ledger) CampaignsByOwner(owner string, start, count uint64) []Campaign {
	if start == 0 {
		start = 1
	}
	out := make([]Campaign, 0)
	for _, c := range l.state.Campaigns {
		if c.Owner == owner && c.ID >= start {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if uint64(len(out)) > count {
		out = out[:count]
	}
	return out
}

func (l *Ledger) Stats() Stats {
	stats := Stats{
		TotalCampaigns: l.state.CampaignSeq,
		TotalFees:      l.state.TotalFees,
	}
	for id, c := range l.state.Campaigns {
		stats.TotalRaised += c.Raised
		stats.TotalBackers += l.state.Backers[id]
		if c.Raised >= c.Goal {
			stats.FundedCampaigns++
		}
	}
	return stats
}
