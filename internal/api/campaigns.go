package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"crowdfund.ledger/cfl/internal/amount"
	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/token"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// campaignResponse is a campaign with its counters and display amounts.
type campaignResponse struct {
	ledger.Campaign
	Backers       uint64             `json:"backers"`
	RefundStats   ledger.RefundStats `json:"refund_stats"`
	GoalDisplay   string             `json:"goal_display"`
	RaisedDisplay string             `json:"raised_display"`
	Progress      string             `json:"progress_percent"`
}

func newCampaignResponse(l *ledger.Ledger, c ledger.Campaign) campaignResponse {
	return campaignResponse{
		Campaign:      c,
		Backers:       l.BackerCount(c.ID),
		RefundStats:   l.RefundStats(c.ID),
		GoalDisplay:   amount.Format(c.Goal),
		RaisedDisplay: amount.Format(c.Raised),
		Progress:      amount.Percent(c.Raised, c.Goal),
	}
}

// @Title: List Campaigns
// @Route: GET /api/campaigns?start=1&count=20&owner=
// @Description: Lists campaigns by id starting at start, optionally only those of owner; count is capped at 100
// @Response: Array of campaign objects
func (s *Service) HandleCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := uintParam(q, "start", 1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	count, err := uintParam(q, "count", defaultPageSize)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid count")
		return
	}
	if count > maxPageSize {
		count = maxPageSize
	}
	owner := q.Get("owner")

	var out []campaignResponse
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		var campaigns []ledger.Campaign
		if owner != "" {
			campaigns = l.CampaignsByOwner(owner, start, count)
		} else {
			campaigns = l.Campaigns(start, count)
		}
		out = make([]campaignResponse, 0, len(campaigns))
		for _, c := range campaigns {
			out = append(out, newCampaignResponse(l, c))
		}
	})
	s.writeJSON(w, http.StatusOK, out)
}

// @Title: Get Campaign
// @Route: GET /api/campaigns/{id}
// @Description: Returns one campaign with backer count and refund statistics
// @Response: Campaign object, 404 when unknown
func (s *Service) HandleCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	var (
		resp  campaignResponse
		found bool
	)
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		var c ledger.Campaign
		if c, found = l.Campaign(id); found {
			resp = newCampaignResponse(l, c)
		}
	})
	if !found {
		s.writeError(w, http.StatusNotFound, "campaign not found")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// @Title: Get Donation
// @Route: GET /api/campaigns/{id}/donations/{donor}
// @Description: Returns the aggregated donation of donor, zero when none exists
// @Response: {"amount": 0, "refunded": false, "amount_display": "0"}
func (s *Service) HandleDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	donor := chi.URLParam(r, "donor")

	var d ledger.Donation
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		d = l.Donation(id, donor)
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"amount":         d.Amount,
		"refunded":       d.Refunded,
		"amount_display": amount.Format(d.Amount),
	})
}

// @Title: Get Backer Count
// @Route: GET /api/campaigns/{id}/backers
// @Description: Number of distinct donors, zero for unknown campaigns
// @Response: {"campaign_id": 1, "backers": 3}
func (s *Service) HandleBackers(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var n uint64
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		n = l.BackerCount(id)
	})
	s.writeJSON(w, http.StatusOK, map[string]uint64{"campaign_id": id, "backers": n})
}

// @Title: Get Refund Stats
// @Route: GET /api/campaigns/{id}/refund-stats
// @Description: Total refunded and refund count, zero when none
// @Response: {"total_refunded": 0, "refund_count": 0}
func (s *Service) HandleRefundStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var stats ledger.RefundStats
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		stats = l.RefundStats(id)
	})
	s.writeJSON(w, http.StatusOK, stats)
}

// @Title: Get Campaign Status
// @Route: GET /api/campaigns/{id}/status
// @Description: Goal, expiry and claimability flags; all false for unknown campaigns
// @Response: {"goal_met": true, "expired": false, "can_claim": true}
func (s *Service) HandleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var goalMet, expired, canClaim bool
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		goalMet = l.IsGoalMet(id)
		expired = l.IsExpired(id)
		canClaim = l.CanClaim(id)
	})
	s.writeJSON(w, http.StatusOK, map[string]bool{
		"goal_met":  goalMet,
		"expired":   expired,
		"can_claim": canClaim,
	})
}

// @Title: Can Refund
// @Route: GET /api/campaigns/{id}/can-refund/{donor}
// @Description: Whether donor may request a refund right now
// @Response: {"can_refund": false}
func (s *Service) HandleCanRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	donor := chi.URLParam(r, "donor")
	var can bool
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		can = l.CanRefund(id, donor)
	})
	s.writeJSON(w, http.StatusOK, map[string]bool{"can_refund": can})
}

// @Title: Get Params
// @Route: GET /api/params
// @Description: Genesis parameters of this deployment
// @Response: {"admin": "...", "fee_rate_bp": 500, "allow_registered_deposits": false}
func (s *Service) HandleParams(w http.ResponseWriter, r *http.Request) {
	var p ledger.Params
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		p = l.Params()
	})
	s.writeJSON(w, http.StatusOK, p)
}

// @Title: Get Stats
// @Route: GET /api/stats
// @Description: Aggregate figures across all campaigns plus the fee pool
// @Response: {"total_campaigns": 2, "total_raised": 0, "total_backers": 0, "funded_campaigns": 0, "total_fees": 0}
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	var stats ledger.Stats
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		stats = l.Stats()
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_campaigns":      stats.TotalCampaigns,
		"total_raised":         stats.TotalRaised,
		"total_raised_display": amount.Format(stats.TotalRaised),
		"total_backers":        stats.TotalBackers,
		"funded_campaigns":     stats.FundedCampaigns,
		"total_fees":           stats.TotalFees,
		"total_fees_display":   amount.Format(stats.TotalFees),
	})
}

// @Title: Calculate Fee
// @Route: GET /api/fee?amount=12.5
// @Description: Platform fee for a decimal token amount, or for base units with units=
// @Response: {"amount": 12500000, "fee": 625000, "fee_display": "0.625"}
func (s *Service) HandleFee(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		units uint64
		err   error
	)
	switch {
	case q.Get("units") != "":
		units, err = amount.ParseUnits(q.Get("units"))
	case q.Get("amount") != "":
		units, err = amount.Parse(q.Get("amount"))
	default:
		s.writeError(w, http.StatusBadRequest, "amount or units is required")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		fee  uint64
		rate uint64
	)
	s.ledger.ReadLedger(func(l *ledger.Ledger, _ *token.Bank) {
		fee = l.CalculateFee(units)
		rate = l.Params().FeeRateBasisPoints
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"amount":      units,
		"fee":         fee,
		"fee_rate_bp": rate,
		"fee_display": amount.Format(fee),
	})
}

// @Title: Get Balance
// @Route: GET /api/balances/{token}/{account}
// @Description: Token balance held by account in the transfer service
// @Response: {"token": "...", "account": "...", "balance": 0, "balance_display": "0"}
func (s *Service) HandleBalance(w http.ResponseWriter, r *http.Request) {
	tokenRef, err := url.PathUnescape(chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid token")
		return
	}
	account := chi.URLParam(r, "account")

	var bal uint64
	s.ledger.ReadLedger(func(_ *ledger.Ledger, bank *token.Bank) {
		bal = bank.Balance(tokenRef, account)
	})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":           tokenRef,
		"account":         account,
		"balance":         bal,
		"balance_display": amount.Format(bal),
	})
}

func (s *Service) campaignID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid campaign id")
		return 0, false
	}
	return id, true
}

func uintParam(q url.Values, key string, def uint64) (uint64, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
