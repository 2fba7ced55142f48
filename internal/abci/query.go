package abci

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	abci "github.com/tendermint/tendermint/abci/types"

	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/token"
)

const (
	CodeTypeUnknownPath uint32 = 5
	CodeTypeBadQuery    uint32 = 6
)

const maxQueryCount = 100

// CampaignView is a campaign together with its derived counters.
type CampaignView struct {
	ledger.Campaign
	Backers     uint64             `json:"backers"`
	RefundStats ledger.RefundStats `json:"refund_stats"`
}

// Query answers read-only requests. Paths follow /<name>/<args...> with an
// optional query string for listings; values are JSON.
func (app *Application) Query(req abci.RequestQuery) abci.ResponseQuery {
	path, rawQuery, _ := strings.Cut(req.Path, "?")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	app.mu.Lock()
	defer app.mu.Unlock()

	value, code, log := app.answer(parts, rawQuery)
	if code != CodeTypeOK {
		return abci.ResponseQuery{Code: code, Log: log, Height: app.height}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return abci.ResponseQuery{Code: CodeTypeEncodingError, Log: err.Error(), Height: app.height}
	}
	return abci.ResponseQuery{Code: CodeTypeOK, Key: []byte(req.Path), Value: raw, Height: app.height}
}

func (app *Application) answer(parts []string, rawQuery string) (any, uint32, string) {
	l := app.ledger
	args := parts[1:]

	switch parts[0] {
	case "campaign":
		id, ok := idArg(args, 1)
		if !ok {
			return nil, CodeTypeBadQuery, "usage: /campaign/{id}"
		}
		return campaignView(l, id), CodeTypeOK, ""

	case "campaigns":
		q, _ := url.ParseQuery(rawQuery)
		start := parseUintDefault(q.Get("start"), 1)
		count := parseUintDefault(q.Get("count"), 20)
		if count > maxQueryCount {
			count = maxQueryCount
		}
		if owner := q.Get("owner"); owner != "" {
			return l.CampaignsByOwner(owner, start, count), CodeTypeOK, ""
		}
		return l.Campaigns(start, count), CodeTypeOK, ""

	case "donation":
		if len(args) != 2 {
			return nil, CodeTypeBadQuery, "usage: /donation/{id}/{donor}"
		}
		id, ok := parseUint(args[0])
		if !ok {
			return nil, CodeTypeBadQuery, "invalid campaign id"
		}
		return l.Donation(id, args[1]), CodeTypeOK, ""

	case "backers":
		id, ok := idArg(args, 1)
		if !ok {
			return nil, CodeTypeBadQuery, "usage: /backers/{id}"
		}
		return l.BackerCount(id), CodeTypeOK, ""

	case "refund-stats":
		id, ok := idArg(args, 1)
		if !ok {
			return nil, CodeTypeBadQuery, "usage: /refund-stats/{id}"
		}
		return l.RefundStats(id), CodeTypeOK, ""

	case "campaign-count":
		return l.CampaignCount(), CodeTypeOK, ""

	case "total-fees":
		return l.TotalFees(), CodeTypeOK, ""

	case "fee-pool":
		if len(args) != 1 {
			return nil, CodeTypeBadQuery, "usage: /fee-pool/{token}"
		}
		tokenRef, err := url.PathUnescape(args[0])
		if err != nil {
			return nil, CodeTypeBadQuery, "invalid token"
		}
		return l.FeePool(tokenRef), CodeTypeOK, ""

	case "params":
		return l.Params(), CodeTypeOK, ""

	case "fee":
		amount, ok := idArg(args, 1)
		if !ok {
			return nil, CodeTypeBadQuery, "usage: /fee/{amount}"
		}
		return l.CalculateFee(amount), CodeTypeOK, ""

	case "goal-met", "expired", "can-claim":
		id, ok := idArg(args, 1)
		if !ok {
			return nil, CodeTypeBadQuery, "usage: /" + parts[0] + "/{id}"
		}
		switch parts[0] {
		case "goal-met":
			return l.IsGoalMet(id), CodeTypeOK, ""
		case "expired":
			return l.IsExpired(id), CodeTypeOK, ""
		default:
			return l.CanClaim(id), CodeTypeOK, ""
		}

	case "can-refund":
		if len(args) != 2 {
			return nil, CodeTypeBadQuery, "usage: /can-refund/{id}/{donor}"
		}
		id, ok := parseUint(args[0])
		if !ok {
			return nil, CodeTypeBadQuery, "invalid campaign id"
		}
		return l.CanRefund(id, args[1]), CodeTypeOK, ""

	case "balance":
		if len(args) != 2 {
			return nil, CodeTypeBadQuery, "usage: /balance/{token}/{account}"
		}
		return balanceOf(app.bank, args[0], args[1]), CodeTypeOK, ""

	case "stats":
		return l.Stats(), CodeTypeOK, ""
	}
	return nil, CodeTypeUnknownPath, "unknown query path /" + strings.Join(parts, "/")
}

// campaignView returns nil for a missing campaign so the JSON value is null.
func campaignView(l *ledger.Ledger, id uint64) *CampaignView {
	c, ok := l.Campaign(id)
	if !ok {
		return nil
	}
	return &CampaignView{Campaign: c, Backers: l.BackerCount(id), RefundStats: l.RefundStats(id)}
}

func balanceOf(bank *token.Bank, tokenRef, account string) uint64 {
	if unescaped, err := url.PathUnescape(tokenRef); err == nil {
		tokenRef = unescaped
	}
	return bank.Balance(tokenRef, account)
}

func idArg(args []string, n int) (uint64, bool) {
	if len(args) != n {
		return 0, false
	}
	return parseUint(args[0])
}

func parseUint(s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

func parseUintDefault(s string, def uint64) uint64 {
	if v, ok := parseUint(s); ok {
		return v
	}
	return def
}
