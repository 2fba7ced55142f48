package abci

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	abci "github.com/tendermint/tendermint/abci/types"

	"crowdfund.ledger/cfl/internal/identity"
	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/types"
)

// txError carries the ABCI response code for an envelope failure.
type txError struct {
	code uint32
	err  error
}

func (e *txError) Error() string { return e.err.Error() }

func (e *txError) Unwrap() error { return e.err }

func failTx(code uint32, format string, args ...any) *txError {
	return &txError{code: code, err: fmt.Errorf(format, args...)}
}

// decodedTx is a transaction that passed decoding and signature checks.
type decodedTx struct {
	caller  string
	tx      *types.Transaction
	payload any
}

func decodeTx(raw []byte) (*decodedTx, *txError) {
	signed, err := types.DecodeSignedTransaction(raw)
	if err != nil {
		return nil, failTx(CodeTypeEncodingError, "failed to decode signed tx")
	}
	if !signed.Verify() {
		return nil, failTx(CodeTypeAuthError, "invalid signature")
	}
	caller, err := signed.Caller()
	if err != nil {
		return nil, failTx(CodeTypeAuthError, "%v", err)
	}
	tx, err := signed.GetTransaction()
	if err != nil {
		return nil, failTx(CodeTypeEncodingError, "failed to decode inner tx: %v", err)
	}
	payload, err := decodePayload(tx)
	if err != nil {
		return nil, failTx(CodeTypeEncodingError, "%v", err)
	}
	if err := validatePayload(payload); err != nil {
		return nil, failTx(CodeTypeInvalidTx, "%v", err)
	}
	return &decodedTx{caller: caller, tx: tx, payload: payload}, nil
}

func decodePayload(tx *types.Transaction) (any, error) {
	var dst any
	switch tx.Type {
	case types.TxCreateCampaign:
		dst = &types.CreateCampaignPayload{}
	case types.TxDonate:
		dst = &types.DonatePayload{}
	case types.TxRegisterDeposit:
		dst = &types.RegisterDepositPayload{}
	case types.TxClaimFunds:
		dst = &types.ClaimFundsPayload{}
	case types.TxRequestRefund:
		dst = &types.RequestRefundPayload{}
	case types.TxUpdateMetadata:
		dst = &types.UpdateMetadataPayload{}
	case types.TxWithdrawFees:
		dst = &types.WithdrawFeesPayload{}
	default:
		return nil, fmt.Errorf("unknown transaction type %q", tx.Type)
	}
	if err := tx.DecodePayload(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// validatePayload performs the stateless checks shared by CheckTx and
// DeliverTx. Everything that depends on ledger state is left to the ledger.
func validatePayload(payload any) error {
	var tokenRef string
	switch p := payload.(type) {
	case *types.DonatePayload:
		tokenRef = p.Token
	case *types.ClaimFundsPayload:
		tokenRef = p.Token
	case *types.RequestRefundPayload:
		tokenRef = p.Token
	case *types.WithdrawFeesPayload:
		tokenRef = p.Token
	case *types.RegisterDepositPayload:
		if !identity.ValidAccount(p.Donor) {
			return errors.New("donor must be an account public key")
		}
		return nil
	default:
		return nil
	}
	if tokenRef == "" {
		return errors.New("token reference is required")
	}
	return nil
}

func (app *Application) checkFreshness(tx *types.Transaction, now time.Time) *txError {
	if _, dup := app.seen[tx.ID]; dup {
		return failTx(CodeTypeDuplicateTx, "transaction %s already executed", tx.ID)
	}
	if now.IsZero() {
		return nil
	}
	drift := now.Sub(tx.Timestamp)
	if drift > app.opts.TxTTL || drift < -app.opts.TxTTL {
		return failTx(CodeTypeInvalidTx, "transaction timestamp %s outside the accepted window", tx.Timestamp.Format(time.RFC3339))
	}
	return nil
}

func (app *Application) CheckTx(req abci.RequestCheckTx) abci.ResponseCheckTx {
	d, terr := decodeTx(req.Tx)
	if terr != nil {
		return abci.ResponseCheckTx{Code: terr.code, Log: terr.Error()}
	}

	app.mu.Lock()
	terr = app.checkFreshness(d.tx, app.blockTime)
	app.mu.Unlock()
	if terr != nil {
		return abci.ResponseCheckTx{Code: terr.code, Log: terr.Error()}
	}

	return abci.ResponseCheckTx{Code: CodeTypeOK, GasWanted: 1}
}

func (app *Application) DeliverTx(req abci.RequestDeliverTx) abci.ResponseDeliverTx {
	d, terr := decodeTx(req.Tx)
	if terr != nil {
		app.log.Debug().Uint32("code", terr.code).Str("reason", terr.Error()).Msg("rejected tx")
		return abci.ResponseDeliverTx{Code: terr.code, Log: terr.Error()}
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if terr := app.checkFreshness(d.tx, app.blockTime); terr != nil {
		return abci.ResponseDeliverTx{Code: terr.code, Log: terr.Error()}
	}
	app.seen[d.tx.ID] = app.blockTime.Unix()

	result, err := app.execute(d)
	events := app.ledger.DrainEvents()
	if err != nil {
		code, codespace := CodeTypeInvalidTx, ""
		if c, ok := ledger.CodeOf(err); ok {
			code, codespace = uint32(c), LedgerCodespace
		}
		app.log.Info().
			Str("tx", d.tx.ID).
			Str("type", string(d.tx.Type)).
			Str("caller", d.caller).
			Uint32("code", code).
			Err(err).
			Msg("ledger rejected tx")
		return abci.ResponseDeliverTx{Code: code, Codespace: codespace, Log: err.Error()}
	}

	data, _ := json.Marshal(result)
	app.pending = append(app.pending, events...)
	app.log.Info().
		Str("tx", d.tx.ID).
		Str("type", string(d.tx.Type)).
		Str("caller", d.caller).
		Int64("height", app.blockHeight).
		Msg("executed tx")
	return abci.ResponseDeliverTx{Code: CodeTypeOK, Data: data, Events: toABCIEvents(d.tx.ID, events)}
}

// Result is the JSON body of a successful DeliverTx response.
type Result struct {
	CampaignID uint64 `json:"campaign_id,omitempty"`
	Amount     uint64 `json:"amount,omitempty,string"`
	Payout     uint64 `json:"payout,omitempty,string"`
	Fee        uint64 `json:"fee,omitempty,string"`
}

func (app *Application) execute(d *decodedTx) (Result, error) {
	l := app.ledger
	switch p := d.payload.(type) {
	case *types.CreateCampaignPayload:
		id, err := l.CreateCampaign(d.caller, p.MetadataRef, p.Goal, p.Duration)
		return Result{CampaignID: id}, err
	case *types.DonatePayload:
		err := l.Donate(d.caller, p.CampaignID, p.Amount, p.Token)
		return Result{CampaignID: p.CampaignID, Amount: p.Amount}, err
	case *types.RegisterDepositPayload:
		err := l.RegisterDeposit(d.caller, p.CampaignID, p.Amount, p.Donor)
		return Result{CampaignID: p.CampaignID, Amount: p.Amount}, err
	case *types.ClaimFundsPayload:
		payout, fee, err := l.ClaimFunds(d.caller, p.CampaignID, p.Token)
		return Result{CampaignID: p.CampaignID, Payout: payout, Fee: fee}, err
	case *types.RequestRefundPayload:
		amount, err := l.RequestRefund(d.caller, p.CampaignID, p.Token)
		return Result{CampaignID: p.CampaignID, Amount: amount}, err
	case *types.UpdateMetadataPayload:
		err := l.UpdateCampaignMetadata(d.caller, p.CampaignID, p.MetadataRef)
		return Result{CampaignID: p.CampaignID}, err
	case *types.WithdrawFeesPayload:
		amount, err := l.WithdrawFees(d.caller, p.Token)
		return Result{Amount: amount}, err
	}
	return Result{}, fmt.Errorf("unhandled payload %T", d.payload)
}

func toABCIEvents(txID string, events []ledger.Event) []abci.Event {
	out := make([]abci.Event, 0, len(events))
	for _, ev := range events {
		attrs := make([]abci.EventAttribute, 0, len(ev.Attributes)+2)
		attrs = append(attrs, abci.EventAttribute{Key: []byte("tx-id"), Value: []byte(txID), Index: true})
		if ev.CampaignID != 0 {
			attrs = append(attrs, abci.EventAttribute{
				Key:   []byte("campaign-id"),
				Value: []byte(strconv.FormatUint(ev.CampaignID, 10)),
				Index: true,
			})
		}
		for _, a := range ev.Attributes {
			attrs = append(attrs, abci.EventAttribute{Key: []byte(a.Key), Value: []byte(a.Value), Index: true})
		}
		out = append(out, abci.Event{Type: ev.Type, Attributes: attrs})
	}
	return out
}
