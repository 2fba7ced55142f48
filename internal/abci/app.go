// Package abci contains the ABCI application that connects the campaign
// ledger to the Tendermint consensus engine. Signatures are validated here,
// transactions are dispatched to the ledger here and the committed state is
// hashed and snapshotted here.
//
// Every entry point runs under one mutex, so the ledger sees a strictly
// sequential stream of operations regardless of how many goroutines
// Tendermint or the HTTP gateway use.
package abci

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	abci "github.com/tendermint/tendermint/abci/types"

	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/store"
	"crowdfund.ledger/cfl/internal/token"
	"crowdfund.ledger/cfl/internal/types"
)

const (
	CodeTypeOK            uint32 = 0
	CodeTypeEncodingError uint32 = 1
	CodeTypeAuthError     uint32 = 2
	CodeTypeInvalidTx     uint32 = 3
	CodeTypeDuplicateTx   uint32 = 4
)

// LedgerCodespace tags responses whose code is a ledger error code.
const LedgerCodespace = "ledger"

// DefaultTxTTL bounds how far a transaction timestamp may drift from the
// block time. Transaction ids are remembered for the same window.
const DefaultTxTTL = time.Hour

const appVersion uint64 = 1

// Options configures an Application. Zero values are usable.
type Options struct {
	// Params are used when genesis leaves a field unset.
	Params ledger.Params
	// Store persists a snapshot on every commit; nil keeps state in memory.
	Store *store.Store
	// BackupEvery writes a database backup every N committed blocks.
	BackupEvery int64
	MaxBackups  int
	TxTTL       time.Duration
	Logger      zerolog.Logger
	// OnEvent receives committed ledger events after the lock is released.
	OnEvent func(ledger.Event)
}

// committedState is what Commit hashes and the store persists.
type committedState struct {
	Height int64            `json:"height"`
	Ledger *ledger.State    `json:"ledger"`
	Bank   *token.Bank      `json:"bank"`
	Seen   map[string]int64 `json:"seen"`
}

// Application implements the ABCI interface over a ledger and a token bank.
type Application struct {
	abci.BaseApplication

	mu   sync.Mutex
	opts Options
	log  zerolog.Logger

	height      int64
	blockHeight int64
	blockTime   time.Time
	appHash     []byte

	ledger *ledger.Ledger
	bank   *token.Bank
	// seen maps executed transaction ids to the unix time of their block.
	seen    map[string]int64
	pending []ledger.Event
}

// NewApplication builds the application and restores the latest snapshot
// from opts.Store when one exists.
func NewApplication(opts Options) (*Application, error) {
	if opts.TxTTL <= 0 {
		opts.TxTTL = DefaultTxTTL
	}
	if opts.Params == (ledger.Params{}) {
		opts.Params.FeeRateBasisPoints = ledger.DefaultFeeRateBasisPoints
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		opts: opts,
		log:  opts.Logger.With().Str("component", "abci").Logger(),
	}
	app.reset(ledger.NewState(opts.Params), token.NewBank(), nil)

	if opts.Store != nil {
		snap, err := opts.Store.Latest()
		switch {
		case errors.Is(err, store.ErrNoSnapshot):
		case err != nil:
			return nil, fmt.Errorf("load snapshot: %w", err)
		default:
			if err := app.restore(snap); err != nil {
				return nil, err
			}
		}
	}
	return app, nil
}

func (app *Application) reset(state *ledger.State, bank *token.Bank, seen map[string]int64) {
	if seen == nil {
		seen = make(map[string]int64)
	}
	app.bank = bank
	app.seen = seen
	app.ledger = ledger.New(state, bank, ledger.HeightFunc(app.currentHeight))
}

// currentHeight is the block being executed, or the last committed block
// between blocks.
func (app *Application) currentHeight() uint64 {
	if app.blockHeight < 0 {
		return 0
	}
	return uint64(app.blockHeight)
}

func (app *Application) restore(snap *store.Snapshot) error {
	var cs committedState
	if err := json.Unmarshal(snap.State, &cs); err != nil {
		return fmt.Errorf("decode snapshot at height %d: %w", snap.Height, err)
	}
	if cs.Ledger == nil {
		return fmt.Errorf("snapshot at height %d has no ledger state", snap.Height)
	}
	if cs.Bank == nil {
		cs.Bank = token.NewBank()
	}
	state, err := reloadLedgerState(cs.Ledger)
	if err != nil {
		return err
	}
	app.reset(state, cs.Bank, cs.Seen)
	app.height = cs.Height
	app.blockHeight = cs.Height
	app.appHash = snap.AppHash
	app.log.Info().Int64("height", cs.Height).Msg("restored ledger snapshot")
	return nil
}

// reloadLedgerState round-trips through UnmarshalState so that nil maps in
// the decoded snapshot are initialised.
func reloadLedgerState(s *ledger.State) (*ledger.State, error) {
	raw, err := ledger.MarshalState(s)
	if err != nil {
		return nil, err
	}
	return ledger.UnmarshalState(raw)
}

func (app *Application) Info(req abci.RequestInfo) abci.ResponseInfo {
	app.mu.Lock()
	defer app.mu.Unlock()

	return abci.ResponseInfo{
		Data:             "cfl",
		Version:          types.Version,
		AppVersion:       appVersion,
		LastBlockHeight:  app.height,
		LastBlockAppHash: app.appHash,
	}
}

func (app *Application) InitChain(req abci.RequestInitChain) abci.ResponseInitChain {
	app.mu.Lock()
	defer app.mu.Unlock()

	genesis, err := ParseGenesis(req.AppStateBytes)
	if err != nil {
		panic(err)
	}
	params, err := genesis.Params(app.opts.Params)
	if err != nil {
		panic(fmt.Errorf("invalid genesis: %w", err))
	}
	bank := token.NewBank()
	if err := genesis.Apply(bank); err != nil {
		panic(fmt.Errorf("invalid genesis: %w", err))
	}

	app.reset(ledger.NewState(params), bank, nil)
	app.log.Info().
		Str("chain_id", req.ChainId).
		Str("admin", params.Admin).
		Uint64("fee_rate_bp", params.FeeRateBasisPoints).
		Bool("registered_deposits", params.AllowRegisteredDeposits).
		Int("allocations", len(genesis.Allocations)).
		Msg("initialised chain")
	return abci.ResponseInitChain{}
}

func (app *Application) BeginBlock(req abci.RequestBeginBlock) abci.ResponseBeginBlock {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.blockHeight = req.Header.Height
	app.blockTime = req.Header.Time
	return abci.ResponseBeginBlock{}
}

func (app *Application) Commit() abci.ResponseCommit {
	app.mu.Lock()

	app.height = app.blockHeight
	app.pruneSeen()

	raw, err := json.Marshal(committedState{
		Height: app.height,
		Ledger: app.ledger.State(),
		Bank:   app.bank,
		Seen:   app.seen,
	})
	if err != nil {
		app.mu.Unlock()
		panic(fmt.Errorf("encode committed state: %w", err))
	}
	sum := sha256.Sum256(raw)
	app.appHash = sum[:]

	events := app.pending
	app.pending = nil

	if app.opts.Store != nil {
		snap := store.Snapshot{Height: app.height, AppHash: app.appHash, State: raw}
		if err := app.opts.Store.SaveCommit(snap, events); err != nil {
			app.log.Error().Err(err).Int64("height", app.height).Msg("failed to persist snapshot")
		}
		if app.opts.BackupEvery > 0 && app.height%app.opts.BackupEvery == 0 {
			if path, err := app.opts.Store.BackupCurrent(app.opts.MaxBackups); err != nil {
				app.log.Error().Err(err).Msg("ledger backup failed")
			} else if path != "" {
				app.log.Debug().Str("path", path).Msg("ledger backup written")
			}
		}
	}

	resp := abci.ResponseCommit{Data: app.appHash}
	hook := app.opts.OnEvent
	app.mu.Unlock()

	if hook != nil {
		for _, ev := range events {
			hook(ev)
		}
	}
	return resp
}

func (app *Application) pruneSeen() {
	if app.blockTime.IsZero() {
		return
	}
	cutoff := app.blockTime.Add(-app.opts.TxTTL).Unix()
	for id, ts := range app.seen {
		if ts < cutoff {
			delete(app.seen, id)
		}
	}
}

// LastCommit returns the last committed height and app hash.
func (app *Application) LastCommit() (int64, []byte) {
	app.mu.Lock()
	defer app.mu.Unlock()
	hash := make([]byte, len(app.appHash))
	copy(hash, app.appHash)
	return app.height, hash
}

// ReadLedger runs fn with exclusive access to the ledger and bank. fn must
// not retain either value or mutate state.
func (app *Application) ReadLedger(fn func(l *ledger.Ledger, bank *token.Bank)) {
	app.mu.Lock()
	defer app.mu.Unlock()
	fn(app.ledger, app.bank)
}
