// Package cli implements cflctl, the command line client that signs ledger
// transactions and submits them to a node over Tendermint RPC.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"crowdfund.ledger/cfl/internal/abci"
	"crowdfund.ledger/cfl/internal/amount"
	"crowdfund.ledger/cfl/internal/identity"
	"crowdfund.ledger/cfl/internal/tendermint"
	"crowdfund.ledger/cfl/internal/types"
)

// Environment provides an abstraction around the execution environment
type Environment struct {
	Stderr io.Writer
	Stdout io.Writer
}

// Node is the subset of the RPC client the commands use.
type Node interface {
	BroadcastSignedTransaction(ctx context.Context, stx *types.SignedTransaction, commit bool) (*tendermint.TxResult, error)
	ABCIQuery(ctx context.Context, path string) ([]byte, error)
}

// Globals are flags shared by every command.
type Globals struct {
	RPC     string        `name:"rpc" env:"CFL_RPC_ADDRESS" default:"http://localhost:26657" help:"Tendermint RPC address."`
	Key     string        `name:"key" env:"CFL_KEY_FILE" default:"cfl_key.pem" type:"path" help:"ed25519 key file used to sign."`
	Async   bool          `help:"Return after CheckTx instead of waiting for the block."`
	Timeout time.Duration `default:"30s" help:"Deadline for each command."`
}

type KeygenCmd struct{}

func (cmd *KeygenCmd) Run(env *Environment, g *Globals) error {
	id, err := identity.LoadOrCreateIdentity(g.Key)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, id.Account())
	return nil
}

type AddressCmd struct{}

func (cmd *AddressCmd) Run(env *Environment, g *Globals) error {
	id, err := identity.LoadIdentity(g.Key)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, id.Account())
	return nil
}

type CreateCmd struct {
	Goal     string `required:"" help:"Funding goal in tokens (\"250.5\") or base units (\"250500000u\")."`
	Duration uint64 `required:"" help:"Campaign length in blocks."`
	Metadata string `required:"" help:"Opaque metadata reference, e.g. an IPFS URI."`
}

func (cmd *CreateCmd) Run(env *Environment, g *Globals, node Node) error {
	goal, err := parseAmount(cmd.Goal)
	if err != nil {
		return err
	}
	return submit(env, g, node, types.TxCreateCampaign, types.CreateCampaignPayload{
		MetadataRef: cmd.Metadata,
		Goal:        goal,
		Duration:    cmd.Duration,
	})
}

type DonateCmd struct {
	Campaign uint64 `required:"" help:"Campaign id."`
	Amount   string `required:"" help:"Amount in tokens or base units (suffix u)."`
	Token    string `required:"" help:"Token reference."`
}

func (cmd *DonateCmd) Run(env *Environment, g *Globals, node Node) error {
	units, err := parseAmount(cmd.Amount)
	if err != nil {
		return err
	}
	return submit(env, g, node, types.TxDonate, types.DonatePayload{
		CampaignID: cmd.Campaign,
		Amount:     units,
		Token:      cmd.Token,
	})
}

type RegisterDepositCmd struct {
	Campaign uint64 `required:"" help:"Campaign id."`
	Amount   string `required:"" help:"Amount in tokens or base units (suffix u)."`
	Donor    string `required:"" help:"Account credited with the deposit."`
}

func (cmd *RegisterDepositCmd) Run(env *Environment, g *Globals, node Node) error {
	units, err := parseAmount(cmd.Amount)
	if err != nil {
		return err
	}
	return submit(env, g, node, types.TxRegisterDeposit, types.RegisterDepositPayload{
		CampaignID: cmd.Campaign,
		Amount:     units,
		Donor:      cmd.Donor,
	})
}

type ClaimCmd struct {
	Campaign uint64 `required:"" help:"Campaign id."`
	Token    string `required:"" help:"Token the campaign was funded with."`
}

func (cmd *ClaimCmd) Run(env *Environment, g *Globals, node Node) error {
	return submit(env, g, node, types.TxClaimFunds, types.ClaimFundsPayload{
		CampaignID: cmd.Campaign,
		Token:      cmd.Token,
	})
}

type RefundCmd struct {
	Campaign uint64 `required:"" help:"Campaign id."`
	Token    string `required:"" help:"Token the donation was made in."`
}

func (cmd *RefundCmd) Run(env *Environment, g *Globals, node Node) error {
	return submit(env, g, node, types.TxRequestRefund, types.RequestRefundPayload{
		CampaignID: cmd.Campaign,
		Token:      cmd.Token,
	})
}

type UpdateMetadataCmd struct {
	Campaign uint64 `required:"" help:"Campaign id."`
	Metadata string `required:"" help:"New metadata reference."`
}

func (cmd *UpdateMetadataCmd) Run(env *Environment, g *Globals, node Node) error {
	return submit(env, g, node, types.TxUpdateMetadata, types.UpdateMetadataPayload{
		CampaignID:  cmd.Campaign,
		MetadataRef: cmd.Metadata,
	})
}

type WithdrawFeesCmd struct {
	Token string `required:"" help:"Token the fee pool is paid in."`
}

func (cmd *WithdrawFeesCmd) Run(env *Environment, g *Globals, node Node) error {
	return submit(env, g, node, types.TxWithdrawFees, types.WithdrawFeesPayload{Token: cmd.Token})
}

type QueryCmd struct {
	Path []string `arg:"" help:"Query path segments, e.g. \"campaign 1\" or \"balance SP000.usdcx <account>\"."`
}

func (cmd *QueryCmd) Run(env *Environment, g *Globals, node Node) error {
	segments := make([]string, len(cmd.Path))
	for i, p := range cmd.Path {
		segments[i] = url.PathEscape(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	value, err := node.ABCIQuery(ctx, "/"+strings.Join(segments, "/"))
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, value, "", "  "); err != nil {
		_, err = env.Stdout.Write(append(value, '\n'))
		return err
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(env.Stdout)
	return err
}

type CLI struct {
	Globals

	Keygen          KeygenCmd          `cmd:"" help:"Create a signing key if none exists and print its account."`
	Address         AddressCmd         `cmd:"" help:"Print the account of the signing key."`
	Create          CreateCmd          `cmd:"" help:"Create a campaign."`
	Donate          DonateCmd          `cmd:"" help:"Donate tokens to a campaign."`
	RegisterDeposit RegisterDepositCmd `cmd:"" name:"register-deposit" help:"Record a deposit received outside the chain (owner only)."`
	Claim           ClaimCmd           `cmd:"" help:"Claim the funds of a campaign that met its goal."`
	Refund          RefundCmd          `cmd:"" help:"Reclaim a donation from a failed campaign."`
	UpdateMetadata  UpdateMetadataCmd  `cmd:"" name:"update-metadata" help:"Replace a campaign's metadata reference."`
	WithdrawFees    WithdrawFeesCmd    `cmd:"" name:"withdraw-fees" help:"Withdraw the platform fee pool (admin only)."`
	Query           QueryCmd           `cmd:"" help:"Run an ABCI query and print the JSON result."`
	Events          EventsCmd          `cmd:"" help:"Stream committed ledger events from a node gateway."`
	Discover        DiscoverCmd        `cmd:"" help:"List ledger nodes announced on the local network."`
}

// Run parses args and executes the selected command against the node named
// by --rpc.
func Run(env Environment, args []string) int {
	return run(env, args, func(rpcAddr string) Node {
		return tendermint.NewBroadcastClient(rpcAddr)
	})
}

func run(env Environment, args []string, dial func(rpcAddr string) Node) int {
	app := CLI{}

	parser, err := kong.New(&app,
		kong.Name("cflctl"),
		kong.Description("crowdfunding ledger client"),
		kong.UsageOnError(),
		kong.Writers(env.Stdout, env.Stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return 2
	}

	cntx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return 2
	}

	cntx.BindTo(dial(app.RPC), (*Node)(nil))

	if err := cntx.Run(&env, &app.Globals); err != nil {
		fmt.Fprintf(env.Stderr, "cflctl: error: %v\n", err)
		return 1
	}
	return 0
}

func parseAmount(s string) (uint64, error) {
	if strings.HasSuffix(s, "u") {
		return amount.ParseUnits(s)
	}
	return amount.Parse(s)
}

func submit(env *Environment, g *Globals, node Node, txType types.TransactionType, payload any) error {
	id, err := identity.LoadIdentity(g.Key)
	if err != nil {
		return err
	}
	tx, err := types.NewTransaction(txType, payload)
	if err != nil {
		return err
	}
	stx, err := tx.Sign(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	res, err := node.BroadcastSignedTransaction(ctx, stx, !g.Async)
	if err != nil {
		return fmt.Errorf("%s: %w", txType, err)
	}
	if g.Async {
		fmt.Fprintf(env.Stdout, "%s accepted: tx %s\n", txType, res.Hash)
		return nil
	}

	var out abci.Result
	if len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, &out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	fmt.Fprintf(env.Stdout, "%s committed at height %d: tx %s\n", txType, res.Height, res.Hash)
	describeResult(env.Stdout, txType, out)
	return nil
}

func describeResult(w io.Writer, txType types.TransactionType, r abci.Result) {
	switch txType {
	case types.TxCreateCampaign:
		fmt.Fprintf(w, "campaign id: %d\n", r.CampaignID)
	case types.TxClaimFunds:
		fmt.Fprintf(w, "payout: %s\nfee: %s\n", amount.Format(r.Payout), amount.Format(r.Fee))
	case types.TxRequestRefund, types.TxWithdrawFees:
		fmt.Fprintf(w, "amount: %s\n", amount.Format(r.Amount))
	}
}
