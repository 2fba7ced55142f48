package cli

import (
	"context"
	"fmt"
	"time"

	"crowdfund.ledger/cfl/internal/discovery"
)

type DiscoverCmd struct {
	Wait time.Duration `default:"3s" help:"How long to listen for announcements."`
}

func (cmd *DiscoverCmd) Run(env *Environment) error {
	ctx, cancel := context.WithTimeout(context.Background(), cmd.Wait)
	defer cancel()

	peers, err := discovery.Browse(ctx)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		fmt.Fprintln(env.Stderr, "no ledger nodes found")
		return nil
	}
	printPeers(env, peers)
	return nil
}

func printPeers(env *Environment, peers []*discovery.Peer) {
	for _, p := range peers {
		fmt.Fprintf(env.Stdout, "%s\t%s\tver=%s\tadmin=%s\n", p.Instance, p.GatewayURL(), p.Txt["ver"], p.Txt["admin"])
	}
}
