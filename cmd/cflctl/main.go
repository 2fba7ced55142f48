package main

import (
	"os"

	"crowdfund.ledger/cfl/internal/cli"
)

func main() {
	env := cli.Environment{
		Stderr: os.Stderr,
		Stdout: os.Stdout,
	}

	os.Exit(cli.Run(env, os.Args[1:]))
}
