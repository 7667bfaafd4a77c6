// Package main is the entry point for the leasehold control plane.
//
// leasehold runs the lifecycle engine of a compute-rental platform: it
// allocates and provisions containers on a hypervisor node, meters their
// consumption against tenant balances, rotates snapshots and backups and
// serves an ops API for administrators.
//
// Commands: serve, migrate, run, version, completion.
//
// For detailed usage information, run:
//
//	leasehold --help
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/imamik/leasehold/cmd/leasehold/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
