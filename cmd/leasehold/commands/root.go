// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"context"

	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/cmd/leasehold/handlers"
)

// Root returns the root command for the leasehold CLI.
//
// The persistent --debug flag switches the logger to development mode. The
// logger is attached to the command context before any subcommand runs.
func Root() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:           "leasehold",
		Short:         "Lifecycle engine for rented compute containers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(log.IntoContext(ctx, handlers.SetupLogger(debug)))
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging (also LEASEHOLD_DEBUG=true)")

	// Core commands
	cmd.AddCommand(Serve())
	cmd.AddCommand(Migrate())
	cmd.AddCommand(Run())

	// Utility commands
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
