package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/imamik/leasehold/cmd/leasehold/handlers"
)

// Serve returns the command that runs the control plane.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: environment only)
//	--shutdown-timeout: How long to drain queues and in-flight requests on exit
func Serve() *cobra.Command {
	var configPath string
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lifecycle engine, scheduler and ops API",
		Long: `Run the control plane until interrupted.

This command:
  1. Loads configuration from the YAML file and LEASEHOLD_* variables
  2. Connects to the datastore, hypervisor and optional providers
  3. Marks resources left in provisioning by a previous run as failed
  4. Starts the allocation and provisioning queues
  5. Schedules the consumption sweep, backup rotation and idle reminders
  6. Serves the ops API with health, readiness and metrics endpoints

On SIGINT or SIGTERM the scheduler and HTTP server stop first, then the
queues drain within the shutdown timeout.

Examples:
  # Run with environment configuration only
  leasehold serve

  # Run with a configuration file
  leasehold serve -c leasehold.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Serve(cmd.Context(), configPath, shutdownTimeout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Maximum time to drain work on shutdown")

	return cmd
}
