package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/leasehold/cmd/leasehold/handlers"
)

// Migrate returns the command that creates or updates the datastore schema.
func Migrate() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the datastore schema",
		Long: `Create or update the datastore schema.

Only the database section of the configuration is required. Run this
before the first 'leasehold serve' or after an upgrade, unless
database.auto_migrate is enabled.

Examples:
  LEASEHOLD_DATABASE_DSN=postgres://... leasehold migrate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Migrate(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}
