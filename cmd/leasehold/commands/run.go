package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/leasehold/cmd/leasehold/handlers"
)

// Run returns the command that executes one scheduled job immediately.
func Run() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "run [sweep|backups|reminders]",
		Short: "Run a scheduled job once and exit",
		Long: `Run one of the scheduled jobs once, outside the scheduler.

Jobs:
  sweep      Charge one minute of consumption and stop depleted accounts
  backups    Rotate backups of every online or stopped resource
  reminders  Remind owners of resources that have been stopped for long

A sweep run here and one run by 'leasehold serve' charge the same minute
twice. The command therefore refuses to start while a server answers on the
configured address; trigger the job in that server with
'POST /v1/jobs/<job>' instead, or pass --force if the server runs on a
different schedule.

Examples:
  leasehold run sweep -c leasehold.yaml
  leasehold run backups -c leasehold.yaml --force`,
		ValidArgs: handlers.Jobs(),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.RunJob(cmd.Context(), configPath, args[0], force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Run even when a leasehold server answers on the configured address")

	return cmd
}
