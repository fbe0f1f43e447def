package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	monitorDryRun    bool
	monitorPeriodEnd string
)

// monitorsCmd represents the monitors command group
var monitorsCmd = &cobra.Command{
	Use:     "monitors",
	Aliases: []string{"monitor"},
	Short:   "Monitor commands",
}

var monitorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all monitors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		monitors, err := client.ListMonitors(cmd.Context())
		if err != nil {
			return fmt.Errorf("list monitors: %w", err)
		}
		w := cmd.OutOrStdout()
		return printMonitors(w, outputFormat(w), monitors)
	},
}

var monitorsExecuteCmd = &cobra.Command{
	Use:   "execute <monitor-id>",
	Short: "Run a monitor now",
	Long: `Run a stored monitor for the schedule period ending now, or at --period-end.

With --dry-run the triggers are evaluated and actions rendered, but no alerts are
written and no notifications are sent.

Example:
  watchctl monitors execute 6f1c2a --dry-run --period-end 2024-05-01T09:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var periodEnd time.Time
		if monitorPeriodEnd != "" {
			t, err := time.Parse(time.RFC3339, monitorPeriodEnd)
			if err != nil {
				return fmt.Errorf("--period-end must be an RFC3339 timestamp: %w", err)
			}
			periodEnd = t
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		result, err := client.ExecuteMonitor(cmd.Context(), args[0], monitorDryRun, periodEnd)
		if err != nil {
			return fmt.Errorf("execute monitor: %w", err)
		}
		w := cmd.OutOrStdout()
		return printRunResult(w, outputFormat(w), result)
	},
}

func init() {
	monitorsExecuteCmd.Flags().BoolVar(&monitorDryRun, "dry-run", false, "evaluate without writing alerts or sending notifications")
	monitorsExecuteCmd.Flags().StringVar(&monitorPeriodEnd, "period-end", "", "end of the run period (RFC3339, default now)")

	monitorsCmd.AddCommand(monitorsListCmd, monitorsExecuteCmd)
	rootCmd.AddCommand(monitorsCmd)
}
