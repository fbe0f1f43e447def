package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	alertMonitorID string
	alertState     string
	alertSeverity  string
	alertPage      int
	alertPerPage   int
	alertHistory   bool
)

// alertsCmd represents the alerts command group
var alertsCmd = &cobra.Command{
	Use:     "alerts",
	Aliases: []string{"alert"},
	Short:   "Alert commands",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	Long: `List live alerts, newest first. --history lists archived alerts instead.

Examples:
  watchctl alerts list --state ACTIVE --severity critical
  watchctl alerts list --monitor 6f1c2a --history`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		page, err := client.ListAlerts(cmd.Context(), AlertQuery{
			MonitorID: alertMonitorID,
			State:     alertState,
			Severity:  alertSeverity,
			Page:      alertPage,
			PerPage:   alertPerPage,
			History:   alertHistory,
		})
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}
		w := cmd.OutOrStdout()
		return printAlerts(w, outputFormat(w), page)
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <alert-id>...",
	Short: "Acknowledge active alerts of a monitor",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertMonitorID == "" {
			return fmt.Errorf("--monitor is required")
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		result, err := client.Acknowledge(cmd.Context(), alertMonitorID, args)
		if err != nil {
			return fmt.Errorf("acknowledge alerts: %w", err)
		}
		w := cmd.OutOrStdout()
		return printAcknowledgeResult(w, outputFormat(w), result)
	},
}

func init() {
	alertsCmd.PersistentFlags().StringVarP(&alertMonitorID, "monitor", "m", "", "monitor id")
	alertsListCmd.Flags().StringVar(&alertState, "state", "", "filter by state (ACTIVE, ACKNOWLEDGED, COMPLETED, ERROR, DELETED)")
	alertsListCmd.Flags().StringVar(&alertSeverity, "severity", "", "filter by severity (1-5 or a name)")
	alertsListCmd.Flags().IntVar(&alertPage, "page", 1, "page number")
	alertsListCmd.Flags().IntVar(&alertPerPage, "per-page", 50, "alerts per page")
	alertsListCmd.Flags().BoolVar(&alertHistory, "history", false, "list archived alerts")

	alertsCmd.AddCommand(alertsListCmd, alertsAckCmd)
	rootCmd.AddCommand(alertsCmd)
}
