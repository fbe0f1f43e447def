// Package cmd contains the CLI commands for watchctl.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Used for flags
	verbose   bool
	output    string
	serverURL string
	token     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "watchctl",
	Short: "watchctl - BlazeWatch API client",
	Long: `watchctl manages monitors and alerts on a BlazeWatch server.

The server address and API token are read from --server and --token, or from
WATCHCTL_SERVER and WATCHCTL_TOKEN. Tokens are issued with
"blazewatch-server token --scope write".

Examples:
  # List monitors
  watchctl monitors list

  # Dry run a monitor for the period ending now
  watchctl monitors execute 6f1c2a --dry-run

  # List active alerts of a monitor
  watchctl alerts list --monitor 6f1c2a --state ACTIVE

  # Acknowledge alerts
  watchctl alerts ack --monitor 6f1c2a a1 a2`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		// Show help by default
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultServer := os.Getenv("WATCHCTL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "auto", "output format (auto, table, json)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "BlazeWatch server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("WATCHCTL_TOKEN"), "API bearer token")
}

// outputFormat resolves "auto" to table on a terminal and json otherwise.
func outputFormat(w io.Writer) string {
	if output != "auto" {
		return output
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "table"
	}
	return "json"
}

// newClient builds an API client from the global flags.
func newClient() (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("an API token is required (--token or WATCHCTL_TOKEN)")
	}
	return NewClient(serverURL, token), nil
}

// PrintVerbose prints a message to stderr only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-2] + ".."
}
