package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of watchctl.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(w, config.GetBuildInfo())
		}
		_, err := fmt.Fprintln(w, config.VersionString())
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
