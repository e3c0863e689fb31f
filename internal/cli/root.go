package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "issueforge",
	Short: "issueforge — autonomous issue-to-pull-request runs",
	Long: `issueforge takes a GitHub issue and drives it to a reviewed pull
request: plan, implement, run the quality gates, retry on failure, and
publish the evidence trail alongside the change.

Run state lives under .agent/runs/ inside the target repository; the
run event log is SQLite in ~/.issueforge/.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(templatesCmd)
}
