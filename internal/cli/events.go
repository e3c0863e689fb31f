package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/issueforge/issueforge/internal/analytics"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the run event log",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded run events",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		issue, _ := cmd.Flags().GetInt("issue")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		d, err := openEvents()
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.ListRunEvents(project, issue, limit)
		if err != nil {
			return err
		}

		if format == "json" {
			data, _ := json.MarshalIndent(events, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-20s %-16s %-7s %-16s %-14s %-4s %s\n",
			"TIME", "PROJECT", "ISSUE", "EVENT", "STEP", "ATT", "DETAIL")
		for _, e := range events {
			detail := strings.ReplaceAll(e.Detail, "\n", " ")
			if len(detail) > 60 {
				detail = detail[:57] + "..."
			}
			fmt.Fprintf(w, "%-20s %-16s %-7d %-16s %-14s %-4d %s\n",
				e.Timestamp, e.Project, e.Issue, e.Event, e.Step, e.Attempt, detail)
		}
		return nil
	},
}

var eventsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-project run statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")
		format, _ := cmd.Flags().GetString("format")

		d, err := openEvents()
		if err != nil {
			return err
		}
		defer d.Close()

		stats, err := analytics.QueryProjectStats(d, since)
		if err != nil {
			return err
		}
		durations, err := analytics.QueryRunDurations(d, since)
		if err != nil {
			return err
		}

		if format == "json" {
			data, _ := json.MarshalIndent(map[string]any{
				"projects":  stats,
				"durations": durations,
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		if len(stats) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}

		fmt.Fprintf(w, "%-16s %-6s %-10s %-7s %-10s %-9s %s\n",
			"PROJECT", "RUNS", "COMPLETED", "FAILED", "NO-CHANGE", "AVG-ATT", "FIRST-PASS")
		for _, s := range stats {
			fmt.Fprintf(w, "%-16s %-6d %-10d %-7d %-10d %-9.1f %.0f%%\n",
				s.Project, s.Runs, s.Completed, s.Failed, s.NoChanges, s.AvgAttempts, s.FirstPassPct)
		}

		if len(durations) > 0 {
			fmt.Fprintf(w, "\n%-16s %-6s %-12s %-12s %s\n", "PROJECT", "RUNS", "AVG-MIN", "P50-MIN", "P95-MIN")
			for _, d := range durations {
				fmt.Fprintf(w, "%-16s %-6d %-12.1f %-12.1f %.1f\n", d.Project, d.Count, d.Avg, d.P50, d.P95)
			}
		}
		return nil
	},
}

func init() {
	eventsListCmd.Flags().String("project", "", "filter by project")
	eventsListCmd.Flags().Int("issue", 0, "filter by issue number")
	eventsListCmd.Flags().Int("limit", 200, "maximum events to show")
	eventsListCmd.Flags().String("format", "text", "Output format: text or json")
	eventsStatsCmd.Flags().String("since", "", "only count events at or after this timestamp")
	eventsStatsCmd.Flags().String("format", "text", "Output format: text or json")
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsStatsCmd)
}
