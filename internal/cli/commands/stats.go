package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cradleeye/internal/api/client"
)

func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Appliance statistics",
	}

	cmd.AddCommand(newDispatcherStatsCommand())
	cmd.AddCommand(newManagerStatsCommand())
	cmd.AddCommand(newSummaryCommand())

	return cmd
}

func newDispatcherStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "Notification delivery statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			stats, err := c.DispatcherStats()
			if err != nil {
				return fmt.Errorf("failed to fetch stats: %v", err)
			}

			fmt.Printf("Total: %d  Successful: %d  Failed: %d  Success rate: %.1f%%\n",
				stats.Total, stats.Successful, stats.Failed, stats.SuccessRate*100)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tTOTAL\tSUCCESSFUL\tFAILED\tSUCCESS RATE")
			for ch, cs := range stats.Channels {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\n",
					ch, cs.Total, cs.Successful, cs.Failed, cs.SuccessRate*100)
			}
			return w.Flush()
		},
	}
}

func newManagerStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Alert lifecycle statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			stats, err := c.ManagerStats()
			if err != nil {
				return fmt.Errorf("failed to fetch stats: %v", err)
			}

			fmt.Printf("Active: %d  Created: %d  Acknowledged: %d  Resolved: %d  Escalated: %d\n",
				stats.Active, stats.Created, stats.Acknowledged, stats.Resolved, stats.Escalated)
			for reason, n := range stats.Suppressed {
				fmt.Printf("Suppressed (%s): %d\n", reason, n)
			}
			return nil
		},
	}
}

func newSummaryCommand() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Alert history summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}
			summary, err := c.Summary(hours)
			if err != nil {
				return fmt.Errorf("failed to fetch summary: %v", err)
			}

			fmt.Printf("Since %s: %d alerts (%d escalated, %d resolved)\n",
				summary.Since.Format("2006-01-02 15:04"), summary.Total, summary.Escalated, summary.Resolved)
			for t, n := range summary.ByType {
				fmt.Printf("  %-14s %d\n", t, n)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "Summary window in hours")
	return cmd
}
