package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/history"
)

func init() {
	rootCmd.AddCommand(incidentsCmd)
}

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Show today's incident counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		snap := history.ReadSnapshot(cfg.Monitoring.HistoryPath(), history.WithLogger(logger))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Incidents for %s: %d\n\n", snap.Date, len(snap.Incidents))
		if len(snap.Incidents) == 0 {
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tCOUNT\tFIRST SEEN\tLAST SEEN")
		for _, e := range snap.Incidents {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Key, e.Count,
				e.FirstSeen.Local().Format(time.TimeOnly), e.LastSeen.Local().Format(time.TimeOnly))
		}
		return tw.Flush()
	},
}
