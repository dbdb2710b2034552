package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chris/helpem/internal/quota"
)

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show this month's model and voice spending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.gate.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printUsage(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func printUsage(w io.Writer, s quota.Stats) {
	month := time.Month(s.Month).String()
	fmt.Fprintf(w, "%s %d\n", month, s.Year)
	fmt.Fprintf(w, "  spent:     $%.4f of $%.2f (%.2f%%)\n", s.TotalCostUSD, s.LimitUSD, s.PercentUsed)
	fmt.Fprintf(w, "  remaining: $%.4f\n", s.RemainingUSD)
	fmt.Fprintf(w, "  requests:  %s\n", humanize.Comma(s.RequestCount))
}
