package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/rsvp/internal/loadtest"
)

const defaultLoadTestTimeout = 10 * time.Minute

func newLoadtestCmd(c *cli) *cobra.Command {
	cfg := loadtest.Config{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive concurrent visitors against a running server",
		Long: `Open one observer page, then let many visitors RSVP concurrently, each from
its own page. The run succeeds once the observer's roster holds every accepted
RSVP and the attendee total matches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultLoadTestTimeout)
			defer cancel()

			stats, err := loadtest.Run(ctx, cfg, c.log.Named("loadtest"))
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "submitted=%d failed=%d guests=%d/%d duration=%s\n",
					stats.Submitted, stats.Failed, stats.ObservedGuests, stats.ExpectedGuests,
					stats.Duration.Round(time.Millisecond))
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.IntVar(&cfg.Visitors, "visitors", loadtest.DefaultVisitors, "number of visitors, one RSVP each")
	f.IntVar(&cfg.Workers, "workers", loadtest.DefaultWorkers, "number of concurrent visitors")
	f.DurationVar(&cfg.Timeout, "timeout", loadtest.DefaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", loadtest.DefaultSettle, "how long to wait for the roster to converge")
	f.BoolVar(&cfg.Verbose, "verbose", false, "log every failed visitor")
	return cmd
}
