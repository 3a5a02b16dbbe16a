package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/bulk"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/verify"
)

func newCmdVerify() *cobra.Command {
	var (
		servers    []string
		limit      int
		repeats    int
		jobTimeout time.Duration
		useTCP     bool
		quiet      bool
		progress   bool
	)

	cmd := &cobra.Command{
		Use:   "verify [ZONE...]",
		Short: "Resolve zones against their name servers in bulk",
		Long: "Resolve every zone (all zones on the server when none are given) against the name servers.\n" +
			"The apex is checked at the first server and www.<zone> at the second.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := ctrl.Log.WithName("verify")

			if len(servers) == 0 {
				servers = cfg.Verify.NameServers
			}
			if len(servers) == 0 {
				return fmt.Errorf("no name servers to verify against, use --ns")
			}
			if !cmd.Flags().Changed("limit") && cfg.Verify.Limit > 0 {
				limit = cfg.Verify.Limit
			}
			if !cmd.Flags().Changed("repeats") && cfg.Verify.Repeats > 0 {
				repeats = cfg.Verify.Repeats
			}

			zones := args
			if len(zones) == 0 {
				list, err := c.GetZones(ctx)
				if err != nil {
					return fmt.Errorf("listing zones: %w", err)
				}
				for _, z := range list {
					zones = append(zones, z.Name)
				}
			}

			// Zones missing on the provider are reported before any lookup.
			fetched, err := bulk.Run(ctx, verify.ZoneJobs(c, zones, log), limit)
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, r := range fetched {
				if r.State == bulk.Failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", color.YellowString("MISSING"), zones[r.Index], r.Err)
				}
			}

			network := "udp"
			if useTCP {
				network = "tcp"
			}
			v := &verify.Verifier{
				Resolver:   &verify.DNSResolver{Net: network, Timeout: jobTimeout},
				Log:        log,
				Limit:      limit,
				JobTimeout: jobTimeout,
			}
			if progress {
				stderr := cmd.ErrOrStderr()
				v.Progress = func(pass, done, total int) {
					fmt.Fprintf(stderr, "\rpass %d: %d/%d checks", pass, done, total)
					if done == total {
						fmt.Fprintln(stderr)
					}
				}
			}
			checks := verify.Plan(zones, verify.DefaultTargets(servers))
			report, err := v.Run(ctx, checks, repeats)
			if report == nil {
				return err
			}
			if progress && report.Interrupted {
				fmt.Fprintln(cmd.ErrOrStderr())
			}

			out := cmd.OutOrStdout()
			if !quiet {
				for _, o := range report.Outcomes {
					if o.OK() {
						fmt.Fprintf(out, "%s %s %s\n", color.GreenString("OK  "), o.Check, o.Address)
					} else {
						fmt.Fprintf(out, "%s %s %v\n", color.RedString("FAIL"), o.Check, o.Err)
					}
				}
			}
			fmt.Fprintf(out, "zones: %d * repeats: %d = %s, %.2f checks/sec, %d ok, %d failed\n",
				len(zones), report.Passes, report.Elapsed.Round(time.Millisecond), report.Rate(),
				report.Succeeded, report.Failed)
			// An interrupted run still prints what it got, then fails.
			return err
		},
	}
	cmd.Flags().StringSliceVar(&servers, "ns", nil, "Name server addresses (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", verify.DefaultLimit, "Lookups in flight")
	cmd.Flags().IntVar(&repeats, "repeats", 1, "Number of passes over all zones")
	cmd.Flags().DurationVar(&jobTimeout, "job-timeout", 0, "Per lookup timeout (0 = none)")
	cmd.Flags().BoolVar(&useTCP, "tcp", false, "Query over TCP")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the summary")
	cmd.Flags().BoolVar(&progress, "progress", false, "Report progress on stderr")
	return cmd
}
