package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

func newCmdRecord() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage RRSets of a zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("invalid command")
		},
	}
	cmd.AddCommand(newCmdRecordSet(), newCmdRecordDelete(), newCmdRecordList())
	return cmd
}

func newCmdRecordSet() *cobra.Command {
	var ttl int

	cmd := &cobra.Command{
		Use:   "set ZONE TYPE NAME CONTENT...",
		Short: "Replace the RRSet for NAME/TYPE with the given contents",
		Long: "Replace the RRSet for NAME/TYPE with the given contents. The RRSet is replaced as a whole:\n" +
			"pass every value of a multi-value record in one call. A NAME without a trailing dot is\n" +
			"taken relative to ZONE.",
		Args: cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			zone, rrType := args[0], strings.ToUpper(args[1])
			name, err := dns.QualifyName(args[2], zone)
			if err != nil {
				return err
			}
			var opts *dns.RRSetOptions
			if ttl > 0 {
				opts = &dns.RRSetOptions{TTL: ttl}
			}
			return c.CreateRecord(cmd.Context(), zone, rrType, name, args[3:], opts)
		},
	}
	cmd.Flags().IntVar(&ttl, "ttl", 0, fmt.Sprintf("TTL in seconds (default %d)", dns.DefaultTTL))
	return cmd
}

func newCmdRecordDelete() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ZONE TYPE NAME",
		Short: "Delete the RRSet for NAME/TYPE",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			name, err := dns.QualifyName(args[2], args[0])
			if err != nil {
				return err
			}
			return c.DeleteRecord(cmd.Context(), args[0], strings.ToUpper(args[1]), name)
		},
	}
}

func newCmdRecordList() *cobra.Command {
	var filter dns.RRSetFilter

	cmd := &cobra.Command{
		Use:   "list ZONE",
		Short: "List RRSets of a zone, optionally filtered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			if filter.Name != "" {
				if filter.Name, err = dns.QualifyName(filter.Name, args[0]); err != nil {
					return err
				}
			}
			rrsets, err := c.Records(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rrsets)
		},
	}
	cmd.Flags().StringVar(&filter.Name, "name", "", "Only RRSets with this name")
	cmd.Flags().StringVar(&filter.Type, "type", "", "Only RRSets of this type")
	cmd.Flags().IntVar(&filter.TTL, "ttl", 0, "Only RRSets with this TTL")
	return cmd
}

func newCmdAlias() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage CNAME aliases of a zone apex",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("invalid command")
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add ZONE ALIAS",
			Short: "Point ALIAS at the zone apex",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, _, err := newClient(cmd)
				if err != nil {
					return err
				}
				return c.CreateAlias(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "delete ZONE ALIAS",
			Short: "Remove an alias",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, _, err := newClient(cmd)
				if err != nil {
					return err
				}
				return c.DeleteAlias(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "list ZONE",
			Short: "List aliases",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, _, err := newClient(cmd)
				if err != nil {
					return err
				}
				aliases, err := c.Aliases(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), aliases)
			},
		},
	)
	return cmd
}
