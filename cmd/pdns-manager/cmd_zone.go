package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

func newCmdZones() *cobra.Command {
	return &cobra.Command{
		Use:   "zones",
		Short: "List zones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			zones, err := c.GetZones(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), zones)
		},
	}
}

func newCmdZone() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zone",
		Short: "Manage a single zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("invalid command")
		},
	}
	cmd.AddCommand(
		newCmdZoneGet(),
		newCmdZoneCreate(),
		newCmdZoneDelete(),
		newCmdZoneExport(),
		newCmdZoneNotify(),
	)
	return cmd
}

func newCmdZoneGet() *cobra.Command {
	return &cobra.Command{
		Use:   "get ZONE",
		Short: "Show a zone with its RRSets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			z, err := c.GetZone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), z)
		},
	}
}

func newCmdZoneCreate() *cobra.Command {
	var address string
	var kind string
	var sets map[string]string

	cmd := &cobra.Command{
		Use:   "create ZONE",
		Short: "Create a zone, optionally pointing its apex at an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			params := dns.ZoneParams(cfg.ZoneParams())
			if kind != "" {
				if !dns.ZoneKind(kind).Valid() {
					return fmt.Errorf("unknown zone kind %q", kind)
				}
				params["kind"] = kind
			}
			for k, v := range sets {
				params[k] = v
			}

			var z *dns.Zone
			if address != "" {
				z, err = c.ProvisionDomain(cmd.Context(), args[0], address, params)
			} else {
				z, err = c.CreateZone(cmd.Context(), args[0], params)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), z)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Apex A record address")
	cmd.Flags().StringVar(&kind, "kind", "", "Zone kind (Native|Master|Slave|Forwarded)")
	cmd.Flags().StringToStringVar(&sets, "set", nil, "Extra zone fields, e.g. --set soa_edit_api=EPOCH")
	return cmd
}

func newCmdZoneDelete() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ZONE",
		Short: "Delete a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			return c.DeleteZone(cmd.Context(), args[0])
		},
	}
}

func newCmdZoneExport() *cobra.Command {
	return &cobra.Command{
		Use:   "export ZONE",
		Short: "Print a zone in BIND format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			text, err := c.ExportZone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func newCmdZoneNotify() *cobra.Command {
	return &cobra.Command{
		Use:   "notify ZONE",
		Short: "Send a DNS NOTIFY to the zone's slaves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			result, err := c.NotifyZone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
			return err
		},
	}
}
