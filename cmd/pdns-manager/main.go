package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/config"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns/powerdns"
	_ "github.com/yuriy-kovalchuk/pdns-manager/internal/dns/providers"
)

var Version = "dev"

func newRootCmd() *cobra.Command {
	opts := zap.Options{
		Development: true,
	}
	goflags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.BindFlags(goflags)

	cmd := &cobra.Command{
		Use:           "pdns-manager",
		Short:         "Provision and verify PowerDNS zones",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts), zap.WriteTo(cmd.ErrOrStderr())))
		},
	}
	cmd.PersistentFlags().AddGoFlagSet(goflags)
	cmd.PersistentFlags().String("config", "", "Provider config file (env DNS_PROVIDER_PATH, default configs/dns-provider.yaml)")

	cmd.AddCommand(
		newCmdZones(),
		newCmdZone(),
		newCmdRecord(),
		newCmdAlias(),
		newCmdVerify(),
		newCmdController(),
	)
	return cmd
}

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the provider config named by --config or the environment.
func loadConfig(cmd *cobra.Command) (*config.ProviderConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.LoadProviderConfig()
	}
	return config.LoadProviderConfigFromPath(path)
}

// newClient builds a PowerDNS client from the provider config.
func newClient(cmd *cobra.Command) (*powerdns.Client, *config.ProviderConfig, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to load provider config: %w", err)
	}
	if cfg.Provider != "powerdns" {
		return nil, nil, fmt.Errorf("provider %q does not support zone management", cfg.Provider)
	}
	c, err := powerdns.New(ctrl.Log.WithName("powerdns"), cfg.Settings)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PowerDNS client: %w", err)
	}
	ctrl.Log.WithName("setup").V(1).Info("using PowerDNS API", "url", c.BaseURL())
	return c, cfg, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
