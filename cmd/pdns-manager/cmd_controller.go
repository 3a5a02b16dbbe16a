package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/config"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/controller"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(gatewayv1.Install(scheme))
}

func newCmdController() *cobra.Command {
	var (
		metricsAddr string
		probeAddr   string
		ttl         int
	)

	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Provision A records for Gateway API HTTPRoute hostnames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ctrl.Log.WithName("setup")
			log.Info("starting pdns-manager controller", "version", Version)

			zones, err := config.LoadZoneMap()
			if err != nil {
				return fmt.Errorf("unable to load zone map: %w", err)
			}
			log.Info("loaded zone map", "zones", zones.Zones())

			providerCfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("unable to load provider config: %w", err)
			}
			log.Info("loaded provider config", "provider", providerCfg.Provider)

			dnsProvider, err := dns.NewProvider(providerCfg.Provider, ctrl.Log.WithName("dns-"+providerCfg.Provider), providerCfg.Settings)
			if err != nil {
				return fmt.Errorf("unable to create DNS provider: %w", err)
			}

			mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
				Scheme:                 scheme,
				Metrics:                metricsserver.Options{BindAddress: metricsAddr},
				HealthProbeBindAddress: probeAddr,
			})
			if err != nil {
				return fmt.Errorf("unable to create manager: %w", err)
			}

			if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
				return fmt.Errorf("unable to set up health check: %w", err)
			}
			if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
				return fmt.Errorf("unable to set up ready check: %w", err)
			}

			reconciler := &controller.HTTPRouteReconciler{
				Client:    mgr.GetClient(),
				APIReader: mgr.GetAPIReader(),
				Log:       ctrl.Log.WithName("httproute-controller"),
				Zones:     zones,
				DNS:       dnsProvider,
				Upsert:    providerCfg.Upsert,
				TTL:       ttl,
			}
			if err := reconciler.SetupWithManager(mgr); err != nil {
				return fmt.Errorf("unable to set up HTTPRoute controller: %w", err)
			}

			log.Info("starting manager")
			if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
				return fmt.Errorf("manager exited with error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-bind-address", ":9090", "Metrics endpoint address")
	cmd.Flags().StringVar(&probeAddr, "health-probe-bind-address", ":8081", "Health probe endpoint address")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "TTL of written records (0 = provider default)")
	return cmd
}
