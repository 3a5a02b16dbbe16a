package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	"k8s.io/client-go/util/retry"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/config"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

const (
	finalizerName              = "pdns.yk/cleanup"
	managedHostnamesAnnotation = "pdns.yk/managed-hostnames"
	recordType                 = "A"
)

// HTTPRouteReconciler keeps an A RRSet in PowerDNS for every hostname of an
// HTTPRoute whose zone is listed in the zone map.
type HTTPRouteReconciler struct {
	client.Client
	APIReader client.Reader
	Log       logr.Logger
	Zones     *config.ZoneMap
	DNS       dns.Provider
	Upsert    bool // when true, replace existing RRSets; when false, only create missing ones
	TTL       int  // 0 = provider default
}

func (r *HTTPRouteReconciler) reader() client.Reader {
	if r.APIReader != nil {
		return r.APIReader
	}
	return r.Client
}

func (r *HTTPRouteReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := r.Log.WithValues("httproute", req.NamespacedName)

	var route gatewayv1.HTTPRoute
	if err := r.reader().Get(ctx, req.NamespacedName, &route); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	// Handle deletion
	if !route.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(&route, finalizerName) {
			log.Info("deleting DNS records for HTTPRoute")
			for _, hostname := range routeHostnames(&route) {
				if err := r.deleteHostname(ctx, log, hostname); err != nil {
					return ctrl.Result{}, err
				}
			}

			err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
				if err := r.reader().Get(ctx, req.NamespacedName, &route); err != nil {
					return err
				}
				controllerutil.RemoveFinalizer(&route, finalizerName)
				return r.Update(ctx, &route)
			})
			if err != nil {
				return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&route, finalizerName) {
		err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
			if err := r.reader().Get(ctx, req.NamespacedName, &route); err != nil {
				return err
			}
			controllerutil.AddFinalizer(&route, finalizerName)
			return r.Update(ctx, &route)
		})
		if err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to add finalizer: %w", err)
		}
		return ctrl.Result{}, nil
	}

	var managedHostnames []string
	if val, ok := route.Annotations[managedHostnamesAnnotation]; ok {
		_ = json.Unmarshal([]byte(val), &managedHostnames)
	}
	currentHostnames := routeHostnames(&route)

	// Delete hostnames that were removed from the route
	for _, oldHost := range managedHostnames {
		if !Contains(currentHostnames, oldHost) {
			log.Info("hostname removed from HTTPRoute, deleting DNS record", "hostname", oldHost)
			if err := r.deleteHostname(ctx, log, oldHost); err != nil {
				return ctrl.Result{}, err
			}
		}
	}

	// Zones are fetched at most once per reconcile in create-only mode.
	zones := make(map[string]*dns.Zone)
	for _, hostname := range currentHostnames {
		zone, ip, ok := r.Zones.LookupZone(hostname)
		if !ok {
			log.V(1).Info("no zone mapping found for hostname", "hostname", hostname)
			continue
		}
		name := strings.TrimSuffix(hostname, ".") + "."
		log.V(1).Info("resolved hostname to zone", "hostname", hostname, "zone", zone, "ip", ip)

		if !r.Upsert {
			z, cached := zones[zone]
			if !cached {
				var err error
				z, err = r.DNS.GetZone(ctx, zone)
				if err != nil {
					return ctrl.Result{}, fmt.Errorf("fetching zone %s: %w", zone, err)
				}
				zones[zone] = z
			}
			if hasRRSet(z, name, recordType) {
				log.V(1).Info("DNS record already exists, skipping", "hostname", hostname)
				continue
			}
		}

		var opts *dns.RRSetOptions
		if r.TTL > 0 {
			opts = &dns.RRSetOptions{TTL: r.TTL}
		}
		if err := r.DNS.CreateRecord(ctx, zone, recordType, name, []string{ip}, opts); err != nil {
			return ctrl.Result{}, fmt.Errorf("writing DNS record for %s: %w", hostname, err)
		}
		log.Info("wrote DNS record", "hostname", hostname, "zone", zone, "ip", ip)
	}

	// Update annotation with the current list of managed hostnames
	if !reflect.DeepEqual(managedHostnames, currentHostnames) {
		err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
			if err := r.reader().Get(ctx, req.NamespacedName, &route); err != nil {
				return err
			}
			if route.Annotations == nil {
				route.Annotations = make(map[string]string)
			}
			data, _ := json.Marshal(currentHostnames)
			route.Annotations[managedHostnamesAnnotation] = string(data)
			return r.Update(ctx, &route)
		})
		if err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to update managed-hostnames annotation: %w", err)
		}
	}

	return ctrl.Result{}, nil
}

// deleteHostname removes the A RRSet of hostname if its zone is mapped.
func (r *HTTPRouteReconciler) deleteHostname(ctx context.Context, log logr.Logger, hostname string) error {
	zone, _, ok := r.Zones.LookupZone(hostname)
	if !ok {
		log.V(1).Info("no zone mapping found for hostname, nothing to delete", "hostname", hostname)
		return nil
	}
	name := strings.TrimSuffix(hostname, ".") + "."
	if err := r.DNS.DeleteRecord(ctx, zone, recordType, name); err != nil {
		return fmt.Errorf("deleting DNS record for %s: %w", hostname, err)
	}
	log.Info("deleted DNS record", "hostname", hostname, "zone", zone)
	return nil
}

func (r *HTTPRouteReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&gatewayv1.HTTPRoute{}).
		WithEventFilter(predicate.Funcs{
			UpdateFunc: func(e event.UpdateEvent) bool {
				// Reconcile if the Spec (Generation) has changed.
				if e.ObjectOld.GetGeneration() != e.ObjectNew.GetGeneration() {
					return true
				}
				// Also reconcile if finalizers have changed (e.g. our finalizer was added).
				if len(e.ObjectOld.GetFinalizers()) != len(e.ObjectNew.GetFinalizers()) {
					return true
				}
				// Ignore status-only updates.
				return false
			},
		}).
		Complete(r)
}
