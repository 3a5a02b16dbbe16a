package controller

import (
	"strings"

	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

// Contains reports whether list holds s.
func Contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// routeHostnames returns the hostnames of route as plain strings, lowercased
// and without duplicates, in spec order.
func routeHostnames(route *gatewayv1.HTTPRoute) []string {
	hostnames := make([]string, 0, len(route.Spec.Hostnames))
	for _, h := range route.Spec.Hostnames {
		name := strings.ToLower(string(h))
		if !Contains(hostnames, name) {
			hostnames = append(hostnames, name)
		}
	}
	return hostnames
}

// hasRRSet reports whether zone already holds an RRSet for (name, rrType).
func hasRRSet(zone *dns.Zone, name, rrType string) bool {
	return len(dns.FilterRRSets(zone.RRSets, dns.RRSetFilter{Name: name, Type: rrType})) > 0
}
