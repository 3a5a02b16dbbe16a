package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ZoneMap maps zones to the address their hostnames should resolve to.
// Keys are zone names ("example.com") or wildcards ("*.example.com"); a
// wildcard matches names below the zone but not the apex.
type ZoneMap struct {
	entries map[string]string
}

// LoadZoneMap reads the zone map from the path in ZONE_MAP_PATH, defaulting
// to "configs/zone-map.yaml".
func LoadZoneMap() (*ZoneMap, error) {
	path := os.Getenv("ZONE_MAP_PATH")
	if path == "" {
		path = "configs/zone-map.yaml"
	}
	return LoadZoneMapFromPath(path)
}

// LoadZoneMapFromPath reads a YAML file mapping zones to addresses.
func LoadZoneMapFromPath(path string) (*ZoneMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading zone map file: %w", err)
	}

	raw := make(map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing zone map file: %w", err)
	}
	return NewZoneMap(raw), nil
}

// NewZoneMap builds a ZoneMap, ignoring case and trailing dots in keys.
func NewZoneMap(entries map[string]string) *ZoneMap {
	zm := &ZoneMap{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		zm.entries[strings.ToLower(strings.TrimSuffix(k, "."))] = v
	}
	return zm
}

// LookupZone finds the zone owning hostname and the address mapped to it.
// It walks up the labels of hostname; at each level an exact zone entry wins
// over a wildcard for the parent. The zone is returned dot-terminated.
//
//	"*.mydomain.com":     "10.0.0.1"
//	"mydomain.com":       "10.0.0.3"
//	"lab.mydomain.com":   "10.0.0.2"
//
// "app.mydomain.com"     → ("mydomain.com.", "10.0.0.1")
// "mydomain.com"         → ("mydomain.com.", "10.0.0.3")
// "lab.mydomain.com"     → ("lab.mydomain.com.", "10.0.0.2")
// "db.lab.mydomain.com"  → ("lab.mydomain.com.", "10.0.0.2")
func (zm *ZoneMap) LookupZone(hostname string) (zone, address string, ok bool) {
	h := strings.ToLower(strings.TrimSuffix(hostname, "."))
	for h != "" {
		if addr, found := zm.entries[h]; found {
			return h + ".", addr, true
		}
		idx := strings.Index(h, ".")
		if idx < 0 {
			break
		}
		parent := h[idx+1:]
		if addr, found := zm.entries["*."+parent]; found {
			return parent + ".", addr, true
		}
		h = parent
	}
	return "", "", false
}

// Zones returns the configured zone names, sorted and dot-terminated.
// A zone present both as an exact entry and a wildcard is listed once.
func (zm *ZoneMap) Zones() []string {
	seen := make(map[string]bool, len(zm.entries))
	zones := make([]string, 0, len(zm.entries))
	for k := range zm.entries {
		z := strings.TrimPrefix(k, "*.") + "."
		if !seen[z] {
			seen[z] = true
			zones = append(zones, z)
		}
	}
	sort.Strings(zones)
	return zones
}
