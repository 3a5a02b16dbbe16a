package dns

import (
	"strings"
)

// DefaultTTL is applied to REPLACE RRSets unless overridden.
const DefaultTTL = 86400

// ChangeType selects how the provider applies an RRSet in a PATCH.
type ChangeType string

const (
	ChangeReplace ChangeType = "REPLACE"
	ChangeDelete  ChangeType = "DELETE"
)

// Record is a single entry of an RRSet.
type Record struct {
	Content  string `json:"content"`
	Disabled bool   `json:"disabled"`
}

// RRSet is all records sharing a (name, type) pair. A REPLACE fully
// supersedes the existing set; a DELETE removes it and carries no records.
type RRSet struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	TTL        int        `json:"ttl,omitempty"`
	ChangeType ChangeType `json:"changetype,omitempty"`
	Records    []Record   `json:"records"`
}

// RRSetOptions override the REPLACE defaults. Zero fields keep the default.
type RRSetOptions struct {
	TTL        int
	ChangeType ChangeType
}

// NormalizeFQDN returns name with exactly one trailing dot.
func NormalizeFQDN(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return strings.TrimRight(name, ".") + ".", nil
}

// BuildReplace builds a REPLACE RRSet with one enabled record per content
// value, in the given order.
func BuildReplace(name, rrType string, contents []string, opts *RRSetOptions) (RRSet, error) {
	if name == "" {
		return RRSet{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if rrType == "" {
		return RRSet{}, &ValidationError{Field: "type", Reason: "must not be empty"}
	}
	if len(contents) == 0 {
		return RRSet{}, &ValidationError{Field: "content", Reason: "at least one value is required"}
	}

	records := make([]Record, 0, len(contents))
	for _, c := range contents {
		records = append(records, Record{Content: c, Disabled: false})
	}

	rrset := RRSet{
		Name:       name,
		Type:       rrType,
		TTL:        DefaultTTL,
		ChangeType: ChangeReplace,
		Records:    records,
	}
	if opts != nil {
		if opts.TTL != 0 {
			rrset.TTL = opts.TTL
		}
		if opts.ChangeType != "" {
			rrset.ChangeType = opts.ChangeType
		}
	}
	return rrset, nil
}

// BuildDelete builds a DELETE RRSet for (name, type).
func BuildDelete(name, rrType string) (RRSet, error) {
	if name == "" {
		return RRSet{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if rrType == "" {
		return RRSet{}, &ValidationError{Field: "type", Reason: "must not be empty"}
	}
	return RRSet{
		Name:       name,
		Type:       rrType,
		ChangeType: ChangeDelete,
		Records:    []Record{},
	}, nil
}

// QualifyName expands a record name relative to zone.
// e.g. ("www", "a.com") → "www.a.com."
// e.g. ("www.b.com.", "a.com") → "www.b.com."
// e.g. ("@", "a.com") → "a.com."
func QualifyName(name, zone string) (string, error) {
	apex, err := NormalizeFQDN(zone)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "" || name == "@":
		return apex, nil
	case strings.HasSuffix(name, "."):
		return name, nil
	}
	if apex == "." {
		return name + ".", nil
	}
	return name + "." + apex, nil
}

// RelativeName strips the zone suffix from an FQDN, returning "@" for the
// apex. Names outside the zone are returned unchanged.
func RelativeName(name, zone string) string {
	apex, err := NormalizeFQDN(zone)
	if err != nil {
		return name
	}
	if strings.EqualFold(name, apex) {
		return "@"
	}
	suffix := "." + apex
	if len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// RRSetFilter selects RRSets; zero fields match anything.
type RRSetFilter struct {
	Name string
	Type string
	TTL  int
}

// FilterRRSets returns the RRSets matching every set field of f, in order.
// Names are compared case-insensitively and without regard to a trailing dot.
func FilterRRSets(rrsets []RRSet, f RRSetFilter) []RRSet {
	out := []RRSet{}
	for _, rr := range rrsets {
		if f.Name != "" && !strings.EqualFold(strings.TrimSuffix(rr.Name, "."), strings.TrimSuffix(f.Name, ".")) {
			continue
		}
		if f.Type != "" && !strings.EqualFold(rr.Type, f.Type) {
			continue
		}
		if f.TTL != 0 && rr.TTL != f.TTL {
			continue
		}
		out = append(out, rr)
	}
	return out
}
