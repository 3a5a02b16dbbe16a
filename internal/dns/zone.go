package dns

// ZoneKind is the replication mode of a zone.
type ZoneKind string

const (
	KindNative    ZoneKind = "Native"
	KindMaster    ZoneKind = "Master"
	KindSlave     ZoneKind = "Slave"
	KindForwarded ZoneKind = "Forwarded"
)

// Valid reports whether k is one of the known zone kinds.
func (k ZoneKind) Valid() bool {
	switch k {
	case KindNative, KindMaster, KindSlave, KindForwarded:
		return true
	}
	return false
}

// Zone is a zone as returned by the provider. RRSets is only populated when
// a single zone is fetched.
type Zone struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	URL         string   `json:"url,omitempty"`
	Kind        ZoneKind `json:"kind,omitempty"`
	Serial      int64    `json:"serial,omitempty"`
	Masters     []string `json:"masters,omitempty"`
	Nameservers []string `json:"nameservers,omitempty"`
	SOAEditAPI  string   `json:"soa_edit_api,omitempty"`
	RRSets      []RRSet  `json:"rrsets,omitempty"`
}

// ZoneParams carries extra zone-creation fields, e.g. "hostmaster" or
// "soa_edit_api". Keys are sent verbatim.
type ZoneParams map[string]any
