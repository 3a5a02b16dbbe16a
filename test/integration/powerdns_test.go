package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	logrtesting "github.com/go-logr/logr/testing"
	"github.com/google/go-cmp/cmp"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/bulk"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns/powerdns"
	_ "github.com/yuriy-kovalchuk/pdns-manager/internal/dns/providers"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/verify"
)

const (
	apiKey    = "test-key"
	apiPrefix = "/api/v1/servers/localhost/zones"
)

// fakePowerDNS is a minimal in-memory PowerDNS authoritative API for testing.
type fakePowerDNS struct {
	mu      sync.Mutex
	zones   map[string]*dns.Zone
	calls   []string // tracks endpoint calls in order
	patches []string // raw PATCH bodies in order

	// delay slows zone reads so concurrency can be observed.
	delay    time.Duration
	inflight int
	peak     int
}

func newFakePowerDNS() *fakePowerDNS {
	return &fakePowerDNS{zones: map[string]*dns.Zone{}}
}

func canonical(zone string) string {
	return strings.TrimSuffix(zone, ".") + "."
}

func (f *fakePowerDNS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	if r.Header.Get("X-API-Key") != apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	if !strings.HasPrefix(r.URL.Path, apiPrefix) {
		http.NotFound(w, r)
		return
	}

	rest := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, apiPrefix), "/")
	zone, action, _ := strings.Cut(rest, "/")
	switch {
	case zone == "" && r.Method == http.MethodGet:
		f.handleList(w)
	case zone == "" && r.Method == http.MethodPost:
		f.handleCreate(w, r)
	case action == "" && r.Method == http.MethodGet:
		f.handleGet(w, canonical(zone))
	case action == "" && r.Method == http.MethodDelete:
		f.handleDelete(w, canonical(zone))
	case action == "" && r.Method == http.MethodPatch:
		f.handlePatch(w, r, canonical(zone))
	case action == "export" && r.Method == http.MethodGet:
		f.handleExport(w, canonical(zone))
	case action == "notify" && r.Method == http.MethodPut:
		f.handleNotify(w, canonical(zone))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakePowerDNS) handleList(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := make([]dns.Zone, 0, len(f.zones))
	for _, z := range f.zones {
		list = append(list, dns.Zone{ID: z.ID, Name: z.Name, Kind: z.Kind, Serial: z.Serial})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	writeJSON(w, http.StatusOK, list)
}

func (f *fakePowerDNS) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	name, _ := body["name"].(string)
	if !strings.HasSuffix(name, ".") {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "zone name must be dot-terminated"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.zones[name]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Conflict"})
		return
	}

	kind, _ := body["kind"].(string)
	soaEdit, _ := body["soa_edit_api"].(string)
	z := &dns.Zone{
		ID:         name,
		Name:       name,
		Kind:       dns.ZoneKind(kind),
		Serial:     1,
		SOAEditAPI: soaEdit,
		RRSets: []dns.RRSet{{
			Name: name, Type: "SOA", TTL: 3600,
			Records: []dns.Record{{Content: "ns1.example. hostmaster.example. 1 10800 3600 604800 3600"}},
		}},
	}
	if ns, ok := body["nameservers"].([]interface{}); ok {
		nsSet := dns.RRSet{Name: name, Type: "NS", TTL: 3600}
		for _, n := range ns {
			z.Nameservers = append(z.Nameservers, n.(string))
			nsSet.Records = append(nsSet.Records, dns.Record{Content: n.(string)})
		}
		if len(nsSet.Records) > 0 {
			z.RRSets = append(z.RRSets, nsSet)
		}
	}
	f.zones[name] = z
	writeJSON(w, http.StatusCreated, z)
}

func (f *fakePowerDNS) handleGet(w http.ResponseWriter, zone string) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	delay := f.delay
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	z, ok := f.zones[zone]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Could not find domain '%s'", zone)})
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (f *fakePowerDNS) handleDelete(w http.ResponseWriter, zone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.zones[zone]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return
	}
	delete(f.zones, zone)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakePowerDNS) handlePatch(w http.ResponseWriter, r *http.Request, zone string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var body struct {
		RRSets []dns.RRSet `json:"rrsets"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, string(data))
	z, ok := f.zones[zone]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return
	}

	for _, change := range body.RRSets {
		kept := z.RRSets[:0]
		for _, rr := range z.RRSets {
			if !(strings.EqualFold(rr.Name, change.Name) && rr.Type == change.Type) {
				kept = append(kept, rr)
			}
		}
		z.RRSets = kept

		switch change.ChangeType {
		case dns.ChangeReplace:
			if change.TTL == 0 {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "TTL missing"})
				return
			}
			z.RRSets = append(z.RRSets, dns.RRSet{Name: change.Name, Type: change.Type, TTL: change.TTL, Records: change.Records})
		case dns.ChangeDelete:
		default:
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "unknown changetype"})
			return
		}
	}
	z.Serial++
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakePowerDNS) handleExport(w http.ResponseWriter, zone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zones[zone]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return
	}
	var b strings.Builder
	for _, rr := range z.RRSets {
		for _, rec := range rr.Records {
			fmt.Fprintf(&b, "%s\t%d\tIN\t%s\t%s\n", rr.Name, rr.TTL, rr.Type, rec.Content)
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=us-ascii")
	io.WriteString(w, b.String())
}

func (f *fakePowerDNS) handleNotify(w http.ResponseWriter, zone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.zones[zone]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "Notification queued"})
}

func (f *fakePowerDNS) rrset(zone, name, rrType string) *dns.RRSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zones[zone]
	if !ok {
		return nil
	}
	for i := range z.RRSets {
		if z.RRSets[i].Name == name && z.RRSets[i].Type == rrType {
			rr := z.RRSets[i]
			return &rr
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func newClient(t *testing.T, serverURL string) *powerdns.Client {
	t.Helper()
	c, err := powerdns.NewClient(logrtesting.NewTestLogger(t), powerdns.Options{
		BaseURL:     serverURL,
		APIKey:      apiKey,
		Nameservers: []string{"ns1.example.com", "ns2.example.com"},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestCreateZoneAndRecord(t *testing.T) {
	fake := newFakePowerDNS()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx := context.Background()

	z, err := c.CreateZone(ctx, "a.com", dns.ZoneParams{
		"hostmaster":   "hostmaster.ns1.example.com.",
		"soa_edit_api": "EPOCH",
	})
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	if z.Name != "a.com." || z.SOAEditAPI != "EPOCH" {
		t.Errorf("unexpected zone %+v", z)
	}

	if err := c.CreateRecord(ctx, "a.com", "A", "a.com.", []string{"10.0.0.1"}, nil); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	fake.mu.Lock()
	patch := fake.patches[0]
	fake.mu.Unlock()
	want := `{"rrsets":[{"name":"a.com.","type":"A","ttl":86400,"changetype":"REPLACE","records":[{"content":"10.0.0.1","disabled":false}]}]}`
	if patch != want {
		t.Errorf("unexpected PATCH body:\n got %s\nwant %s", patch, want)
	}

	rr := fake.rrset("a.com.", "a.com.", "A")
	if rr == nil {
		t.Fatal("expected A RRSet to be stored")
	}
	if diff := cmp.Diff([]dns.Record{{Content: "10.0.0.1"}}, rr.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceNotAppend(t *testing.T) {
	fake := newFakePowerDNS()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx := context.Background()

	if _, err := c.CreateZone(ctx, "a.com", nil); err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		if err := c.CreateRecord(ctx, "a.com", "A", "www.a.com.", []string{ip}, nil); err != nil {
			t.Fatalf("CreateRecord(%s): %v", ip, err)
		}
	}

	rr := fake.rrset("a.com.", "www.a.com.", "A")
	if rr == nil {
		t.Fatal("expected A RRSet to be stored")
	}
	if diff := cmp.Diff([]dns.Record{{Content: "10.0.0.2"}}, rr.Records); diff != "" {
		t.Errorf("expected the last write to win (-want +got):\n%s", diff)
	}

	// Multi-value sets go in one call.
	if err := c.CreateRecord(ctx, "a.com", "A", "www.a.com.", []string{"10.0.0.3", "10.0.0.4"}, &dns.RRSetOptions{TTL: 60}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	rr = fake.rrset("a.com.", "www.a.com.", "A")
	if rr.TTL != 60 || len(rr.Records) != 2 {
		t.Errorf("expected 2 records with ttl 60, got %+v", rr)
	}
}

func TestFullLifecycle(t *testing.T) {
	fake := newFakePowerDNS()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx := context.Background()

	// 1. Provision the domain: zone plus apex address.
	if _, err := c.ProvisionDomain(ctx, "b.org", "192.0.2.10", nil); err != nil {
		t.Fatalf("ProvisionDomain: %v", err)
	}

	zones, err := c.GetZones(ctx)
	if err != nil {
		t.Fatalf("GetZones: %v", err)
	}
	if len(zones) != 1 || zones[0].Name != "b.org." || zones[0].Kind != dns.KindMaster {
		t.Fatalf("unexpected zones %+v", zones)
	}

	// 2. Add an alias and read it back.
	if err := c.CreateAlias(ctx, "b.org", "www"); err != nil {
		t.Fatalf("CreateAlias: %v", err)
	}
	aliases, err := c.Aliases(ctx, "b.org")
	if err != nil {
		t.Fatalf("Aliases: %v", err)
	}
	if diff := cmp.Diff([]string{"www"}, aliases); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}

	// 3. Export and notify.
	text, err := c.ExportZone(ctx, "b.org.")
	if err != nil {
		t.Fatalf("ExportZone: %v", err)
	}
	if !strings.Contains(text, "b.org.\t86400\tIN\tA\t192.0.2.10") {
		t.Errorf("export is missing the apex A record:\n%s", text)
	}
	if result, err := c.NotifyZone(ctx, "b.org."); err != nil || result != "Notification queued" {
		t.Errorf("NotifyZone: %q %v", result, err)
	}

	// 4. Remove the alias, then the zone.
	if err := c.DeleteAlias(ctx, "b.org", "www"); err != nil {
		t.Fatalf("DeleteAlias: %v", err)
	}
	if rr := fake.rrset("b.org.", "www.b.org.", "CNAME"); rr != nil {
		t.Errorf("expected CNAME to be gone, got %+v", rr)
	}
	if err := c.DeleteZone(ctx, "b.org."); err != nil {
		t.Fatalf("DeleteZone: %v", err)
	}

	_, err = c.GetZone(ctx, "b.org.")
	var pe *dns.ProviderError
	if !errors.As(err, &pe) || pe.Status != http.StatusNotFound {
		t.Fatalf("expected 404 after deletion, got %v", err)
	}
}

func TestDuplicateZone(t *testing.T) {
	fake := newFakePowerDNS()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx := context.Background()

	if _, err := c.CreateZone(ctx, "a.com", nil); err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	_, err := c.CreateZone(ctx, "a.com.", nil)
	var pe *dns.ProviderError
	if !errors.As(err, &pe) || pe.Status != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate zone, got %v", err)
	}
	if !strings.Contains(pe.Body, "Conflict") {
		t.Errorf("expected the provider body to be kept, got %q", pe.Body)
	}
}

func TestWrongAPIKey(t *testing.T) {
	srv := httptest.NewServer(newFakePowerDNS())
	defer srv.Close()

	c, err := powerdns.NewClient(logr.Discard(), powerdns.Options{BaseURL: srv.URL, APIKey: "wrong"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.GetZones(context.Background())
	var pe *dns.ProviderError
	if !errors.As(err, &pe) || pe.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRegistryProvider(t *testing.T) {
	fake := newFakePowerDNS()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p, err := dns.NewProvider("powerdns", logr.Discard(), map[string]string{
		"base_url": srv.URL,
		"api_key":  apiKey,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	c := p.(*powerdns.Client)
	if _, err := c.CreateZone(context.Background(), "c.net", nil); err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	if err := p.CreateRecord(context.Background(), "c.net", "TXT", "c.net.", []string{`"v=spf1 -all"`}, nil); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	z, err := p.GetZone(context.Background(), "c.net")
	if err != nil {
		t.Fatalf("GetZone: %v", err)
	}
	if got := dns.FilterRRSets(z.RRSets, dns.RRSetFilter{Type: "TXT"}); len(got) != 1 {
		t.Errorf("expected one TXT RRSet, got %+v", got)
	}
}

func TestBulkZoneReads(t *testing.T) {
	fake := newFakePowerDNS()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx := context.Background()

	var zones []string
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("zone%02d.test.", i)
		if _, err := c.CreateZone(ctx, name, nil); err != nil {
			t.Fatalf("CreateZone(%s): %v", name, err)
		}
		zones = append(zones, name)
	}
	zones = append(zones, "missing.test.")

	fake.mu.Lock()
	fake.delay = 10 * time.Millisecond
	fake.mu.Unlock()

	results, err := bulk.Run(ctx, verify.ZoneJobs(c, zones, logr.Discard()), 4)
	if err != nil {
		t.Fatalf("bulk.Run: %v", err)
	}

	if n := bulk.Count(results, bulk.Succeeded); n != 12 {
		t.Errorf("expected 12 zones fetched, got %d", n)
	}
	last := results[len(results)-1]
	if last.State != bulk.Failed || !errors.Is(last.Err, dns.ErrProvider) {
		t.Errorf("expected missing zone to fail with a provider error, got %s %v", last.State, last.Err)
	}
	for _, r := range results[:12] {
		// SOA plus NS.
		if r.Value != 2 {
			t.Errorf("zone %d: expected 2 rrsets, got %d", r.Index, r.Value)
		}
	}

	fake.mu.Lock()
	peak := fake.peak
	fake.mu.Unlock()
	if peak > 4 {
		t.Errorf("expected at most 4 concurrent zone reads, saw %d", peak)
	}
}
