package powerdns

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

const zoneWithAliases = `{
	"name": "a.com.",
	"rrsets": [
		{"name": "a.com.", "type": "A", "ttl": 86400, "records": [{"content": "10.0.0.1", "disabled": false}]},
		{"name": "www.a.com.", "type": "CNAME", "ttl": 86400, "records": [{"content": "a.com.", "disabled": false}]},
		{"name": "shop.a.com.", "type": "CNAME", "ttl": 300, "records": [{"content": "a.com.", "disabled": false}]}
	]
}`

func TestProvisionDomain(t *testing.T) {
	rec := &recorder{status: http.StatusCreated, reply: `{"name":"a.com."}`}
	c := newTestClient(t, rec, nil)

	z, err := c.ProvisionDomain(context.Background(), "a.com", "10.0.0.1", nil)
	if err != nil {
		t.Fatalf("ProvisionDomain: %v", err)
	}
	if z.Name != "a.com." {
		t.Errorf("unexpected zone %q", z.Name)
	}
	if rec.count() != 2 {
		t.Fatalf("expected 2 requests, got %d", rec.count())
	}
	if rec.nth(t, 0).Method != http.MethodPost {
		t.Errorf("expected zone creation first, got %s", rec.nth(t, 0).Method)
	}
	assertJSON(t, `{"rrsets":[{
		"name": "a.com.", "type": "A", "ttl": 86400, "changetype": "REPLACE",
		"records": [{"content": "10.0.0.1", "disabled": false}]
	}]}`, rec.nth(t, 1).Body)
}

func TestProvisionDomain_StopsOnCreateFailure(t *testing.T) {
	rec := &recorder{status: http.StatusConflict, reply: `{"error":"Conflict"}`}
	c := newTestClient(t, rec, nil)

	if _, err := c.ProvisionDomain(context.Background(), "a.com", "10.0.0.1", nil); err == nil {
		t.Fatal("expected error, got nil")
	}
	if rec.count() != 1 {
		t.Errorf("expected no address update after a failed create, got %d requests", rec.count())
	}
}

func TestCreateAlias(t *testing.T) {
	tests := []struct {
		alias string
		want  string
	}{
		{"www", "www.a.com."},
		{"shop.a.com.", "shop.a.com."},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			rec := &recorder{status: http.StatusNoContent}
			c := newTestClient(t, rec, nil)

			if err := c.CreateAlias(context.Background(), "a.com", tt.alias); err != nil {
				t.Fatalf("CreateAlias: %v", err)
			}
			assertJSON(t, `{"rrsets":[{
				"name": "`+tt.want+`", "type": "CNAME", "ttl": 86400, "changetype": "REPLACE",
				"records": [{"content": "a.com.", "disabled": false}]
			}]}`, rec.last(t).Body)
		})
	}
}

func TestDeleteAlias(t *testing.T) {
	rec := &recorder{status: http.StatusNoContent}
	c := newTestClient(t, rec, nil)

	if err := c.DeleteAlias(context.Background(), "a.com.", "www"); err != nil {
		t.Fatalf("DeleteAlias: %v", err)
	}
	assertJSON(t, `{"rrsets":[{
		"name": "www.a.com.", "type": "CNAME", "changetype": "DELETE", "records": []
	}]}`, rec.last(t).Body)
}

func TestAliases(t *testing.T) {
	rec := &recorder{reply: zoneWithAliases}
	c := newTestClient(t, rec, nil)

	got, err := c.Aliases(context.Background(), "a.com.")
	if err != nil {
		t.Fatalf("Aliases: %v", err)
	}
	if diff := cmp.Diff([]string{"www", "shop"}, got); diff != "" {
		t.Errorf("aliases mismatch (-want +got):\n%s", diff)
	}
}

func TestRecords_Filter(t *testing.T) {
	rec := &recorder{reply: zoneWithAliases}
	c := newTestClient(t, rec, nil)

	got, err := c.Records(context.Background(), "a.com.", dns.RRSetFilter{Type: "cname", TTL: 300})
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 1 || got[0].Name != "shop.a.com." {
		t.Errorf("unexpected records %+v", got)
	}
}
