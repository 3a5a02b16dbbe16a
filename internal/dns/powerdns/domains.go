package powerdns

import (
	"context"
	"fmt"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

// ProvisionDomain creates zone and points its apex A RRSet at address.
func (c *Client) ProvisionDomain(ctx context.Context, zone, address string, params dns.ZoneParams) (*dns.Zone, error) {
	z, err := c.CreateZone(ctx, zone, params)
	if err != nil {
		return nil, fmt.Errorf("creating zone %s: %w", zone, err)
	}
	if err := c.UpdateAddress(ctx, zone, address); err != nil {
		return nil, err
	}
	return z, nil
}

// UpdateAddress replaces the apex A RRSet of zone with address.
func (c *Client) UpdateAddress(ctx context.Context, zone, address string) error {
	apex, err := dns.NormalizeFQDN(zone)
	if err != nil {
		return err
	}
	if err := c.CreateRecord(ctx, zone, "A", apex, []string{address}, nil); err != nil {
		return fmt.Errorf("setting address of %s: %w", apex, err)
	}
	return nil
}

// Records returns the RRSets of zone that match f.
func (c *Client) Records(ctx context.Context, zone string, f dns.RRSetFilter) ([]dns.RRSet, error) {
	z, err := c.GetZone(ctx, zone)
	if err != nil {
		return nil, err
	}
	return dns.FilterRRSets(z.RRSets, f), nil
}

// CreateAlias points alias at the zone apex with a CNAME. A relative alias
// ("www") is expanded inside zone; a dot-terminated one is used as is.
func (c *Client) CreateAlias(ctx context.Context, zone, alias string) error {
	name, err := dns.QualifyName(alias, zone)
	if err != nil {
		return err
	}
	apex, err := dns.NormalizeFQDN(zone)
	if err != nil {
		return err
	}
	return c.CreateRecord(ctx, zone, "CNAME", name, []string{apex}, nil)
}

// DeleteAlias removes the CNAME RRSet created by CreateAlias.
func (c *Client) DeleteAlias(ctx context.Context, zone, alias string) error {
	name, err := dns.QualifyName(alias, zone)
	if err != nil {
		return err
	}
	return c.DeleteRecord(ctx, zone, "CNAME", name)
}

// Aliases lists the CNAME names of zone, relative to the zone where possible.
func (c *Client) Aliases(ctx context.Context, zone string) ([]string, error) {
	rrsets, err := c.Records(ctx, zone, dns.RRSetFilter{Type: "CNAME"})
	if err != nil {
		return nil, err
	}
	aliases := make([]string, 0, len(rrsets))
	for _, rr := range rrsets {
		aliases = append(aliases, dns.RelativeName(rr.Name, zone))
	}
	return aliases, nil
}
