package verify

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

// Resolver looks up the address of name at a specific name server.
type Resolver interface {
	Resolve(ctx context.Context, name, server string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, name, server string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, name, server string) (string, error) {
	return f(ctx, name, server)
}

// DNSResolver queries a name server directly for A records.
type DNSResolver struct {
	// Net is "udp" (default) or "tcp".
	Net     string
	Timeout time.Duration
}

// Resolve asks server for the A record of name and returns the first
// address in the answer. server may omit the port, 53 is assumed.
func (r *DNSResolver) Resolve(ctx context.Context, name, server string) (string, error) {
	fqdn, err := dns.NormalizeFQDN(name)
	if err != nil {
		return "", err
	}
	if server == "" {
		return "", &dns.ValidationError{Field: "server", Reason: "must not be empty"}
	}
	addr := serverAddr(server)

	c := &mdns.Client{Net: r.Net, Timeout: r.Timeout}
	msg := new(mdns.Msg)
	msg.SetQuestion(fqdn, mdns.TypeA)
	msg.RecursionDesired = true

	in, _, err := c.ExchangeContext(ctx, msg, addr)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", &dns.NetworkError{Method: "QUERY", URL: addr, Err: err}
		}
		return "", &dns.ResolutionError{Name: fqdn, Server: server, Reason: "exchange failed", Err: err}
	}
	if in.Rcode != mdns.RcodeSuccess {
		return "", &dns.ResolutionError{Name: fqdn, Server: server, Reason: mdns.RcodeToString[in.Rcode]}
	}
	for _, rr := range in.Answer {
		if a, ok := rr.(*mdns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", &dns.ResolutionError{Name: fqdn, Server: server, Reason: "no A record in answer"}
}

// serverAddr appends the default DNS port to server unless it carries one.
// IPv6 literals are accepted with or without brackets.
func serverAddr(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	host := strings.TrimSuffix(strings.TrimPrefix(server, "["), "]")
	return net.JoinHostPort(host, "53")
}
