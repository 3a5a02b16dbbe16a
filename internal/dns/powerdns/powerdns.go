package powerdns

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

func init() {
	dns.Register("powerdns", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

const (
	defaultPort   = 8081
	defaultServer = "localhost"
)

// Options configures a Client. Only APIKey and one of Host or BaseURL are
// required.
type Options struct {
	Host   string
	Port   int
	APIKey string
	// Server is the provider-local server id, "localhost" for a standalone
	// authoritative server.
	Server      string
	Kind        dns.ZoneKind
	Nameservers []string
	// BaseURL replaces the http://host:port prefix, e.g. for TLS fronted APIs.
	BaseURL string
	// Timeout bounds every request attempt. Zero disables it.
	Timeout time.Duration
	// Retries is the number of extra attempts after a network failure or a
	// 5xx response. Zero disables retries.
	Retries       int
	SkipTLSVerify bool
	HTTPClient    *http.Client
}

// Client talks to the PowerDNS HTTP API of a single server. It is safe for
// concurrent use; writes to the same RRSet from different goroutines are not
// serialized and the last one applied by the server wins.
type Client struct {
	baseURL     string
	apiKey      string
	kind        dns.ZoneKind
	nameservers []string
	timeout     time.Duration
	backoff     *wait.Backoff
	client      *http.Client
	log         logr.Logger
}

// New creates a PowerDNS client from the given settings map.
// Required settings: api_key and host (or base_url).
// Optional settings: port (default 8081), server (default localhost),
// kind (default Master), nameservers (comma separated, default "<host>."),
// timeout (Go duration), retries, skip_tls_verify.
func New(log logr.Logger, settings map[string]string) (*Client, error) {
	opts := Options{
		Host:          settings["host"],
		APIKey:        settings["api_key"],
		Server:        settings["server"],
		Kind:          dns.ZoneKind(settings["kind"]),
		BaseURL:       settings["base_url"],
		SkipTLSVerify: settings["skip_tls_verify"] == "true",
	}

	if v := settings["port"]; v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("powerdns: invalid port %q: %w", v, err)
		}
		opts.Port = port
	}
	if v := settings["nameservers"]; v != "" {
		for _, ns := range strings.Split(v, ",") {
			if ns = strings.TrimSpace(ns); ns != "" {
				opts.Nameservers = append(opts.Nameservers, ns)
			}
		}
	}
	if v := settings["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("powerdns: invalid timeout %q: %w", v, err)
		}
		opts.Timeout = d
	}
	if v := settings["retries"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("powerdns: invalid retries %q: %w", v, err)
		}
		opts.Retries = n
	}

	return NewClient(log, opts)
}

// NewClient creates a PowerDNS client from opts.
func NewClient(log logr.Logger, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("powerdns: missing required setting 'api_key'")
	}
	if opts.Host == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("powerdns: missing required setting 'host'")
	}
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.Server == "" {
		opts.Server = defaultServer
	}
	if opts.Kind == "" {
		opts.Kind = dns.KindMaster
	}
	if !opts.Kind.Valid() {
		return nil, fmt.Errorf("powerdns: unknown zone kind %q", opts.Kind)
	}
	if opts.Retries < 0 {
		return nil, fmt.Errorf("powerdns: retries must not be negative, got %d", opts.Retries)
	}

	nameservers := make([]string, 0, len(opts.Nameservers))
	for _, ns := range opts.Nameservers {
		fqdn, err := dns.NormalizeFQDN(ns)
		if err != nil {
			return nil, fmt.Errorf("powerdns: nameserver: %w", err)
		}
		nameservers = append(nameservers, fqdn)
	}
	if len(nameservers) == 0 && opts.Host != "" {
		nameservers = []string{strings.TrimRight(opts.Host, ".") + "."}
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", opts.Host, opts.Port)
	}
	base += "/api/v1/servers/" + url.PathEscape(opts.Server)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.SkipTLSVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Transport: transport}
	}

	c := &Client{
		baseURL:     base,
		apiKey:      opts.APIKey,
		kind:        opts.Kind,
		nameservers: nameservers,
		timeout:     opts.Timeout,
		client:      httpClient,
		log:         log,
	}
	if opts.Retries > 0 {
		c.backoff = &wait.Backoff{
			Steps:    opts.Retries + 1,
			Duration: 200 * time.Millisecond,
			Factor:   2,
			Jitter:   0.1,
		}
	}
	return c, nil
}

// BaseURL returns the server-scoped API prefix requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// response is a fully read provider answer.
type response struct {
	header http.Header
	body   []byte
}

// doRequest sends a request and returns the raw response, retrying when the
// client was configured to.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("powerdns: marshal request body: %w", err)
		}
		payload = data
	}

	if c.backoff == nil {
		return c.attempt(ctx, method, path, payload)
	}

	// Only the per-attempt timeout is retried; once ctx itself is done the
	// last error is returned without further attempts or backoff sleeps.
	shouldRetry := func(err error) bool {
		return ctx.Err() == nil && retriable(err)
	}

	var resp *response
	err := retry.OnError(*c.backoff, shouldRetry, func() error {
		if err := ctx.Err(); err != nil {
			return &dns.NetworkError{Method: method, URL: c.baseURL + path, Err: err}
		}
		r, err := c.attempt(ctx, method, path, payload)
		if err != nil {
			c.log.V(1).Info("request attempt failed", "method", method, "path", path, "error", err.Error())
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// retriable reports whether a failed attempt may succeed when repeated.
func retriable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, dns.ErrNetwork) {
		return true
	}
	var pe *dns.ProviderError
	return errors.As(err, &pe) && pe.Status >= 500
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (*response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("powerdns: build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.V(1).Info("sending request", "method", method, "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &dns.NetworkError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dns.NetworkError{Method: method, URL: target, Err: err}
	}
	c.log.V(1).Info("received response", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode >= 300 {
		return nil, &dns.ProviderError{Status: resp.StatusCode, Body: string(data)}
	}
	return &response{header: resp.Header, body: data}, nil
}

// query sends a request and decodes a JSON answer into out, if given.
func (c *Client) query(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("powerdns: decode %s %s response: %w", method, path, err)
	}
	return nil
}

func zonePath(zone string) string {
	return "/zones/" + url.PathEscape(zone)
}

// GetZones lists all zones of the server.
func (c *Client) GetZones(ctx context.Context) ([]dns.Zone, error) {
	var zones []dns.Zone
	if err := c.query(ctx, http.MethodGet, "/zones", nil, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// GetZone fetches a single zone including its RRSets.
func (c *Client) GetZone(ctx context.Context, zone string) (*dns.Zone, error) {
	var z dns.Zone
	if err := c.query(ctx, http.MethodGet, zonePath(zone), nil, &z); err != nil {
		return nil, err
	}
	return &z, nil
}

// CreateZone creates zone with the client's default kind and nameservers.
// Entries in params are merged on top and win on conflict. The client does
// no duplicate detection; creating an existing zone surfaces the provider's
// conflict as a ProviderError.
func (c *Client) CreateZone(ctx context.Context, zone string, params dns.ZoneParams) (*dns.Zone, error) {
	name, err := dns.NormalizeFQDN(zone)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"name":        name,
		"kind":        c.kind,
		"nameservers": c.nameservers,
	}
	for k, v := range params {
		body[k] = v
	}

	var z dns.Zone
	if err := c.query(ctx, http.MethodPost, "/zones", body, &z); err != nil {
		return nil, err
	}
	return &z, nil
}

// DeleteZone removes the whole zone.
func (c *Client) DeleteZone(ctx context.Context, zone string) error {
	return c.query(ctx, http.MethodDelete, zonePath(zone), nil, nil)
}

// ExportZone returns the zone in BIND format. Both the plain text answer and
// the older {"zone": "..."} JSON envelope are accepted.
func (c *Client) ExportZone(ctx context.Context, zone string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, zonePath(zone)+"/export", nil)
	if err != nil {
		return "", err
	}
	if strings.Contains(resp.header.Get("Content-Type"), "json") {
		var envelope struct {
			Zone string `json:"zone"`
		}
		if err := json.Unmarshal(resp.body, &envelope); err != nil {
			return "", fmt.Errorf("powerdns: decode export response: %w", err)
		}
		return envelope.Zone, nil
	}
	return string(resp.body), nil
}

// NotifyZone asks the server to send a DNS NOTIFY to all slaves of zone.
func (c *Client) NotifyZone(ctx context.Context, zone string) (string, error) {
	var result struct {
		Result string `json:"result"`
	}
	if err := c.query(ctx, http.MethodPut, zonePath(zone)+"/notify", nil, &result); err != nil {
		return "", err
	}
	return result.Result, nil
}

// Patch applies rrsets to zone in one PATCH request.
func (c *Client) Patch(ctx context.Context, zone string, rrsets ...dns.RRSet) error {
	if len(rrsets) == 0 {
		return &dns.ValidationError{Field: "rrsets", Reason: "at least one RRSet is required"}
	}
	body := struct {
		RRSets []dns.RRSet `json:"rrsets"`
	}{RRSets: rrsets}
	return c.query(ctx, http.MethodPatch, zonePath(zone), body, nil)
}

// CreateRecord replaces the RRSet for (name, rrType) in zone with contents.
// It is not additive: a later call with different contents supersedes the
// earlier one, so multi-value records must be passed in a single call.
func (c *Client) CreateRecord(ctx context.Context, zone, rrType, name string, contents []string, opts *dns.RRSetOptions) error {
	rrset, err := dns.BuildReplace(name, rrType, contents, opts)
	if err != nil {
		return err
	}
	c.log.V(1).Info("replacing rrset", "zone", zone, "name", name, "type", rrType, "records", len(contents))
	return c.Patch(ctx, zone, rrset)
}

// DeleteRecord removes the whole RRSet for (name, rrType) from zone.
func (c *Client) DeleteRecord(ctx context.Context, zone, rrType, name string) error {
	rrset, err := dns.BuildDelete(name, rrType)
	if err != nil {
		return err
	}
	c.log.V(1).Info("deleting rrset", "zone", zone, "name", name, "type", rrType)
	return c.Patch(ctx, zone, rrset)
}
