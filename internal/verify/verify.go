// Package verify checks provisioned zones by resolving their names against
// name servers, many at a time, through the bulk scheduler.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/bulk"
	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

// DefaultLimit is the number of lookups allowed in flight by default.
const DefaultLimit = 9

// Check is a single lookup of Name at Server.
type Check struct {
	Zone   string
	Name   string
	Server string
}

func (c Check) String() string {
	return c.Name + "@" + c.Server
}

// Target pairs a name prefix with the server it is checked at. An empty
// prefix checks the zone apex.
type Target struct {
	Prefix string
	Server string
}

// DefaultTargets checks the apex at the first server and "www" at the
// second, falling back to the first when only one server is given.
func DefaultTargets(servers []string) []Target {
	if len(servers) == 0 {
		return nil
	}
	second := servers[0]
	if len(servers) > 1 {
		second = servers[1]
	}
	return []Target{
		{Prefix: "", Server: servers[0]},
		{Prefix: "www", Server: second},
	}
}

// Plan expands every zone against every target, zone by zone.
func Plan(zones []string, targets []Target) []Check {
	checks := make([]Check, 0, len(zones)*len(targets))
	for _, z := range zones {
		apex := strings.TrimSuffix(z, ".")
		for _, t := range targets {
			name := apex
			if t.Prefix != "" {
				name = t.Prefix + "." + apex
			}
			checks = append(checks, Check{Zone: z, Name: name, Server: t.Server})
		}
	}
	return checks
}

// Outcome is the result of one check.
type Outcome struct {
	Check    Check
	Address  string
	Err      error
	Duration time.Duration
}

// OK reports whether the check resolved.
func (o Outcome) OK() bool { return o.Err == nil }

// Report summarizes one or more passes over a set of checks.
type Report struct {
	Passes    int
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Elapsed   time.Duration
	// Interrupted is set when ctx ended before every pass ran. Checks
	// dropped by the cancellation are absent from Outcomes.
	Interrupted bool
}

// Rate is the number of checks completed per second.
func (r Report) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(len(r.Outcomes)) / r.Elapsed.Seconds()
}

// Verifier resolves checks with bounded concurrency.
type Verifier struct {
	Resolver Resolver
	Log      logr.Logger
	// Limit bounds lookups in flight; DefaultLimit when zero.
	Limit int
	// JobTimeout bounds each lookup; zero leaves them unbounded.
	JobTimeout time.Duration
	// Progress, when set, is called after every settled check with the
	// number settled so far out of checks*passes. Calls are serialized.
	Progress func(pass, done, total int)
}

// Jobs wraps each check into a bulk job that resolves it and logs the outcome.
func (v *Verifier) Jobs(checks []Check) []bulk.Job[string] {
	jobs := make([]bulk.Job[string], 0, len(checks))
	for _, c := range checks {
		jobs = append(jobs, func(ctx context.Context) (string, error) {
			addr, err := v.Resolver.Resolve(ctx, c.Name, c.Server)
			if err != nil {
				v.Log.Info("lookup failed", "name", c.Name, "server", c.Server, "error", err.Error())
				return "", err
			}
			v.Log.V(1).Info("lookup succeeded", "name", c.Name, "server", c.Server, "address", addr)
			return addr, nil
		})
	}
	return jobs
}

// Run resolves checks passes times, one pass after another, and returns the
// combined report. Individual lookup failures never fail the run.
//
// When ctx ends, Run stops before the next pass and returns the partial
// report, marked Interrupted, together with the context error. Checks that
// never ran or were cut short by the cancellation are left out of the report.
func (v *Verifier) Run(ctx context.Context, checks []Check, passes int) (*Report, error) {
	if v.Resolver == nil {
		return nil, fmt.Errorf("verify: no resolver configured")
	}
	if passes <= 0 {
		return nil, &dns.ValidationError{Field: "passes", Reason: fmt.Sprintf("must be positive, got %d", passes)}
	}
	limit := v.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	report := &Report{}
	start := time.Now()
	total := len(checks) * passes
	var (
		mu   sync.Mutex
		done int
	)
	for pass := 0; pass < passes; pass++ {
		if ctx.Err() != nil {
			break
		}
		opts := []bulk.Option{bulk.WithJobTimeout(v.JobTimeout)}
		if v.Progress != nil {
			n := pass + 1
			opts = append(opts, bulk.WithCompletion(func(int, bulk.State, error) {
				mu.Lock()
				defer mu.Unlock()
				done++
				v.Progress(n, done, total)
			}))
		}

		results, err := bulk.Run(ctx, v.Jobs(checks), limit, opts...)
		if err != nil {
			return nil, err
		}
		report.Passes++
		for _, r := range results {
			if cancelled(ctx, r) {
				continue
			}
			o := Outcome{Check: checks[r.Index], Address: r.Value, Err: r.Err, Duration: r.Duration()}
			if r.State == bulk.Succeeded {
				report.Succeeded++
			} else {
				report.Failed++
			}
			report.Outcomes = append(report.Outcomes, o)
		}
		v.Log.V(1).Info("pass completed", "pass", pass+1, "checks", len(checks))
	}
	report.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		report.Interrupted = true
		v.Log.Info("verification interrupted",
			"passes", report.Passes,
			"checks", len(report.Outcomes),
			"error", err.Error(),
		)
		return report, err
	}
	v.Log.Info("verification finished",
		"checks", len(report.Outcomes),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"elapsed", report.Elapsed.String(),
	)
	return report, nil
}

// cancelled reports whether r was dropped or cut short because ctx ended,
// as opposed to a lookup that failed on its own.
func cancelled[T any](ctx context.Context, r bulk.Result[T]) bool {
	if ctx.Err() == nil {
		return false
	}
	return r.Started.IsZero() || errors.Is(r.Err, ctx.Err())
}

// ZoneGetter is the read side of a zone client.
type ZoneGetter interface {
	GetZone(ctx context.Context, zone string) (*dns.Zone, error)
}

// ZoneJobs builds one job per zone that fetches it from the provider and
// returns how many RRSets it holds.
func ZoneJobs(client ZoneGetter, zones []string, log logr.Logger) []bulk.Job[int] {
	jobs := make([]bulk.Job[int], 0, len(zones))
	for _, zone := range zones {
		jobs = append(jobs, func(ctx context.Context) (int, error) {
			z, err := client.GetZone(ctx, zone)
			if err != nil {
				log.Info("zone fetch failed", "zone", zone, "error", err.Error())
				return 0, err
			}
			log.V(1).Info("zone fetched", "zone", z.Name, "rrsets", len(z.RRSets))
			return len(z.RRSets), nil
		})
	}
	return jobs
}
