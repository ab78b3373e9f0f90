// internal/dnscheck/dnscheck.go
package dnscheck

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single lookup. Domains that cannot answer an A
// query inside this budget are not worth a browser launch.
const DefaultTimeout = 1 * time.Second

// LookupFunc resolves a host to IP addresses. The indirection exists so
// the session controller can be tested without real DNS traffic.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Checker performs the pre-browser DNS gate: a bounded A-record lookup
// whose only outputs are "these addresses" or "no addresses". Resolution
// failures of any kind (NXDOMAIN, no answer, timeout) collapse into the
// empty result rather than an error.
type Checker struct {
	timeout time.Duration
	lookup  LookupFunc
}

// New creates a Checker with the given lookup budget. A non-positive
// timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		timeout: timeout,
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		},
	}
}

// NewWithLookup creates a Checker backed by a custom lookup function.
func NewWithLookup(timeout time.Duration, lookup LookupFunc) *Checker {
	c := New(timeout)
	if lookup != nil {
		c.lookup = lookup
	}
	return c
}

// Resolve returns the A records for domain, or nil when the domain does
// not resolve within the lookup budget.
func (c *Checker) Resolve(ctx context.Context, domain string) []string {
	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ips, err := c.lookup(lookupCtx, domain)
	if err != nil {
		log.Debug().Str("domain", domain).Err(err).Msg("DNS resolution failed")
		return nil
	}
	if len(ips) == 0 {
		return nil
	}

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, ip.String())
	}
	return addrs
}
