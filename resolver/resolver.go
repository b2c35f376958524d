// Package resolver performs DNS lookups of host addresses either through the
// system configured nameservers or through a DNS upstream.
package resolver

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	DefaultTimeout = 10 * time.Second
)

// Lookuper resolves host name into candidate addresses.
type Lookuper interface {
	LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error)
}

// Exchanger sends a single DNS query and returns the response.
type Exchanger interface {
	Exchange(ctx context.Context, m *dns.Msg) (*dns.Msg, error)
}

// Resolver asks A and AAAA records of a host through the Exchanger.
type Resolver struct {
	ex Exchanger
}

// type check
var _ Lookuper = (*Resolver)(nil)

// type check
var _ io.Closer = (*Resolver)(nil)

func NewWithExchanger(ex Exchanger) *Resolver {
	return &Resolver{
		ex: ex,
	}
}

// New creates a Resolver. Empty upstream address means nameservers from
// system resolver configuration.
func New(upstreamAddr string, timeout time.Duration) (*Resolver, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if upstreamAddr == "" {
		return NewSystem(timeout)
	}
	return NewUpstream(upstreamAddr, timeout)
}

// Close releases the exchanger if it holds resources, e.g. upstream
// connections.
func (r *Resolver) Close() error {
	if c, ok := r.ex.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LookupAddrs returns addresses of A answers followed by addresses of AAAA
// answers. Domain without records gives no addresses and no error.
func (r *Resolver) LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(strings.TrimSuffix(host, ".")); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}

	var (
		res      []netip.Addr
		failures int
		lastErr  error
	)
	for _, qType := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addrs, err := r.query(ctx, host, qType)
		if err != nil {
			failures++
			lastErr = err
			continue
		}
		res = append(res, addrs...)
	}

	if failures == 2 {
		return nil, fmt.Errorf("lookup %s failed: %w", host, lastErr)
	}
	return res, nil
}

func (r *Resolver) query(ctx context.Context, host string, qType uint16) ([]netip.Addr, error) {
	req := &dns.Msg{}
	req.SetQuestion(dns.Fqdn(host), qType)
	req.RecursionDesired = true

	resp, err := r.ex.Exchange(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s query error: %w", dns.TypeToString[qType], err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s query: empty response", dns.TypeToString[qType])
	}

	switch resp.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return nil, fmt.Errorf("%s query returned %s", dns.TypeToString[qType], dns.RcodeToString[resp.Rcode])
	}

	var res []netip.Addr
	for _, rr := range resp.Answer {
		var ip []byte
		switch a := rr.(type) {
		case *dns.A:
			ip = a.A
		case *dns.AAAA:
			ip = a.AAAA
		default:
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		res = append(res, addr.Unmap())
	}
	return res, nil
}

// Select picks the first IPv4 address if there is any, otherwise the first
// address of any family.
func Select(addrs []netip.Addr) (netip.Addr, bool) {
	for _, addr := range addrs {
		if addr.Is4() {
			return addr, true
		}
	}
	if len(addrs) > 0 {
		return addrs[0], true
	}
	return netip.Addr{}, false
}
