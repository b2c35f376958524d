package resolver

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/AdguardTeam/dnsproxy/upstream"
	"github.com/miekg/dns"
)

const resolvConfPath = "/etc/resolv.conf"

// clientExchanger asks nameservers over UDP and repeats truncated queries
// over TCP.
type clientExchanger struct {
	client    *dns.Client
	tcpClient *dns.Client
	servers   []string
}

// NewSystem creates a Resolver which queries nameservers listed in the system
// resolver configuration, in order.
func NewSystem(timeout time.Duration) (*Resolver, error) {
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil {
		return nil, fmt.Errorf("can't read resolver configuration: %w", err)
	}
	return NewWithExchanger(newClientExchanger(cfg, timeout)), nil
}

func newClientExchanger(cfg *dns.ClientConfig, timeout time.Duration) *clientExchanger {
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return &clientExchanger{
		client: &dns.Client{
			Timeout: timeout,
		},
		tcpClient: &dns.Client{
			Net:     "tcp",
			Timeout: timeout,
		},
		servers: servers,
	}
}

func (e *clientExchanger) Exchange(ctx context.Context, m *dns.Msg) (*dns.Msg, error) {
	if len(e.servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured")
	}

	var lastErr error
	for _, server := range e.servers {
		resp, _, err := e.client.ExchangeContext(ctx, m, server)
		if err == nil && resp.Truncated {
			resp, _, err = e.tcpClient.ExchangeContext(ctx, m, server)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = fmt.Errorf("nameserver %s: %w", server, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

type upstreamExchanger struct {
	u upstream.Upstream
}

// type check
var _ io.Closer = (*upstreamExchanger)(nil)

// NewUpstream creates a Resolver which forwards queries to DNS upstream. The
// format of addr is the one accepted by [upstream.AddressToUpstream], e.g.
// "1.1.1.1", "tls://dns.google" or "https://dns.quad9.net/dns-query".
func NewUpstream(addr string, timeout time.Duration) (*Resolver, error) {
	u, err := upstream.AddressToUpstream(addr, &upstream.Options{
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse upstream %s: %w", addr, err)
	}
	return NewWithExchanger(&upstreamExchanger{u: u}), nil
}

type exchangeResult struct {
	resp *dns.Msg
	err  error
}

// Exchange returns on ctx cancellation while the upstream query keeps going
// until upstream Timeout ends it. The buffered channel lets that goroutine
// exit without a reader.
func (e *upstreamExchanger) Exchange(ctx context.Context, m *dns.Msg) (*dns.Msg, error) {
	resCh := make(chan exchangeResult, 1)
	go func() {
		resp, err := e.u.Exchange(m)
		resCh <- exchangeResult{resp, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("upstream %s: %w", e.u.Address(), res.err)
		}
		return res.resp, nil
	}
}

func (e *upstreamExchanger) Close() error {
	return e.u.Close()
}
