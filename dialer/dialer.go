// Package dialer opens outbound connections for relayed sessions. Domain
// targets are resolved through the DNS cache and sockets are bound and marked
// the way the session was set up.
package dialer

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/Snawoot/tjproxy/logging"
)

const (
	ErrNoResolver      errors.Error = "domain target requires resolver"
	ErrMarkUnsupported errors.Error = "socket marks are not supported on this platform"
)

type Dialer struct {
	backend     netip.AddrPort
	localAddr   netip.AddrPort
	dialTimeout time.Duration
	resolver    DomainResolver
	control     func(network, address string, conn syscall.RawConn) error
}

func New(cfg *Config) *Dialer {
	cfg.populateDefaults()

	d := &Dialer{
		backend:     cfg.Backend,
		localAddr:   cfg.LocalAddr,
		dialTimeout: cfg.DialTimeout,
		resolver:    cfg.Resolver,
	}
	if cfg.Marker != 0 {
		d.control = markControlFunc(cfg.Marker)
	}
	return d
}

// DialContext connects to address, which is a "host:port" pair where host is
// either a literal IP address or a domain name.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("bad address %q: %w", address, err)
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad port in address %q: %w", address, err)
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		if d.resolver == nil {
			return nil, ErrNoResolver
		}
		ip, err = d.resolver.Resolve(ctx, host)
		if err != nil {
			return nil, err
		}
	}

	target := netip.AddrPortFrom(ip.Unmap(), uint16(portNum))
	logging.Debugf("dial %s %s(%s)", network, address, target)
	return d.dial(ctx, network, target)
}

// DialBackend connects to the session backend over TCP.
func (d *Dialer) DialBackend(ctx context.Context) (net.Conn, error) {
	if !d.backend.IsValid() {
		return nil, fmt.Errorf("backend address is not set")
	}
	return d.dial(ctx, "tcp", d.backend)
}

func (d *Dialer) dial(ctx context.Context, network string, target netip.AddrPort) (net.Conn, error) {
	nd := &net.Dialer{
		Timeout: d.dialTimeout,
		Control: d.control,
	}
	if d.localAddr.IsValid() && d.localAddr.Addr().Is4() == target.Addr().Is4() {
		switch network {
		case "tcp", "tcp4", "tcp6":
			nd.LocalAddr = net.TCPAddrFromAddrPort(d.localAddr)
		case "udp", "udp4", "udp6":
			nd.LocalAddr = net.UDPAddrFromAddrPort(d.localAddr)
		}
	}

	conn, err := nd.DialContext(ctx, network, target.String())
	if err != nil {
		return nil, fmt.Errorf("remote dial failed: %w", err)
	}
	return conn, nil
}
