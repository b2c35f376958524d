// Package backend determines the single address all relayed connections are
// sent to. It runs once at startup.
package backend

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/miekg/dns"

	"github.com/Snawoot/tjproxy/logging"
	"github.com/Snawoot/tjproxy/resolver"
)

const (
	// TLSPort is the port of the trojan server in proxy mode. Port given in
	// configuration is ignored as the remote side always speaks TLS.
	TLSPort = 443

	DefaultResolveTimeout = 10 * time.Second
)

const (
	ErrMissingKeyMaterial errors.Error = "server mode require both cert and key file"
	ErrMissingHostname    errors.Error = "proxy mode require hostname"
	ErrBadAddress         errors.Error = "bad backend address"
	ErrResolveFailed      errors.Error = "resolve failed"
	ErrUnknownMode        errors.Error = "unknown mode"
	ErrNoLookuper         errors.Error = "no lookuper configured"
)

type Mode string

const (
	ModeServer Mode = "server"
	ModeProxy  Mode = "proxy"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeServer, ModeProxy:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q, valid options are server and proxy", ErrUnknownMode, s)
	}
}

type Config struct {
	Mode Mode

	// CertPath and KeyPath are only checked for presence: server mode
	// terminates TLS and can't run without them.
	CertPath string
	KeyPath  string

	// RemoteAddr is the literal address of the plaintext service decrypted
	// traffic goes to in server mode.
	RemoteAddr string

	// Hostname of the trojan server in proxy mode.
	Hostname string

	Lookuper resolver.Lookuper

	// Timeout bounds the hostname lookup.
	Timeout time.Duration
}

func (cfg *Config) populateDefaults() {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultResolveTimeout
	}
}

// Validate checks that settings required by the mode are present. It does no
// parsing or network activity.
func (cfg *Config) Validate() error {
	switch cfg.Mode {
	case ModeServer:
		if cfg.CertPath == "" || cfg.KeyPath == "" {
			return ErrMissingKeyMaterial
		}
	case ModeProxy:
		if cfg.Hostname == "" {
			return ErrMissingHostname
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
	return nil
}

// Endpoint is the resolved backend address along with the unspecified
// address of the same family.
type Endpoint struct {
	Addr        netip.AddrPort
	Placeholder netip.AddrPort
}

// Resolve computes the backend endpoint according to the mode.
func Resolve(ctx context.Context, cfg *Config) (Endpoint, error) {
	cfg.populateDefaults()
	if err := cfg.Validate(); err != nil {
		return Endpoint{}, err
	}

	var (
		addr netip.AddrPort
		err  error
	)
	if cfg.Mode == ModeServer {
		addr, err = resolveServer(cfg)
	} else {
		addr, err = resolveProxy(ctx, cfg)
	}
	if err != nil {
		return Endpoint{}, err
	}

	return Endpoint{
		Addr:        addr,
		Placeholder: Placeholder(addr),
	}, nil
}

func resolveServer(cfg *Config) (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(cfg.RemoteAddr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w %q: %w", ErrBadAddress, cfg.RemoteAddr, err)
	}
	return addr, nil
}

func resolveProxy(ctx context.Context, cfg *Config) (netip.AddrPort, error) {
	if cfg.Lookuper == nil {
		return netip.AddrPort{}, ErrNoLookuper
	}

	hostname := dns.Fqdn(cfg.Hostname)

	lookupCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	candidates, err := cfg.Lookuper.LookupAddrs(lookupCtx, hostname)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: host %s: %w", ErrResolveFailed, hostname, err)
	}

	ip, ok := resolver.Select(candidates)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("%w: host %s has no addresses", ErrResolveFailed, hostname)
	}

	addr := netip.AddrPortFrom(ip, TLSPort)
	logging.Infof("server address is %s", addr)
	return addr, nil
}

// Placeholder returns unspecified address with zero port of the same family
// as addr.
func Placeholder(addr netip.AddrPort) netip.AddrPort {
	if addr.Addr().Is4() {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
	}
	return netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
}
