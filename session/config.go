package session

import (
	"time"

	"github.com/Snawoot/tjproxy/backend"
)

const (
	DefaultLocalAddr  = "0.0.0.0:443"
	DefaultRemoteAddr = "127.0.0.1:80"
	DefaultMarker     = 255

	// DefaultDNSCacheTime and DefaultIdleTimeout are the command line
	// defaults. Setup takes zero values literally.
	DefaultDNSCacheTime = 300
	DefaultIdleTimeout  = 300
)

// Options are already parsed settings the session is built from. Logging is
// set up by the caller before Setup.
type Options struct {
	// Mode is either "server" or "proxy". Empty means server.
	Mode string

	CertPath string
	KeyPath  string

	// LocalAddr is the listen address for incoming connections.
	LocalAddr string

	// RemoteAddr is the plaintext backend in server mode.
	RemoteAddr string

	// Passwords accepted from clients. The first one is also used for
	// outbound negotiation. At least one is required.
	Passwords []string

	// DNSCacheTime is the lifetime of DNS cache entries in seconds. Zero
	// makes entries expire immediately.
	DNSCacheTime uint64

	// Marker is an opaque socket mark handed to the networking side.
	Marker uint8

	// Hostname of the trojan server. Required in proxy mode.
	Hostname string

	// IdleTimeout in seconds before closing an inactive connection. Zero
	// is passed on as is.
	IdleTimeout uint64

	// DNSUpstream overrides system nameservers. The format is the one
	// accepted by resolver.NewUpstream.
	DNSUpstream string

	ResolveTimeout time.Duration
}

func (o *Options) populateDefaults() {
	if o.Mode == "" {
		o.Mode = string(backend.ModeServer)
	}
	if o.LocalAddr == "" {
		o.LocalAddr = DefaultLocalAddr
	}
	if o.RemoteAddr == "" {
		o.RemoteAddr = DefaultRemoteAddr
	}
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = backend.DefaultResolveTimeout
	}
}
