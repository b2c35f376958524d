package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/Snawoot/tjproxy/dialer"
	"github.com/Snawoot/tjproxy/logging"
	"github.com/Snawoot/tjproxy/session"
)

const (
	ProgName = "tjproxy"
)

var (
	version = "undefined"
)

type options struct {
	Cert           string        `short:"c" long:"cert" description:"certificate file path"`
	Key            string        `short:"k" long:"key" description:"private key file path"`
	LogFile        string        `short:"l" long:"log-file" description:"log file path"`
	LocalAddr      string        `short:"a" long:"local-addr" default:"0.0.0.0:443" description:"listen address for server"`
	RemoteAddr     string        `short:"A" long:"remote-addr" default:"127.0.0.1:80" description:"http backend server address"`
	Passwords      []string      `short:"p" long:"password" description:"passwords for negotiation"`
	LogLevel       uint8         `short:"L" long:"log-level" default:"2" description:"log level, 0 for trace, 1 for debug, 2 for info, 3 for warning, 4 for error, 5 for off"`
	DNSCacheTime   uint64        `short:"d" long:"dns-cache-time" default:"300" description:"time in seconds for dns query cache"`
	Marker         uint8         `short:"m" long:"marker" default:"255" description:"set marker used by tproxy"`
	Mode           string        `short:"M" long:"mode" default:"server" choice:"server" choice:"proxy" description:"program mode"`
	Hostname       string        `short:"h" long:"hostname" description:"trojan server hostname"`
	IdleTimeout    uint64        `short:"i" long:"idle-timeout" default:"300" description:"time in seconds before closing an inactive connection"`
	DNSUpstream    string        `long:"dns-upstream" description:"DNS upstream used instead of system nameservers, e.g. tls://1.1.1.1"`
	ResolveTimeout time.Duration `long:"resolve-timeout" default:"10s" description:"timeout of the startup server hostname lookup"`
	ProbeBackend   bool          `long:"probe-backend" description:"try to connect to backend once at startup"`
	ShowVersion    bool          `long:"version" description:"show program version and exit"`
	Help           bool          `long:"help" description:"show this help message"`
}

// parseArgs parses command line. Builtin help flag is not used because -h
// is taken by hostname.
func parseArgs(args []string) (*options, *flags.Parser, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.PassDoubleDash)
	parser.Name = ProgName
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, parser, err
	}
	if opts.Help || opts.ShowVersion {
		return &opts, parser, nil
	}
	if len(opts.Passwords) == 0 {
		return nil, parser, fmt.Errorf("the required flag `-p, --password' was not specified")
	}
	return &opts, parser, nil
}

func (o *options) sessionOptions() *session.Options {
	return &session.Options{
		Mode:           o.Mode,
		CertPath:       o.Cert,
		KeyPath:        o.Key,
		LocalAddr:      o.LocalAddr,
		RemoteAddr:     o.RemoteAddr,
		Passwords:      o.Passwords,
		DNSCacheTime:   o.DNSCacheTime,
		Marker:         o.Marker,
		Hostname:       o.Hostname,
		IdleTimeout:    o.IdleTimeout,
		DNSUpstream:    o.DNSUpstream,
		ResolveTimeout: o.ResolveTimeout,
	}
}

func run() int {
	opts, parser, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ProgName, err)
		parser.WriteHelp(os.Stderr)
		return 2
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		return 0
	}

	if opts.ShowVersion {
		fmt.Println(version)
		return 0
	}

	logCloser, err := logging.Setup(opts.LogLevel, opts.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ProgName, err)
		return 1
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := session.Setup(ctx, opts.sessionOptions(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ProgName, err)
		logging.Errf("session setup failed: %v", err)
		return 1
	}

	defer sess.Close()

	logging.Info("session ready",
		"mode", sess.Mode,
		"local", sess.LocalAddr,
		"backend", sess.Backend,
		"placeholder", sess.Placeholder,
		"idle_timeout", sess.IdleTimeout,
		"dns_cache_ttl", sess.DNSCacheTTL,
		"marker", sess.Marker,
	)

	if opts.ProbeBackend {
		probeBackend(ctx, sess)
	}

	<-ctx.Done()
	logging.Info("shutting down")

	return 0
}

func probeBackend(ctx context.Context, sess *session.Session) {
	d := dialer.New(&dialer.Config{
		Backend:   sess.Backend,
		LocalAddr: sess.Placeholder,
		Marker:    sess.Marker,
		Resolver:  sess.Resolver,
	})
	conn, err := d.DialBackend(ctx)
	if err != nil {
		logging.Warnf("backend %s is not reachable: %v", sess.Backend, err)
		return
	}
	conn.Close()
	logging.Infof("backend %s is reachable", sess.Backend)
}

func main() {
	os.Exit(run())
}
