// Package netprobe implements the reachability checks used by the
// connectivity monitor: a short TCP handshake against well-known endpoints,
// a plain-ping fallback for environments where that fails for local
// reasons, and a DNS resolution check that is reported separately because
// broken DNS does not mean the link is down.
package netprobe

import (
	"context"
	"net"
	"os/exec"
	"strconv"
	"time"
)

// DefaultHosts are probe endpoints that answer TCP handshakes reliably:
// public resolvers on their service ports.
var DefaultHosts = []string{"1.1.1.1:443", "8.8.8.8:53"}

type Prober struct {
	Hosts   []string
	Timeout time.Duration
	// Interface, when set, binds ping probes to a specific interface so a
	// stale default route over another link can't mask a Wi-Fi outage.
	Interface string

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	ping func(ctx context.Context, iface, host string, timeout time.Duration) bool
}

func New(hosts []string, timeout time.Duration, iface string) *Prober {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &net.Dialer{}
	return &Prober{
		Hosts:     hosts,
		Timeout:   timeout,
		Interface: iface,
		dial:      d.DialContext,
		ping:      execPing,
	}
}

// Reachable reports whether any probe endpoint answered, and which hosts
// were tried. A TCP handshake is attempted first for each host; when the
// dial fails for a local reason (no socket, no route is a remote reason we
// keep), a single ping fallback is tried for that host.
func (p *Prober) Reachable(ctx context.Context) (bool, []string) {
	tried := make([]string, 0, len(p.Hosts))
	for _, hostport := range p.Hosts {
		tried = append(tried, hostport)

		dctx, cancel := context.WithTimeout(ctx, p.Timeout)
		conn, err := p.dial(dctx, "tcp", hostport)
		cancel()
		if err == nil {
			_ = conn.Close()
			return true, tried
		}
		if ctx.Err() != nil {
			return false, tried
		}

		host, _, splitErr := net.SplitHostPort(hostport)
		if splitErr != nil {
			host = hostport
		}
		if p.ping(ctx, p.Interface, host, p.Timeout) {
			return true, tried
		}
		if ctx.Err() != nil {
			return false, tried
		}
	}
	return false, tried
}

// ResolveDNS checks name resolution against a stable public name. The
// result is logged by the caller but never flips the connectivity state on
// its own.
func ResolveDNS(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupHost(rctx, "dns.google")
	return err == nil && len(addrs) > 0
}

func execPing(ctx context.Context, iface, host string, timeout time.Duration) bool {
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	args := []string{"-c", "1", "-W", strconv.Itoa(secs)}
	if iface != "" {
		args = append(args, "-I", iface)
	}
	args = append(args, host)
	return exec.CommandContext(ctx, "ping", args...).Run() == nil
}
