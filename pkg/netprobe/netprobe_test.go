package netprobe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestReachableTCPFirst(t *testing.T) {
	t.Parallel()
	p := New([]string{"192.0.2.1:443", "192.0.2.2:53"}, time.Second, "")
	dialed := []string{}
	p.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed = append(dialed, addr)
		if addr == "192.0.2.2:53" {
			c1, c2 := net.Pipe()
			go c2.Close()
			return c1, nil
		}
		return nil, errors.New("refused")
	}
	pinged := 0
	p.ping = func(ctx context.Context, iface, host string, timeout time.Duration) bool {
		pinged++
		return false
	}

	ok, tried := p.Reachable(context.Background())
	if !ok {
		t.Fatal("expected reachable")
	}
	if len(tried) != 2 || len(dialed) != 2 {
		t.Fatalf("tried=%v dialed=%v", tried, dialed)
	}
	if pinged != 1 {
		t.Fatalf("ping fallback ran %d times, want 1 (first host only)", pinged)
	}
}

func TestReachablePingFallback(t *testing.T) {
	t.Parallel()
	p := New([]string{"192.0.2.1:443"}, time.Second, "wlan0")
	p.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("operation not permitted")
	}
	var gotIface, gotHost string
	p.ping = func(ctx context.Context, iface, host string, timeout time.Duration) bool {
		gotIface, gotHost = iface, host
		return true
	}

	ok, _ := p.Reachable(context.Background())
	if !ok {
		t.Fatal("expected ping fallback to succeed")
	}
	if gotIface != "wlan0" || gotHost != "192.0.2.1" {
		t.Fatalf("ping got iface=%q host=%q", gotIface, gotHost)
	}
}

func TestReachableAllDown(t *testing.T) {
	t.Parallel()
	p := New(nil, 100*time.Millisecond, "")
	p.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("timeout")
	}
	p.ping = func(ctx context.Context, iface, host string, timeout time.Duration) bool {
		return false
	}
	ok, tried := p.Reachable(context.Background())
	if ok {
		t.Fatal("expected unreachable")
	}
	if len(tried) != len(DefaultHosts) {
		t.Fatalf("tried %d hosts, want %d", len(tried), len(DefaultHosts))
	}
}
