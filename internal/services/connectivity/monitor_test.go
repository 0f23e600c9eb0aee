package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mrjrask/desk-display/pkg/logx"
)

const sampleLink = `Connected to aa:bb:cc:dd:ee:ff (on wlan0)
	SSID: workshop
	freq: 5180
	signal: -48 dBm
	tx bitrate: 433.3 MBit/s`

type fakeOps struct {
	mu         sync.Mutex
	associated bool
	route      bool
	cycles     int
	cycleErr   error
}

func (f *fakeOps) WirelessInterfaces(context.Context) []string { return []string{"wlan0"} }

func (f *fakeOps) LinkInfo(context.Context, string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.associated {
		return "Not connected."
	}
	return sampleLink
}

func (f *fakeOps) SSIDFallback(context.Context) string { return "" }

func (f *fakeOps) HasDefaultRoute(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.route
}

func (f *fakeOps) IPv4(context.Context, string) string        { return "192.168.1.20" }
func (f *fakeOps) DisablePowerSave(context.Context, string) bool { return true }

func (f *fakeOps) CycleInterface(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles++
	return f.cycleErr
}

func (f *fakeOps) cycleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles
}

func (f *fakeOps) set(associated, route bool) {
	f.mu.Lock()
	f.associated = associated
	f.route = route
	f.mu.Unlock()
}

type fakeProbe struct {
	mu sync.Mutex
	ok bool
}

func (f *fakeProbe) Reachable(context.Context) (bool, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ok, []string{"1.1.1.1:443"}
}

func (f *fakeProbe) set(ok bool) {
	f.mu.Lock()
	f.ok = ok
	f.mu.Unlock()
}

type recordingJournal struct {
	events chan Event
}

func (j *recordingJournal) ConnectivityEvent(_ context.Context, ev Event) {
	select {
	case j.events <- ev:
	default:
	}
}

func (j *recordingJournal) next(t *testing.T, kind string) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-j.events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", kind)
		}
	}
}

func newTestMonitor(ops *fakeOps, probe *fakeProbe, journal EventJournal) *Monitor {
	m := New(Config{
		Interface:        "wlan0",
		CheckInterval:    5 * time.Millisecond,
		DegradedInterval: 5 * time.Millisecond,
		RetryInterval:    5 * time.Millisecond,
		ProbeTimeout:     10 * time.Millisecond,
		MaxFailures:      1,
	}, logx.Nop(), journal)
	m.ops = ops
	m.probe = probe
	return m
}

func TestMonitorRepairsAndRecovers(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{associated: true, route: true}
	probe := &fakeProbe{ok: true}
	journal := &recordingJournal{events: make(chan Event, 64)}
	m := newTestMonitor(ops, probe, journal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = m.Run(ctx) }()

	journal.next(t, "transition") // initial no_wifi -> ok
	if got := m.State().State; got != StateOK {
		t.Fatalf("initial state = %q, want %q", got, StateOK)
	}

	probe.set(false)
	ev := journal.next(t, "transition")
	if ev.State != StateNoInternet {
		t.Fatalf("transition state = %q, want %q", ev.State, StateNoInternet)
	}
	journal.next(t, "repair")
	if ops.cycleCount() == 0 {
		t.Fatal("expected at least one interface cycle during outage")
	}

	probe.set(true)
	rec := journal.next(t, "recovered")
	if rec.Outage <= 0 {
		t.Fatalf("recovered event outage = %v, want > 0", rec.Outage)
	}
	if got := m.State().State; got != StateOK {
		t.Fatalf("state after recovery = %q, want %q", got, StateOK)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
}

func TestMonitorLostAssociationGoesNoWifi(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{associated: false, route: false}
	probe := &fakeProbe{ok: false}
	journal := &recordingJournal{events: make(chan Event, 64)}
	m := newTestMonitor(ops, probe, journal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.State()
		if snap.State == StateNoWifi && snap.ConsecutiveFailures > 0 {
			if snap.SSID != "" {
				t.Fatalf("no_wifi snapshot carries ssid %q", snap.SSID)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("monitor never reported no_wifi")
}

func TestMonitorMissingRouteIsNoInternet(t *testing.T) {
	t.Parallel()

	ops := &fakeOps{associated: true, route: false}
	probe := &fakeProbe{ok: true}
	journal := &recordingJournal{events: make(chan Event, 64)}
	m := newTestMonitor(ops, probe, journal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.State()
		if snap.State == StateNoInternet {
			if snap.SSID != "workshop" {
				t.Fatalf("snapshot ssid = %q, want %q", snap.SSID, "workshop")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("monitor never reported no_internet")
}

func TestParseLinkInfo(t *testing.T) {
	t.Parallel()

	if !parseAssociated(sampleLink) {
		t.Error("parseAssociated(sampleLink) = false")
	}
	if parseAssociated("Not connected.") {
		t.Error("parseAssociated(not connected) = true")
	}
	if got := parseSSID(sampleLink); got != "workshop" {
		t.Errorf("parseSSID = %q, want %q", got, "workshop")
	}
	if got := parseBSSID(sampleLink); got != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("parseBSSID = %q, want %q", got, "aa:bb:cc:dd:ee:ff")
	}
	if got := parseLinkField(sampleLink, "signal:"); got != "-48 dBm" {
		t.Errorf("parseLinkField(signal) = %q, want %q", got, "-48 dBm")
	}
	if got := parseLinkField(sampleLink, "tx bitrate:"); got != "433.3 MBit/s" {
		t.Errorf("parseLinkField(tx bitrate) = %q, want %q", got, "433.3 MBit/s")
	}
	if got := parseLinkField(sampleLink, "missing:"); got != "" {
		t.Errorf("parseLinkField(missing) = %q, want empty", got)
	}
}

func TestSnapshotDegraded(t *testing.T) {
	t.Parallel()

	if (Snapshot{State: StateOK}).Degraded() {
		t.Error("ok snapshot reported degraded")
	}
	if !(Snapshot{State: StateNoWifi}).Degraded() {
		t.Error("no_wifi snapshot reported healthy")
	}
	if !(Snapshot{State: StateNoInternet}).Degraded() {
		t.Error("no_internet snapshot reported healthy")
	}
}
