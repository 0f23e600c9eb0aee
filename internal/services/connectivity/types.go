package connectivity

import (
	"context"
	"time"
)

// State is the reduced health signal the orchestrator consumes.
type State string

const (
	// StateNoWifi: not associated to any network.
	StateNoWifi State = "no_wifi"
	// StateNoInternet: associated with a route, but reachability probes fail.
	StateNoInternet State = "no_internet"
	// StateOK: probes succeed.
	StateOK State = "ok"
)

// Snapshot is the monitor's externally visible state. Created once at
// startup, mutated only by the monitor loop, read by the orchestrator.
type Snapshot struct {
	State               State
	SSID                string
	Interface           string
	ConsecutiveFailures int
	RecoveryStartedAt   time.Time // zero when healthy
	LastChange          time.Time
}

// Degraded reports whether the orchestrator should show an alert overlay
// instead of the normal rotation.
func (s Snapshot) Degraded() bool { return s.State != StateOK }

type Config struct {
	// Interface overrides wireless interface auto-detection.
	Interface string

	ProbeHosts   []string
	ProbeTimeout time.Duration

	// CheckInterval is the poll cadence while healthy (~15s).
	CheckInterval time.Duration
	// DegradedInterval is the short cadence between failing checks before
	// the failure threshold trips.
	DegradedInterval time.Duration
	// RetryInterval is the cool-down after a repair attempt; repairing hot
	// in a loop only makes an outage worse.
	RetryInterval time.Duration
	// MaxFailures is the consecutive-failure count that triggers repair.
	MaxFailures int

	// SpeedtestAfterRecovery samples link throughput once when the link
	// returns to ok after an outage.
	SpeedtestAfterRecovery bool
}

func (c *Config) fillDefaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 2 * time.Second
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 15 * time.Second
	}
	if c.DegradedInterval <= 0 {
		c.DegradedInterval = 5 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 1
	}
}

// Event is one journaled connectivity occurrence: a state transition, a
// repair attempt, or a recovery with its outage duration.
type Event struct {
	At      time.Time
	Kind    string // "transition", "repair", "recovered"
	State   State
	SSID    string
	Iface   string
	Detail  string
	Outage  time.Duration
}

// EventJournal persists connectivity events. Implementations must be fast
// or buffer internally; the monitor calls it inline.
type EventJournal interface {
	ConnectivityEvent(ctx context.Context, ev Event)
}

// prober abstracts pkg/netprobe for tests.
type prober interface {
	Reachable(ctx context.Context) (bool, []string)
}
