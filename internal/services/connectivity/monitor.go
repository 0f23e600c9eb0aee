// Package connectivity keeps the device's network link alive without a
// reboot: it reduces link association, routing and reachability probes to a
// three-state health signal and executes a bounded self-repair on sustained
// failure.
package connectivity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mrjrask/desk-display/pkg/logx"
	"github.com/mrjrask/desk-display/pkg/netprobe"
)

type Monitor struct {
	cfg      Config
	log      logx.Logger
	throttle *logx.Throttle

	ops     netOps
	probe   prober
	journal EventJournal
	speed   func(ctx context.Context) // post-recovery sampler, nil unless enabled

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg Config, log logx.Logger, journal EventJournal) *Monitor {
	cfg.fillDefaults()
	m := &Monitor{
		cfg:      cfg,
		log:      log,
		throttle: logx.NewThrottle(log, 1.0/60), // at most ~1 repeat line per minute per key
		ops:      execNetOps{},
		journal:  journal,
		snap:     Snapshot{State: StateNoWifi},
	}
	m.probe = netprobe.New(cfg.ProbeHosts, cfg.ProbeTimeout, cfg.Interface)
	if cfg.SpeedtestAfterRecovery {
		m.speed = m.sampleLinkSpeed
	}
	return m
}

// State returns a copy of the current snapshot.
func (m *Monitor) State() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func (m *Monitor) setState(state State, ssid, iface string, fails int, recoveryStart time.Time) {
	m.mu.Lock()
	prev := m.snap.State
	m.snap.State = state
	m.snap.SSID = ssid
	m.snap.Interface = iface
	m.snap.ConsecutiveFailures = fails
	m.snap.RecoveryStartedAt = recoveryStart
	if prev != state {
		m.snap.LastChange = time.Now()
	}
	m.mu.Unlock()

	if prev != state {
		m.log.Info("connectivity state changed",
			logx.String("from", string(prev)),
			logx.String("to", string(state)),
			logx.String("iface", iface),
			logx.String("ssid", ssid),
		)
		if m.journal != nil {
			m.journal.ConnectivityEvent(context.Background(), Event{
				At: time.Now(), Kind: "transition", State: state, SSID: ssid, Iface: iface,
			})
		}
	}
}

// Run is the monitor loop. It only returns when ctx is canceled; every
// probe and repair step fails independently and feeds the state machine.
func (m *Monitor) Run(ctx context.Context) error {
	iface := m.detectInterface(ctx)
	for iface == "" {
		m.log.Warn("no wireless interface detected; retrying")
		if !sleepCtx(ctx, m.cfg.RetryInterval) {
			return ctx.Err()
		}
		iface = m.detectInterface(ctx)
	}

	if m.ops.DisablePowerSave(ctx, iface) {
		m.log.Info("disabled wifi power save", logx.String("iface", iface))
	}
	m.reportStatus(ctx, iface)

	fails := 0
	var recoveryStart time.Time

	for ctx.Err() == nil {
		linkInfo := m.ops.LinkInfo(ctx, iface)
		associated := parseAssociated(linkInfo)
		ssid := parseSSID(linkInfo)
		if ssid == "" {
			ssid = m.ops.SSIDFallback(ctx)
		}

		healthy := false
		switch {
		case !associated:
			fails++
			m.setState(StateNoWifi, "", iface, fails, recoveryStart)
			m.throttle.Warn("probe", "link not associated",
				logx.String("iface", iface), logx.Int("fails", fails))

		case !m.ops.HasDefaultRoute(ctx, iface):
			fails++
			m.setState(StateNoInternet, ssid, iface, fails, recoveryStart)
			m.throttle.Warn("probe", "no default route",
				logx.String("iface", iface), logx.String("ssid", ssid), logx.Int("fails", fails))

		default:
			ok, tried := m.probe.Reachable(ctx)
			if ok {
				healthy = true
			} else {
				fails++
				m.setState(StateNoInternet, ssid, iface, fails, recoveryStart)
				// DNS health is informational only: a broken resolver must
				// not trigger an interface repair that can't fix it.
				dnsOK := netprobe.ResolveDNS(ctx, m.cfg.ProbeTimeout)
				m.throttle.Warn("probe", "reachability probes failed",
					logx.String("iface", iface),
					logx.String("ssid", ssid),
					logx.String("hosts", strings.Join(tried, " ")),
					logx.Bool("dns_ok", dnsOK),
					logx.Int("fails", fails),
				)
			}
		}

		if healthy {
			if !recoveryStart.IsZero() {
				outage := time.Since(recoveryStart)
				m.log.Info("connectivity recovered",
					logx.String("iface", iface),
					logx.String("ssid", ssid),
					logx.Duration("outage", outage),
				)
				if m.journal != nil {
					m.journal.ConnectivityEvent(ctx, Event{
						At: time.Now(), Kind: "recovered", State: StateOK,
						SSID: ssid, Iface: iface, Outage: outage,
					})
				}
				m.reportStatus(ctx, iface)
				if m.speed != nil {
					m.speed(ctx)
				}
				recoveryStart = time.Time{}
			}
			fails = 0
			m.setState(StateOK, ssid, iface, 0, time.Time{})
			if !sleepCtx(ctx, m.cfg.CheckInterval) {
				return ctx.Err()
			}
			continue
		}

		if fails >= m.cfg.MaxFailures {
			if recoveryStart.IsZero() {
				recoveryStart = time.Now()
				m.log.Warn("connection lost; starting recovery",
					logx.String("iface", iface), logx.Int("fails", fails))
			}
			m.repair(ctx, iface)
			if !sleepCtx(ctx, m.cfg.RetryInterval) {
				return ctx.Err()
			}
		} else {
			if !sleepCtx(ctx, m.cfg.DegradedInterval) {
				return ctx.Err()
			}
		}
	}
	return ctx.Err()
}

// repair runs exactly one bounded interface cycle per invocation. Outcome
// is logged and journaled either way; a failed repair never escalates.
func (m *Monitor) repair(ctx context.Context, iface string) {
	err := m.ops.CycleInterface(ctx, iface)
	if err != nil {
		m.log.Warn("interface cycle failed", logx.String("iface", iface), logx.Err(err))
	} else {
		m.log.Info("interface cycled", logx.String("iface", iface))
	}
	if m.journal != nil {
		detail := "ok"
		if err != nil {
			detail = err.Error()
		}
		m.journal.ConnectivityEvent(ctx, Event{
			At: time.Now(), Kind: "repair", State: m.State().State, Iface: iface, Detail: detail,
		})
	}
}

func (m *Monitor) detectInterface(ctx context.Context) string {
	if m.cfg.Interface != "" {
		return m.cfg.Interface
	}
	ifaces := m.ops.WirelessInterfaces(ctx)
	if len(ifaces) == 0 {
		return ""
	}
	return ifaces[0]
}

// reportStatus logs one detailed line about the link: run at startup and
// after each recovery so outage postmortems have signal data next to them.
func (m *Monitor) reportStatus(ctx context.Context, iface string) {
	linkInfo := m.ops.LinkInfo(ctx, iface)
	ssid := parseSSID(linkInfo)
	if ssid == "" {
		ssid = m.ops.SSIDFallback(ctx)
	}
	signal := parseLinkField(linkInfo, "signal:")
	freq := parseLinkField(linkInfo, "freq:")
	tx := parseLinkField(linkInfo, "tx bitrate:")
	ipv4 := m.ops.IPv4(ctx, iface)
	dnsOK := netprobe.ResolveDNS(ctx, m.cfg.ProbeTimeout)

	m.log.Info("link status",
		logx.String("iface", iface),
		logx.String("ssid", ssid),
		logx.String("bssid", parseBSSID(linkInfo)),
		logx.String("signal", signal),
		logx.String("freq", freq),
		logx.String("tx", tx),
		logx.String("ipv4", ipv4),
		logx.Bool("default_route", m.ops.HasDefaultRoute(ctx, iface)),
		logx.Bool("dns_ok", dnsOK),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
