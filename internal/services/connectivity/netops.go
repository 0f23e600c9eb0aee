package connectivity

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// netOps wraps the wireless tooling (`iw`, `ip`, `wpa_cli`) the monitor
// shells out to. It is an interface so the state machine is testable
// without hardware.
type netOps interface {
	WirelessInterfaces(ctx context.Context) []string
	LinkInfo(ctx context.Context, iface string) string
	SSIDFallback(ctx context.Context) string
	HasDefaultRoute(ctx context.Context, iface string) bool
	IPv4(ctx context.Context, iface string) string
	DisablePowerSave(ctx context.Context, iface string) bool
	CycleInterface(ctx context.Context, iface string) error
}

type execNetOps struct{}

func run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

func (execNetOps) WirelessInterfaces(ctx context.Context) []string {
	out, err := run(ctx, "iw", "dev")
	if err != nil {
		return nil
	}
	var ifaces []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Interface") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				ifaces = append(ifaces, parts[1])
			}
		}
	}
	return ifaces
}

func (execNetOps) LinkInfo(ctx context.Context, iface string) string {
	out, _ := run(ctx, "iw", "dev", iface, "link")
	return out
}

func (execNetOps) SSIDFallback(ctx context.Context) string {
	out, err := run(ctx, "iwgetid", "-r")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func (execNetOps) HasDefaultRoute(ctx context.Context, iface string) bool {
	out, err := run(ctx, "ip", "route", "show", "default", "dev", iface)
	return err == nil && strings.TrimSpace(out) != ""
}

func (execNetOps) IPv4(ctx context.Context, iface string) string {
	out, err := run(ctx, "ip", "-4", "addr", "show", "dev", iface)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "inet ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				return strings.SplitN(fields[1], "/", 2)[0]
			}
		}
	}
	return ""
}

func (execNetOps) DisablePowerSave(ctx context.Context, iface string) bool {
	out, err := run(ctx, "iw", "dev", iface, "get", "power_save")
	if err != nil || !strings.Contains(strings.ToLower(out), "on") {
		return false
	}
	_, err = run(ctx, "iw", "dev", iface, "set", "power_save", "off")
	return err == nil
}

// CycleInterface is the bounded self-repair: bring the link down, wait,
// bring it back up, and nudge the supplicant when wpa_cli is around. Each
// step is best-effort; the caller re-probes after the cool-down.
func (execNetOps) CycleInterface(ctx context.Context, iface string) error {
	_, downErr := run(ctx, "ip", "link", "set", iface, "down")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}

	_, upErr := run(ctx, "ip", "link", "set", iface, "up")
	if _, err := exec.LookPath("wpa_cli"); err == nil {
		_, _ = run(ctx, "wpa_cli", "-i", iface, "reconfigure")
	}

	if upErr != nil {
		return upErr
	}
	return downErr
}

// ---- link info parsing ----

func parseAssociated(linkInfo string) bool {
	return strings.Contains(linkInfo, "Connected to")
}

func parseSSID(linkInfo string) string {
	for _, line := range strings.Split(linkInfo, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "SSID:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "SSID:"))
		}
	}
	return ""
}

func parseBSSID(linkInfo string) string {
	for _, line := range strings.Split(linkInfo, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Connected to") {
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				return fields[2]
			}
		}
	}
	return ""
}

func parseLinkField(linkInfo, key string) string {
	lower := strings.ToLower(key)
	for _, line := range strings.Split(linkInfo, "\n") {
		if idx := strings.Index(strings.ToLower(line), lower); idx >= 0 {
			return strings.TrimSpace(line[idx+len(key):])
		}
	}
	return ""
}
