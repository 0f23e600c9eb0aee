package screens

import (
	"context"
	"fmt"
	"image/color"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mrjrask/desk-display/internal/schedule"
)

const ScreenSysinfo schedule.ScreenID = "sysinfo"

const FeedSysinfo = "sysinfo"

// SysinfoData is the cached payload behind the sysinfo feed.
type SysinfoData struct {
	Hostname string
	Uptime   time.Duration
	Load1    string
	MemFree  string
	IPv4     string
}

// CollectSysinfo is the sysinfo feed's fetch func. Everything it reads is
// local, so it works (and stays useful) while the network is down.
func CollectSysinfo(_ context.Context) (any, error) {
	d := SysinfoData{}
	d.Hostname, _ = os.Hostname()

	if b, err := os.ReadFile("/proc/uptime"); err == nil {
		fields := strings.Fields(string(b))
		if len(fields) > 0 {
			if secs, err := strconv.ParseFloat(fields[0], 64); err == nil {
				d.Uptime = time.Duration(secs) * time.Second
			}
		}
	}
	if b, err := os.ReadFile("/proc/loadavg"); err == nil {
		fields := strings.Fields(string(b))
		if len(fields) > 0 {
			d.Load1 = fields[0]
		}
	}
	if b, err := os.ReadFile("/proc/meminfo"); err == nil {
		for _, line := range strings.Split(string(b), "\n") {
			if strings.HasPrefix(line, "MemAvailable:") {
				d.MemFree = strings.TrimSpace(strings.TrimSuffix(
					strings.TrimPrefix(line, "MemAvailable:"), "kB")) + " kB"
				break
			}
		}
	}
	d.IPv4 = localIPv4()
	return d, nil
}

func localIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		if v4 := ipn.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

func sysinfoSpec() Spec {
	return Spec{
		ID:    ScreenSysinfo,
		Feeds: []string{FeedSysinfo},
		Build: func(ctx Context) Definition {
			raw, ok := ctx.Feeds.Lookup(FeedSysinfo)
			data, cast := raw.(SysinfoData)
			return Definition{
				ID:        ScreenSysinfo,
				Available: ok && cast,
				Render: func() (*RenderResult, error) {
					img := NewFrame(ctx.Width, ctx.Height)
					white := color.White
					gray := color.RGBA{R: 170, G: 170, B: 170, A: 255}
					DrawTextCentered(img, data.Hostname, -ctx.Height/4, white)
					DrawTextCentered(img, "up "+shortDuration(data.Uptime), -ctx.Height/12, gray)
					DrawTextCentered(img, "load "+data.Load1+"  free "+data.MemFree, ctx.Height/12, gray)
					DrawTextCentered(img, data.IPv4, ctx.Height/4, white)
					return &RenderResult{Image: img}, nil
				},
			}
		},
	}
}

func shortDuration(d time.Duration) string {
	if d >= 24*time.Hour {
		days := d / (24 * time.Hour)
		rest := (d % (24 * time.Hour)) / time.Hour
		return fmt.Sprintf("%dd%dh", days, rest)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", d/time.Hour, (d%time.Hour)/time.Minute)
	}
	return fmt.Sprintf("%dm", d/time.Minute)
}
