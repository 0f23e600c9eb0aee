package connectivity

import (
	"context"
	"sort"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"

	"github.com/mrjrask/desk-display/pkg/logx"
)

// sampleLinkSpeed runs one bounded download/upload measurement against the
// nearest server and logs the result. Purely informational: any failure is
// logged at debug level and the monitor loop carries on.
func (m *Monitor) sampleLinkSpeed(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	stc := st.New()
	defer stc.Reset()

	servers, err := stc.FetchServerListContext(ctx)
	if err != nil {
		m.log.Debug("speed sample: server list failed", logx.Err(err))
		return
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		m.log.Debug("speed sample: no servers available")
		return
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	srv := servers[0]

	if err := srv.PingTestContext(ctx, nil); err != nil {
		m.log.Debug("speed sample: ping failed", logx.Err(err))
		return
	}
	if err := srv.DownloadTestContext(ctx); err != nil {
		m.log.Debug("speed sample: download failed", logx.Err(err))
		return
	}
	if err := srv.UploadTestContext(ctx); err != nil {
		m.log.Debug("speed sample: upload failed", logx.Err(err))
		return
	}

	m.log.Info("link speed sample",
		logx.String("server", srv.Name),
		logx.Duration("latency", srv.Latency),
		logx.Float64("down_mbps", srv.DLSpeed.Mbps()),
		logx.Float64("up_mbps", srv.ULSpeed.Mbps()),
	)
}
