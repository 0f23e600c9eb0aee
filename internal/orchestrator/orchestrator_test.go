package orchestrator

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mrjrask/desk-display/internal/display"
	"github.com/mrjrask/desk-display/internal/schedule"
	"github.com/mrjrask/desk-display/internal/screens"
	"github.com/mrjrask/desk-display/internal/services/connectivity"
	"github.com/mrjrask/desk-display/pkg/logx"
)

type staticHealth struct {
	snap connectivity.Snapshot
}

func (h staticHealth) State() connectivity.Snapshot { return h.snap }

type onceSkip struct {
	armed bool
}

func (s *onceSkip) ConsumeSkip() bool {
	v := s.armed
	s.armed = false
	return v
}

type emptyFeeds struct{}

func (emptyFeeds) Lookup(string) (any, bool) { return nil, false }

func solidSpec(id schedule.ScreenID) screens.Spec {
	return screens.Spec{
		ID: id,
		Build: func(ctx screens.Context) screens.Definition {
			return screens.Definition{
				ID:        id,
				Available: true,
				Render: func() (*screens.RenderResult, error) {
					return &screens.RenderResult{
						Image: image.NewRGBA(image.Rect(0, 0, ctx.Width, ctx.Height)),
					}, nil
				},
			}
		},
	}
}

func writeSchedule(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screens.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write schedule: %v", err)
	}
	return path
}

func newTestOrchestrator(t *testing.T, cfg Config, specs ...screens.Spec) (*Orchestrator, *display.Headless) {
	t.Helper()
	catalog := screens.NewCatalog()
	catalog.Register(specs...)
	path := writeSchedule(t, `{"screens": {"alpha": 1, "beta": 1}}`)
	loader := schedule.NewLoader(path, catalog.Known)
	panel := display.NewHeadless(32, 24)
	cfg.SchedulePath = path
	if cfg.Dwell == 0 {
		cfg.Dwell = 10 * time.Millisecond
	}
	cfg.IdlePoll = time.Millisecond
	return New(cfg, logx.Nop(), panel, loader, catalog, emptyFeeds{}), panel
}

func runBriefly(t *testing.T, o *Orchestrator, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = o.Run(ctx) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func TestRunShowsFramesAndBlanksOnExit(t *testing.T) {
	t.Parallel()

	o, panel := newTestOrchestrator(t, Config{}, solidSpec("alpha"), solidSpec("beta"))
	runBriefly(t, o, 100*time.Millisecond)

	if !panel.Blanked() {
		t.Fatal("panel not blanked after run loop exit")
	}
}

func TestQuietWindowBlanksWithoutRendering(t *testing.T) {
	t.Parallel()

	o, panel := newTestOrchestrator(t, Config{
		Quiet: QuietWindow{Enabled: true, StartMin: 0, EndMin: 24*60 - 1},
	}, solidSpec("alpha"), solidSpec("beta"))
	runBriefly(t, o, 50*time.Millisecond)

	if !panel.Blanked() {
		t.Fatal("panel not blanked inside quiet window")
	}
	if panel.LastFrame() != nil {
		t.Fatal("frame pushed during quiet window")
	}
}

func TestQuietWindowContains(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time {
		return time.Date(2026, 8, 29, h, m, 0, 0, time.Local)
	}
	spanning := QuietWindow{Enabled: true, StartMin: 22 * 60, EndMin: 7 * 60}
	cases := []struct {
		name string
		q    QuietWindow
		t    time.Time
		want bool
	}{
		{"plain inside", QuietWindow{true, 9 * 60, 17 * 60}, at(12, 0), true},
		{"plain outside", QuietWindow{true, 9 * 60, 17 * 60}, at(18, 0), false},
		{"plain end exclusive", QuietWindow{true, 9 * 60, 17 * 60}, at(17, 0), false},
		{"midnight late evening", spanning, at(23, 30), true},
		{"midnight early morning", spanning, at(6, 59), true},
		{"midnight daytime", spanning, at(12, 0), false},
		{"disabled", QuietWindow{false, 0, 24 * 60}, at(12, 0), false},
		{"zero-length", QuietWindow{true, 600, 600}, at(10, 0), false},
	}
	for _, tc := range cases {
		if got := tc.q.contains(tc.t); got != tc.want {
			t.Errorf("%s: contains = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDegradedConnectivityShowsAlert(t *testing.T) {
	t.Parallel()

	o, panel := newTestOrchestrator(t, Config{}, solidSpec("alpha"), solidSpec("beta"))
	o.SetHealthSource(staticHealth{connectivity.Snapshot{State: connectivity.StateNoWifi}})
	runBriefly(t, o, 50*time.Millisecond)

	// The alert frame was pushed before the exit blank.
	if !panel.Blanked() {
		t.Fatal("panel not blanked on exit")
	}
}

func TestSkipAvoidsFillerAndLastShown(t *testing.T) {
	t.Parallel()

	catalog := screens.NewCatalog()
	screens.RegisterBuiltins(catalog)
	catalog.Register(solidSpec("alpha"), solidSpec("beta"))

	sched, err := schedule.Build([]schedule.Entry{
		{Screen: "alpha", Frequency: 1},
		{Screen: screens.ScreenDate, Frequency: 1},
		{Screen: screens.ScreenTime, Frequency: 1},
		{Screen: "beta", Frequency: 1},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	panel := display.NewHeadless(32, 24)
	o := New(Config{Dwell: time.Millisecond, IdlePoll: time.Millisecond},
		logx.Nop(), panel, schedule.NewLoader("unused", nil), catalog, emptyFeeds{})
	o.sched = sched
	o.lastShown = "alpha"
	o.pendSkip = true

	reg := catalog.BuildRegistry(screens.Context{Width: 32, Height: 24, Now: time.Now(), Feeds: emptyFeeds{}})
	id, ok := o.nextScreen(reg)
	if !ok {
		t.Fatal("nextScreen returned no id")
	}
	if id == "alpha" || id == screens.ScreenDate || id == screens.ScreenTime {
		t.Fatalf("skip landed on avoided screen %q", id)
	}
	if id != "beta" {
		t.Fatalf("skip landed on %q, want beta", id)
	}
}

func TestManualSkipEndsDwellEarly(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, Config{Dwell: 10 * time.Second}, solidSpec("alpha"), solidSpec("beta"))
	skip := &onceSkip{armed: true}
	o.SetSkipSource(skip)

	start := time.Now()
	o.wait(context.Background(), 10*time.Second, true)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("wait ran %v despite pending skip", elapsed)
	}
	if !o.pendSkip {
		t.Fatal("consumed skip did not arm skip-avoid selection")
	}
}

func TestBlankPanelIsWriteOnce(t *testing.T) {
	t.Parallel()

	o, panel := newTestOrchestrator(t, Config{}, solidSpec("alpha"), solidSpec("beta"))
	o.BlankPanel()
	if !panel.Blanked() {
		t.Fatal("panel not blanked")
	}

	// A later push would normally unblank; the second call must be a no-op
	// rather than clearing fresh content drawn by nobody.
	_ = panel.Push(image.NewRGBA(image.Rect(0, 0, 32, 24)))
	o.BlankPanel()
	if panel.Blanked() {
		t.Fatal("second BlankPanel call blanked again")
	}
}

func TestRenderErrorSkipsTick(t *testing.T) {
	t.Parallel()

	bad := screens.Spec{
		ID: "alpha",
		Build: func(ctx screens.Context) screens.Definition {
			return screens.Definition{
				ID:        "alpha",
				Available: true,
				Render: func() (*screens.RenderResult, error) {
					panic("renderer bug")
				},
			}
		},
	}
	o, panel := newTestOrchestrator(t, Config{}, bad, solidSpec("beta"))
	runBriefly(t, o, 100*time.Millisecond)

	// The loop survived the panicking renderer long enough to exit cleanly.
	if !panel.Blanked() {
		t.Fatal("panel not blanked after run with failing renderer")
	}
}

type recordingRequester struct {
	mu        sync.Mutex
	requested map[string]struct{}
	kicks     int
}

func (r *recordingRequester) SetRequested(names map[string]struct{}) {
	r.mu.Lock()
	r.requested = names
	r.mu.Unlock()
}

func (r *recordingRequester) RefreshNow() {
	r.mu.Lock()
	r.kicks++
	r.mu.Unlock()
}

func TestAlertRedrawnAfterQuietWindow(t *testing.T) {
	t.Parallel()

	o, panel := newTestOrchestrator(t, Config{}, solidSpec("alpha"), solidSpec("beta"))
	snap := connectivity.Snapshot{State: connectivity.StateNoInternet, SSID: "workshop"}

	o.showAlert(snap)
	if panel.LastFrame() == nil {
		t.Fatal("alert frame not pushed")
	}

	o.enterQuiet()
	if panel.LastFrame() != nil {
		t.Fatal("quiet window did not blank the panel")
	}
	o.leaveQuiet()

	// The link is still down; the same state must be pushed again rather
	// than leaving the panel dark for the rest of the outage.
	o.showAlert(snap)
	if panel.LastFrame() == nil {
		t.Fatal("alert not redrawn after quiet window while still degraded")
	}
}

func TestScheduleReloadKicksFeedRefresh(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, Config{}, solidSpec("alpha"), solidSpec("beta"))
	req := &recordingRequester{}
	o.SetFeedRequester(req)

	o.reloadSchedule(context.Background())

	req.mu.Lock()
	defer req.mu.Unlock()
	if o.sched == nil {
		t.Fatal("schedule not loaded")
	}
	if req.requested == nil {
		t.Fatal("requested feed set never updated")
	}
	if req.kicks != 1 {
		t.Fatalf("refresh kicks = %d, want 1", req.kicks)
	}
}

func TestReloadCheckGatesFileChecks(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, Config{ReloadCheck: time.Hour},
		solidSpec("alpha"), solidSpec("beta"), solidSpec("gamma"))
	ctx := context.Background()

	o.reloadSchedule(ctx)
	if o.sched == nil || o.sched.NodeCount() != 2 {
		t.Fatalf("initial load: sched = %+v", o.sched)
	}

	// Grow the rotation on disk with a clearly newer mtime.
	if err := os.WriteFile(o.cfg.SchedulePath,
		[]byte(`{"screens": {"alpha": 1, "beta": 1, "gamma": 1}}`), 0o644); err != nil {
		t.Fatalf("rewrite schedule: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(o.cfg.SchedulePath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	o.reloadSchedule(ctx)
	if o.sched.NodeCount() != 2 {
		t.Fatal("reload ran again inside the check interval")
	}

	o.lastCheck = time.Time{}
	o.reloadSchedule(ctx)
	if got := o.sched.NodeCount(); got != 3 {
		t.Fatalf("NodeCount after interval = %d, want 3", got)
	}
}
