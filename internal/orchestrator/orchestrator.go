// Package orchestrator runs the main display loop. It is the only goroutine
// allowed to touch the panel: background services hand it state through
// read-mostly snapshots and one-shot flags, never by drawing themselves.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrjrask/desk-display/internal/display"
	"github.com/mrjrask/desk-display/internal/schedule"
	"github.com/mrjrask/desk-display/internal/screens"
	"github.com/mrjrask/desk-display/internal/screenshot"
	"github.com/mrjrask/desk-display/internal/services/connectivity"
	"github.com/mrjrask/desk-display/pkg/logx"
)

// HealthSource exposes the connectivity monitor's snapshot.
type HealthSource interface {
	State() connectivity.Snapshot
}

// SkipSource surfaces a pending skip-to-next-screen request.
type SkipSource interface {
	ConsumeSkip() bool
}

// FeedRequester narrows the refresher to what a schedule change needs:
// retarget the polled set, then prod it so feeds new to the rotation are
// fetched without waiting out their interval.
type FeedRequester interface {
	SetRequested(names map[string]struct{})
	RefreshNow()
}

// ReloadRecorder journals schedule reload outcomes.
type ReloadRecorder interface {
	ScheduleReload(ctx context.Context, path string, screens int, ok bool, detail string)
}

// QuietWindow is a daily wall-clock interval during which the panel stays
// blank. Start==End disables the window; Start>End spans midnight.
type QuietWindow struct {
	Enabled  bool
	StartMin int // minutes after midnight
	EndMin   int
}

func (q QuietWindow) contains(t time.Time) bool {
	if !q.Enabled || q.StartMin == q.EndMin {
		return false
	}
	min := t.Hour()*60 + t.Minute()
	if q.StartMin < q.EndMin {
		return min >= q.StartMin && min < q.EndMin
	}
	return min >= q.StartMin || min < q.EndMin
}

type Config struct {
	Dwell    time.Duration // how long each screen stays up
	IdlePoll time.Duration // skip/shutdown poll granularity inside waits
	Quiet    QuietWindow

	// ReloadCheck is the minimum interval between schedule-file checks,
	// so rapid skip presses don't turn into a stat per tick.
	ReloadCheck time.Duration

	// SchedulePath is recorded with reload journal entries.
	SchedulePath string

	// Fade pushes frames with a short fade-in; disabled headless.
	FadeSteps int
	FadeDelay time.Duration

	// BacklightLevel returns the user-adjusted level to restore when the
	// quiet window ends. Nil means full brightness.
	BacklightLevel func() float64
}

func (c *Config) fillDefaults() {
	if c.Dwell <= 0 {
		c.Dwell = 12 * time.Second
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = 100 * time.Millisecond
	}
	if c.FadeDelay <= 0 {
		c.FadeDelay = 30 * time.Millisecond
	}
	if c.ReloadCheck <= 0 {
		c.ReloadCheck = 2 * time.Second
	}
}

type Orchestrator struct {
	cfg     Config
	log     logx.Logger
	panel   display.Panel
	loader  *schedule.Loader
	catalog *screens.Catalog
	feeds   screens.FeedReader

	health    HealthSource  // nil when the monitor is disabled
	skip      SkipSource    // nil when buttons are disabled
	requester FeedRequester // nil in tests
	saver     *screenshot.Saver
	journal   ReloadRecorder

	sched     *schedule.Schedule
	lastCheck time.Time
	lastShown schedule.ScreenID
	pendSkip  bool
	inQuiet   bool
	lastAlert connectivity.State

	blank sync.Once
}

func New(cfg Config, log logx.Logger, panel display.Panel, loader *schedule.Loader,
	catalog *screens.Catalog, feeds screens.FeedReader) *Orchestrator {
	cfg.fillDefaults()
	return &Orchestrator{
		cfg:     cfg,
		log:     log,
		panel:   panel,
		loader:  loader,
		catalog: catalog,
		feeds:   feeds,
	}
}

// Optional collaborators; nil values are tolerated everywhere.

func (o *Orchestrator) SetHealthSource(h HealthSource)   { o.health = h }
func (o *Orchestrator) SetSkipSource(s SkipSource)       { o.skip = s }
func (o *Orchestrator) SetFeedRequester(r FeedRequester) { o.requester = r }
func (o *Orchestrator) SetSaver(s *screenshot.Saver)     { o.saver = s }
func (o *Orchestrator) SetReloadRecorder(r ReloadRecorder) {
	o.journal = r
}

// BlankPanel clears the panel exactly once across every exit path: the
// run loop's defer, the shutdown coordinator, and a panic unwind all
// funnel through the same sync.Once.
func (o *Orchestrator) BlankPanel() {
	o.blank.Do(func() {
		if err := o.panel.Blank(); err != nil {
			o.log.Warn("panel blank failed", logx.Err(err))
			return
		}
		o.log.Info("panel blanked")
	})
}

// Run executes the tick loop until ctx is canceled. The panel is blanked
// before returning, whatever the exit path.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.BlankPanel()

	for ctx.Err() == nil {
		o.reloadSchedule(ctx)

		now := time.Now()
		if o.cfg.Quiet.contains(now) {
			o.enterQuiet()
			o.wait(ctx, o.cfg.Dwell, false)
			continue
		}
		o.leaveQuiet()

		if snap := o.healthSnapshot(); snap.Degraded() {
			o.showAlert(snap)
			o.wait(ctx, o.cfg.Dwell, true)
			continue
		}
		o.lastAlert = ""

		if o.sched == nil {
			o.wait(ctx, o.cfg.Dwell, true)
			continue
		}

		w, h := o.panel.Size()
		reg := o.catalog.BuildRegistry(screens.Context{
			Width: w, Height: h, Now: now, Feeds: o.feeds,
		})

		id, ok := o.nextScreen(reg)
		if !ok {
			o.log.Debug("no screen available this tick")
			o.wait(ctx, o.cfg.Dwell, true)
			continue
		}

		if err := o.showScreen(ctx, reg, id); err != nil {
			o.log.Error("render failed",
				logx.String("screen", string(id)), logx.Err(err))
			o.wait(ctx, o.cfg.IdlePoll*5, true)
			continue
		}
		o.lastShown = id

		o.wait(ctx, o.cfg.Dwell, true)
	}
	return ctx.Err()
}

// reloadSchedule picks up on-disk changes. A new schedule resets the
// pending skip and last-shown id; cursors reset by construction.
func (o *Orchestrator) reloadSchedule(ctx context.Context) {
	now := time.Now()
	if o.sched != nil && now.Sub(o.lastCheck) < o.cfg.ReloadCheck {
		return
	}
	o.lastCheck = now

	s, changed, err := o.loader.Reload(o.sched == nil)
	if err != nil {
		o.log.Warn("schedule reload failed",
			logx.String("path", o.cfg.SchedulePath), logx.Err(err))
		if o.journal != nil {
			o.journal.ScheduleReload(ctx, o.cfg.SchedulePath, 0, false, err.Error())
		}
		return
	}
	if !changed {
		return
	}
	o.sched = s
	o.lastShown = ""
	o.pendSkip = false
	requested := s.RequestedIDs()
	o.log.Info("schedule loaded",
		logx.String("path", o.cfg.SchedulePath),
		logx.Int("screens", s.NodeCount()),
		logx.Int("requested", len(requested)),
	)
	if o.requester != nil {
		names := o.catalog.FeedsFor(requested)
		feedNames := make(map[string]struct{}, len(names))
		for n := range names {
			feedNames[n] = struct{}{}
		}
		o.requester.SetRequested(feedNames)
		o.requester.RefreshNow()
	}
	if o.journal != nil {
		o.journal.ScheduleReload(ctx, o.cfg.SchedulePath, s.NodeCount(), true, "")
	}
}

func (o *Orchestrator) healthSnapshot() connectivity.Snapshot {
	if o.health == nil {
		return connectivity.Snapshot{State: connectivity.StateOK}
	}
	return o.health.State()
}

func (o *Orchestrator) enterQuiet() {
	if o.inQuiet {
		return
	}
	o.inQuiet = true
	// The blank wipes whatever is up, alert overlays included; forget the
	// last alert state so a still-degraded link is redrawn after the window.
	o.lastAlert = ""
	o.log.Info("quiet window started; blanking panel")
	if err := o.panel.Blank(); err != nil {
		o.log.Warn("quiet blank failed", logx.Err(err))
	}
}

func (o *Orchestrator) leaveQuiet() {
	if !o.inQuiet {
		return
	}
	o.inQuiet = false
	level := 1.0
	if o.cfg.BacklightLevel != nil {
		level = o.cfg.BacklightLevel()
	}
	if err := o.panel.SetBacklight(level); err != nil {
		o.log.Warn("backlight restore failed", logx.Err(err))
	}
	o.log.Info("quiet window ended", logx.Float64("backlight", level))
}

// showAlert pushes the degraded-connectivity overlay, once per state.
func (o *Orchestrator) showAlert(snap connectivity.Snapshot) {
	if snap.State == o.lastAlert {
		return
	}
	o.lastAlert = snap.State
	w, h := o.panel.Size()
	frame := screens.NoInternetFrame(w, h, snap.SSID)
	if snap.State == connectivity.StateNoWifi {
		frame = screens.NoWifiFrame(w, h)
	}
	if err := o.panel.Push(frame); err != nil {
		o.log.Warn("alert push failed", logx.Err(err))
	}
}

// nextScreen asks the engine for the next id. After a manual skip the
// date/time fillers and the screen just shown are avoided, bounded by the
// node count so a tiny rotation cannot spin forever.
func (o *Orchestrator) nextScreen(reg screens.Registry) (schedule.ScreenID, bool) {
	id, ok := o.sched.Next(reg)
	if !ok || !o.pendSkip {
		o.pendSkip = false
		return id, ok
	}
	o.pendSkip = false

	avoid := screens.SkipAvoidIDs()
	for attempts := 0; attempts <= o.sched.NodeCount(); attempts++ {
		if _, skip := avoid[id]; !skip && id != o.lastShown {
			return id, true
		}
		next, ok := o.sched.Next(reg)
		if !ok {
			break
		}
		id = next
	}
	return id, true
}

func (o *Orchestrator) showScreen(ctx context.Context, reg screens.Registry, id schedule.ScreenID) error {
	def := reg[id]
	if def.Render == nil {
		return fmt.Errorf("screen %q has no render callable", id)
	}

	res, err := renderSafe(def)
	if err != nil {
		return err
	}
	if res == nil {
		res = &screens.RenderResult{}
	}

	if res.Image != nil && !res.Displayed {
		if o.cfg.FadeSteps > 1 {
			err = display.Fade(o.panel, res.Image, o.cfg.FadeSteps, o.cfg.FadeDelay)
		} else {
			err = o.panel.Push(res.Image)
		}
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
	}

	if res.LED != nil {
		if err := o.panel.SetLED(res.LED.R, res.LED.G, res.LED.B); err != nil {
			o.log.Debug("led override failed", logx.Err(err))
		}
	} else {
		_ = o.panel.SetLED(0, 0, 0)
	}

	if o.saver != nil && res.Image != nil {
		if err := o.saver.Save(string(id), res.Image); err != nil {
			o.log.Warn("screenshot save failed",
				logx.String("screen", string(id)), logx.Err(err))
		}
		o.saver.MaybeArchive(ctx)
	}

	o.log.Debug("screen shown", logx.String("screen", string(id)))
	return nil
}

// renderSafe converts a panicking renderer into an error so one broken
// screen cannot take the loop down.
func renderSafe(def screens.Definition) (res *screens.RenderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return def.Render()
}

// wait sleeps up to d, polling for shutdown and (optionally) a pending
// skip at IdlePoll granularity. A consumed skip ends the wait early and
// arms skip-avoid selection for the next tick.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration, allowSkip bool) {
	deadline := time.Now().Add(d)
	for {
		if ctx.Err() != nil {
			return
		}
		if allowSkip && o.skip != nil && o.skip.ConsumeSkip() {
			o.log.Info("manual skip")
			o.pendSkip = true
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		step := o.cfg.IdlePoll
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(step):
		}
	}
}
