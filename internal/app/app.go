// Package app assembles the daemon: config, logging, storage, the panel,
// the background services and the orchestrator, plus the shutdown
// coordinator that blanks the panel before anything else stops.
package app

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/mrjrask/desk-display/internal/config"
	"github.com/mrjrask/desk-display/internal/display"
	"github.com/mrjrask/desk-display/internal/orchestrator"
	"github.com/mrjrask/desk-display/internal/runtime/supervisor"
	"github.com/mrjrask/desk-display/internal/schedule"
	"github.com/mrjrask/desk-display/internal/screens"
	"github.com/mrjrask/desk-display/internal/screenshot"
	"github.com/mrjrask/desk-display/internal/services/buttons"
	"github.com/mrjrask/desk-display/internal/services/connectivity"
	"github.com/mrjrask/desk-display/internal/services/feeds"
	"github.com/mrjrask/desk-display/internal/storage"
	"github.com/mrjrask/desk-display/pkg/logx"
	"github.com/mrjrask/desk-display/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	panel    display.Panel
	headless bool
	dimmer   *dimmer

	catalog *screens.Catalog
	loader  *schedule.Loader

	journal *storage.Journal
	saver   *screenshot.Saver

	cache   *feeds.Cache
	feeds   *feeds.Service
	monitor *connectivity.Monitor
	btns    *buttons.Controller
	btnSrc  buttons.LineSource

	orch *orchestrator.Orchestrator

	restartUnit string
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:        cfgm,
		log:         log,
		logs:        logs,
		restartUnit: cfg.RestartUnit,
	}

	// Storage (optional).
	journal, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.journal = journal
	if journal != nil {
		log.Info("event journal enabled", logx.String("path", cfg.Storage.Path))
	}

	// Panel: real hardware unless headless, degrading to headless when the
	// hardware refuses to come up so the loops still run.
	a.headless = cfg.Display.Headless
	if !a.headless {
		panel, err := display.OpenST7789(mapHardwareConfig(cfg))
		if err != nil {
			log.Error("display init failed; running headless", logx.Err(err))
			a.headless = true
		} else {
			a.panel = panel
		}
	}
	if a.panel == nil {
		w, h := cfg.Display.Width, cfg.Display.Height
		if w <= 0 {
			w = 320
		}
		if h <= 0 {
			h = 240
		}
		a.panel = display.NewHeadless(w, h)
	}

	level := cfg.Display.Backlight
	if level <= 0 {
		level = 1
	}
	a.dimmer = newDimmer(level)
	if err := a.panel.SetBacklight(level); err != nil {
		log.Warn("initial backlight failed", logx.Err(err))
	}

	// Screens + schedule.
	a.catalog = screens.NewCatalog()
	screens.RegisterBuiltins(a.catalog)
	a.loader = schedule.NewLoader(cfg.Schedule.Path, a.catalog.Known)

	// Feeds.
	a.cache = feeds.NewCache()
	feedsCfg, err := mapFeedsConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.feeds, err = feeds.NewService(feedsCfg, log.With(logx.String("comp", "feeds")),
		a.cache, builtinFeeds())
	if err != nil {
		return nil, err
	}

	// Connectivity monitor.
	if cfg.Connectivity.Enabled {
		connCfg, err := mapConnectivityConfig(cfg)
		if err != nil {
			return nil, err
		}
		a.monitor = connectivity.New(connCfg,
			log.With(logx.String("comp", "connectivity")), journal)
	}

	// Screenshots.
	if cfg.Screenshots.Enabled {
		a.saver, err = screenshot.NewSaver(mapScreenshotConfig(cfg),
			log.With(logx.String("comp", "screenshot")), journal)
		if err != nil {
			return nil, err
		}
	}

	// Orchestrator.
	orchCfg, err := mapOrchestratorConfig(cfg)
	if err != nil {
		return nil, err
	}
	orchCfg.BacklightLevel = a.dimmer.level
	a.orch = orchestrator.New(orchCfg, log.With(logx.String("comp", "orchestrator")),
		a.panel, a.loader, a.catalog, a.cache)
	if a.monitor != nil {
		a.orch.SetHealthSource(a.monitor)
	}
	a.orch.SetFeedRequester(a.feeds)
	a.orch.SetSaver(a.saver)
	if journal != nil {
		a.orch.SetReloadRecorder(journal)
	}

	// Buttons.
	if cfg.Buttons.Enabled {
		btnCfg, err := mapButtonsConfig(cfg)
		if err != nil {
			return nil, err
		}
		src := buttons.LineSource(buttons.NopSource())
		if !a.headless {
			gsrc, err := buttons.OpenGPIO(cfg.Buttons.Pins.A, cfg.Buttons.Pins.B,
				cfg.Buttons.Pins.X, cfg.Buttons.Pins.Y)
			if err != nil {
				log.Error("button gpio init failed; buttons inert", logx.Err(err))
			} else {
				src = gsrc
			}
		}
		a.btnSrc = src
		a.btns = buttons.New(btnCfg, log.With(logx.String("comp", "buttons")), src,
			buttons.Actions{
				Restart:    a.requestRestart,
				Brightness: a.stepBrightness,
			})
		a.orch.SetSkipSource(a.btns)
	}

	return a, nil
}

// Start launches every loop under the supervisor. Background services
// restart with backoff; an orchestrator failure cancels the whole app.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig)

	a.sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	})

	if a.monitor != nil {
		a.sup.GoRestart("connectivity.monitor", a.monitor.Run)
	}
	a.sup.GoRestart("feeds.refresh", a.feeds.Run)
	if a.btns != nil {
		a.sup.GoRestart("buttons.poll", a.btns.Run)
	}

	a.sup.Go("orchestrator", a.orch.Run)

	a.log.Info("started", logx.Bool("headless", a.headless))
	return nil
}

// applyReload handles hot config changes. Only logging re-applies live;
// structural sections (display, storage, services) need a restart, which
// the Y button or systemd provides.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	})
	a.log.Info("config reloaded; logging applied, structural changes need restart")
}

// Done closes when the supervisor context ends (fatal error or cancel).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop is the shutdown coordinator. The panel is blanked FIRST so the
// device never sits frozen on stale content, then every loop gets a
// bounded window to unwind.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	a.orch.BlankPanel()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		start := time.Now()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			} else {
				a.log.Debug("stop step done", logx.String("name", name),
					logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("supervisor", 5*time.Second, a.sup.Wait)
	if a.btnSrc != nil {
		step("buttons", time.Second, func(context.Context) error { return a.btnSrc.Close() })
	}
	step("panel", 2*time.Second, func(context.Context) error { return a.panel.Close() })
	step("storage", time.Second, func(context.Context) error { return a.journal.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

// requestRestart is the Y button's intent: blank, then let systemd bring
// the service back up. Without a unit configured the process just exits
// and relies on Restart=always.
func (a *App) requestRestart() {
	a.log.Info("restart requested")
	a.orch.BlankPanel()
	if a.restartUnit != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := systemd.Restart(ctx, a.restartUnit); err != nil {
			a.log.Error("unit restart failed", logx.String("unit", a.restartUnit), logx.Err(err))
		}
	}
	if a.sup != nil {
		a.sup.Cancel()
	}
}

func (a *App) stepBrightness(delta float64) {
	level := a.dimmer.step(delta)
	if err := a.panel.SetBacklight(level); err != nil {
		a.log.Warn("backlight change failed", logx.Err(err))
		return
	}
	a.log.Info("backlight", logx.Float64("level", level))
}

// builtinFeeds lists the data sources compiled into the daemon. External
// deployments add screens (and their feeds) here.
func builtinFeeds() []feeds.Feed {
	return []feeds.Feed{
		{Name: screens.FeedSysinfo, Fetch: screens.CollectSysinfo, Timeout: 5 * time.Second},
	}
}

// dimmer holds the user-adjusted backlight level, shared between the
// button controller (writer) and the orchestrator (reader, for restoring
// brightness after a quiet window).
type dimmer struct {
	bits atomic.Uint64
}

func newDimmer(level float64) *dimmer {
	d := &dimmer{}
	d.bits.Store(math.Float64bits(clamp01(level)))
	return d
}

func (d *dimmer) level() float64 { return math.Float64frombits(d.bits.Load()) }

func (d *dimmer) step(delta float64) float64 {
	for {
		old := d.bits.Load()
		next := clamp01(math.Float64frombits(old) + delta)
		if d.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
