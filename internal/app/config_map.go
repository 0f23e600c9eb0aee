package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mrjrask/desk-display/internal/config"
	"github.com/mrjrask/desk-display/internal/display"
	"github.com/mrjrask/desk-display/internal/orchestrator"
	"github.com/mrjrask/desk-display/internal/screenshot"
	"github.com/mrjrask/desk-display/internal/services/buttons"
	"github.com/mrjrask/desk-display/internal/services/connectivity"
	"github.com/mrjrask/desk-display/internal/services/feeds"
	"github.com/mrjrask/desk-display/internal/storage"
)

// The map* helpers translate the raw on-disk config into per-service
// configs. Each one parses and validates; the config validator calls them
// all so a broken hot-reload never commits.

func mapConnectivityConfig(cfg *config.Config) (connectivity.Config, error) {
	c := cfg.Connectivity
	probeTimeout, err := config.ParseDurationOrDefault("connectivity.probe_timeout", c.ProbeTimeout, 2*time.Second)
	if err != nil {
		return connectivity.Config{}, err
	}
	checkInterval, err := config.ParseDurationOrDefault("connectivity.check_interval", c.CheckInterval, 15*time.Second)
	if err != nil {
		return connectivity.Config{}, err
	}
	retryInterval, err := config.ParseDurationOrDefault("connectivity.retry_interval", c.RetryInterval, time.Minute)
	if err != nil {
		return connectivity.Config{}, err
	}
	if c.MaxFailures < 0 {
		return connectivity.Config{}, fmt.Errorf("connectivity.max_failures must be >= 0")
	}
	for _, h := range c.ProbeHosts {
		if _, _, err := net.SplitHostPort(h); err != nil {
			return connectivity.Config{}, fmt.Errorf("connectivity.probe_hosts: %q is not host:port", h)
		}
	}
	return connectivity.Config{
		Interface:              c.Interface,
		ProbeHosts:             c.ProbeHosts,
		ProbeTimeout:           probeTimeout,
		CheckInterval:          checkInterval,
		RetryInterval:          retryInterval,
		MaxFailures:            c.MaxFailures,
		SpeedtestAfterRecovery: c.SpeedtestAfterRecovery,
	}, nil
}

func mapFeedsConfig(cfg *config.Config) (feeds.Config, error) {
	f := cfg.Feeds
	startupDelay, err := config.ParseDurationOrDefault("feeds.startup_delay", f.StartupDelay, 10*time.Second)
	if err != nil {
		return feeds.Config{}, err
	}
	tick, err := config.ParseDurationOrDefault("feeds.tick", f.Tick, 5*time.Second)
	if err != nil {
		return feeds.Config{}, err
	}
	for name, raw := range f.Intervals {
		if err := feeds.ValidateSpec(raw); err != nil {
			return feeds.Config{}, fmt.Errorf("feeds.intervals[%s]: %w", name, err)
		}
	}
	return feeds.Config{
		StartupDelay: startupDelay,
		Tick:         tick,
		Intervals:    f.Intervals,
	}, nil
}

func mapButtonsConfig(cfg *config.Config) (buttons.Config, error) {
	b := cfg.Buttons
	poll, err := config.ParseDurationOrDefault("buttons.poll_interval", b.PollInterval, 100*time.Millisecond)
	if err != nil {
		return buttons.Config{}, err
	}
	if b.BrightnessStep < 0 || b.BrightnessStep > 1 {
		return buttons.Config{}, fmt.Errorf("buttons.brightness_step must be in [0,1]")
	}
	return buttons.Config{
		PollInterval:   poll,
		BrightnessStep: b.BrightnessStep,
	}, nil
}

func mapOrchestratorConfig(cfg *config.Config) (orchestrator.Config, error) {
	dwell, err := config.ParseDurationOrDefault("schedule.dwell", cfg.Schedule.Dwell, 12*time.Second)
	if err != nil {
		return orchestrator.Config{}, err
	}
	reloadCheck, err := config.ParseDurationOrDefault("schedule.reload_check", cfg.Schedule.ReloadCheck, 2*time.Second)
	if err != nil {
		return orchestrator.Config{}, err
	}

	quiet := orchestrator.QuietWindow{Enabled: cfg.QuietHours.Enabled}
	if quiet.Enabled {
		start, err := config.ParseClockField("quiet_hours.start", cfg.QuietHours.Start)
		if err != nil {
			return orchestrator.Config{}, err
		}
		end, err := config.ParseClockField("quiet_hours.end", cfg.QuietHours.End)
		if err != nil {
			return orchestrator.Config{}, err
		}
		quiet.StartMin, quiet.EndMin = start, end
	}

	fadeSteps := 0
	if !cfg.Display.Headless {
		fadeSteps = 6
	}
	return orchestrator.Config{
		Dwell:        dwell,
		ReloadCheck:  reloadCheck,
		Quiet:        quiet,
		SchedulePath: cfg.Schedule.Path,
		FadeSteps:    fadeSteps,
	}, nil
}

func mapHardwareConfig(cfg *config.Config) display.HardwareConfig {
	d := cfg.Display
	return display.HardwareConfig{
		Width:        d.Width,
		Height:       d.Height,
		Rotation:     d.Rotation,
		SPIPort:      d.SPIPort,
		DCPin:        d.DCPin,
		ResetPin:     d.ResetPin,
		BacklightPin: d.BacklightPin,
		LEDRPin:      d.LEDPins.R,
		LEDGPin:      d.LEDPins.G,
		LEDBPin:      d.LEDPins.B,
	}
}

func mapScreenshotConfig(cfg *config.Config) screenshot.Config {
	return screenshot.Config{
		Dir:              cfg.Screenshots.Dir,
		ArchiveThreshold: cfg.Screenshots.ArchiveThreshold,
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Enabled: cfg.Storage.Enabled,
		Path:    cfg.Storage.Path,
	}
}

// validateConfig is the transactional reload gate: every section must map
// cleanly or the new config is rejected and the old one stays live.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if cfg.Schedule.Path == "" {
		return fmt.Errorf("schedule.path is required")
	}
	if cfg.Display.Backlight < 0 || cfg.Display.Backlight > 1 {
		return fmt.Errorf("display.backlight must be in [0,1]")
	}
	if _, err := mapOrchestratorConfig(cfg); err != nil {
		return err
	}
	if _, err := mapConnectivityConfig(cfg); err != nil {
		return err
	}
	if _, err := mapFeedsConfig(cfg); err != nil {
		return err
	}
	if _, err := mapButtonsConfig(cfg); err != nil {
		return err
	}
	if cfg.Storage.Enabled && cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required when storage is enabled")
	}
	if cfg.Screenshots.Enabled && cfg.Screenshots.Dir == "" {
		return fmt.Errorf("screenshots.dir is required when screenshots are enabled")
	}
	return nil
}
