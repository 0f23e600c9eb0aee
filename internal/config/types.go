package config

// Config is the full on-disk configuration for the desk-display daemon.
//
// The file may be JSON or YAML; YAML is coerced to JSON before a strict
// decode, so unknown keys are rejected in both formats. The screen rotation
// schedule lives in its own file (Schedule.Path) because it is edited far
// more often than the rest and is hot-reloaded independently.
type Config struct {
	Log          LogConfig          `json:"log"`
	Display      DisplayConfig      `json:"display"`
	Schedule     ScheduleConfig     `json:"schedule"`
	QuietHours   QuietHoursConfig   `json:"quiet_hours"`
	Connectivity ConnectivityConfig `json:"connectivity"`
	Feeds        FeedsConfig        `json:"feeds"`
	Buttons      ButtonsConfig      `json:"buttons"`
	Screenshots  ScreenshotsConfig  `json:"screenshots"`
	Storage      StorageConfig      `json:"storage"`

	// RestartUnit is the systemd unit restarted by the Y button.
	RestartUnit string `json:"restart_unit"`
}

type LogConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type DisplayConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Headless disables all hardware access; frames are rendered but only
	// kept in memory (and screenshotted when enabled).
	Headless bool `json:"headless"`

	SPIPort      string `json:"spi_port"`
	DCPin        string `json:"dc_pin"`
	ResetPin     string `json:"reset_pin"`
	BacklightPin string `json:"backlight_pin"`
	LEDPins      struct {
		R string `json:"r"`
		G string `json:"g"`
		B string `json:"b"`
	} `json:"led_pins"`
	Rotation int `json:"rotation"`

	// Backlight is the initial backlight level in [0,1].
	Backlight float64 `json:"backlight"`
}

type ScheduleConfig struct {
	// Path of the screens schedule file (JSON map of screen id -> frequency).
	Path string `json:"path"`
	// ReloadCheck is the minimum interval between modification-time checks
	// of the schedule file.
	ReloadCheck string `json:"reload_check"`
	// Dwell is how long each screen stays up before the next tick.
	Dwell string `json:"dwell"`
}

type QuietHoursConfig struct {
	Enabled bool `json:"enabled"`
	// Start/End are local wall-clock "HH:MM". A window may span midnight.
	Start string `json:"start"`
	End   string `json:"end"`
}

type ConnectivityConfig struct {
	Enabled bool `json:"enabled"`
	// Interface overrides wireless interface auto-detection.
	Interface string `json:"interface"`
	// ProbeHosts are "host:port" endpoints for the TCP reachability probe.
	ProbeHosts   []string `json:"probe_hosts"`
	ProbeTimeout string   `json:"probe_timeout"`
	// CheckInterval is the poll cadence while healthy.
	CheckInterval string `json:"check_interval"`
	// RetryInterval is the cool-down after a repair attempt.
	RetryInterval string `json:"retry_interval"`
	// MaxFailures is the consecutive-failure threshold before repair.
	MaxFailures int `json:"max_failures"`
	// SpeedtestAfterRecovery runs one bounded speedtest when the link
	// returns to ok after an outage and logs the measured throughput.
	SpeedtestAfterRecovery bool `json:"speedtest_after_recovery"`
}

type FeedsConfig struct {
	// StartupDelay postpones the first background refresh sweep so the
	// first frames are not competing with a burst of fetches.
	StartupDelay string `json:"startup_delay"`
	// Tick is how often the refresher evaluates which feeds are due.
	Tick string `json:"tick"`
	// Intervals maps feed name -> refresh spec. A spec is either a Go
	// duration ("10m") or a standard 5-field cron expression ("0 6 * * *").
	Intervals map[string]string `json:"intervals"`
}

type ButtonsConfig struct {
	Enabled      bool   `json:"enabled"`
	PollInterval string `json:"poll_interval"`
	// BrightnessStep is applied per A/B press, clamped to [0,1].
	BrightnessStep float64 `json:"brightness_step"`
	Pins           struct {
		A string `json:"a"`
		B string `json:"b"`
		X string `json:"x"`
		Y string `json:"y"`
	} `json:"pins"`
}

type ScreenshotsConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
	// ArchiveThreshold is the live-image count that triggers a batch
	// archive sweep into dated folders.
	ArchiveThreshold int `json:"archive_threshold"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
