package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestParseYAMLConfig(t *testing.T) {
	t.Parallel()
	m := writeConfigFile(t, "config.yaml", `
log:
  level: debug
  console: true
display:
  width: 320
  height: 240
schedule:
  path: screens.json
  dwell: 12s
quiet_hours:
  enabled: true
  start: "23:30"
  end: "06:30"
restart_unit: desk_display.service
`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Console {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Display.Width != 320 || cfg.Display.Height != 240 {
		t.Fatalf("display = %+v", cfg.Display)
	}
	if cfg.Schedule.Path != "screens.json" || cfg.Schedule.Dwell != "12s" {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
	if cfg.QuietHours.Start != "23:30" || cfg.QuietHours.End != "06:30" {
		t.Fatalf("quiet_hours = %+v", cfg.QuietHours)
	}
	if cfg.RestartUnit != "desk_display.service" {
		t.Fatalf("restart_unit = %q", cfg.RestartUnit)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := writeConfigFile(t, "config.yaml", "schedule:\n  path: screens.json\n  dwel: 12s\n")
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParseJSONConfig(t *testing.T) {
	t.Parallel()
	m := writeConfigFile(t, "config.json", `{"schedule": {"path": "screens.json"}}`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Schedule.Path != "screens.json" {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
}

func TestParseDurationFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		def     time.Duration
		want    time.Duration
		wantErr bool
	}{
		{"30s", 0, 30 * time.Second, false},
		{"", 15 * time.Minute, 15 * time.Minute, false},
		{"  2m ", 0, 2 * time.Minute, false},
		{"-5s", 0, 0, true},
		{"soon", 0, 0, true},
	}
	for _, tt := range tests {
		d, err := ParseDurationOrDefault("test.field", tt.raw, tt.def)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDurationOrDefault(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationOrDefault(%q): %v", tt.raw, err)
			continue
		}
		if d != tt.want {
			t.Errorf("ParseDurationOrDefault(%q) = %v, want %v", tt.raw, d, tt.want)
		}
	}
}

func TestParseClockField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"06:30", 6*60 + 30, false},
		{"23:59", 23*60 + 59, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClockField("quiet_hours.start", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseClockField(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClockField(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClockField(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestCommitAndGet(t *testing.T) {
	t.Parallel()
	m := writeConfigFile(t, "config.yaml", "schedule:\n  path: screens.json\n")
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned %p, want %p", got, cfg)
	}
}

func TestSubscribeReceivesCommit(t *testing.T) {
	t.Parallel()
	m := writeConfigFile(t, "config.yaml", "schedule:\n  path: screens.json\n")
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	next := &Config{}
	next.Schedule.Path = "other.json"
	m.Commit(next)
	m.publish(next)

	select {
	case got := <-ch:
		if got.Schedule.Path != "other.json" {
			t.Fatalf("published path = %q", got.Schedule.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("no config published")
	}
}

func TestParseTrailingDataRejected(t *testing.T) {
	t.Parallel()
	body := `{"schedule": {"path": "a.json"}}{"schedule": {"path": "b.json"}}`
	m := writeConfigFile(t, "config.json", body)
	_, err := m.Parse()
	if err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("err = %v, want trailing data error", err)
	}
}
