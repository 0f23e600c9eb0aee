package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func bufLogger(buf *bytes.Buffer) Logger {
	return Logger{base: zerolog.New(buf), hasBase: true}
}

func countLines(buf *bytes.Buffer) int {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return 0
	}
	return len(strings.Split(s, "\n"))
}

func TestThrottleSuppressesRepeats(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	th := NewThrottle(bufLogger(&buf), 0.01)

	for i := 0; i < 5; i++ {
		th.Warn("probe", "probe failed")
	}
	if got := countLines(&buf); got != 1 {
		t.Fatalf("lines = %d, want 1\n%s", got, buf.String())
	}
}

func TestThrottleFoldsSuppressedCount(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	th := NewThrottle(bufLogger(&buf), 0.01)

	th.Warn("probe", "probe failed")
	th.Warn("probe", "probe failed")
	th.Warn("probe", "probe failed")

	// Refill the key so the next line is allowed and carries the count.
	th.mu.Lock()
	th.keys["probe"].lim.SetLimit(rate.Inf)
	th.mu.Unlock()

	th.Warn("probe", "probe failed")
	out := buf.String()
	if !strings.Contains(out, `"suppressed":2`) {
		t.Fatalf("output missing suppressed count:\n%s", out)
	}
	if got := countLines(&buf); got != 2 {
		t.Fatalf("lines = %d, want 2\n%s", got, out)
	}
}

func TestThrottleKeysAreIndependent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	th := NewThrottle(bufLogger(&buf), 0.01)

	th.Warn("dns", "dns failed")
	th.Error("route", "route missing")
	if got := countLines(&buf); got != 2 {
		t.Fatalf("lines = %d, want 2\n%s", got, buf.String())
	}
	out := buf.String()
	if !strings.Contains(out, "dns failed") || !strings.Contains(out, "route missing") {
		t.Fatalf("missing per-key lines:\n%s", out)
	}
}

func TestThrottleNilSafe(t *testing.T) {
	t.Parallel()
	var th *Throttle
	th.Warn("k", "msg")
	th.Error("k", "msg")
}
