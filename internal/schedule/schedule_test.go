package schedule

import (
	"errors"
	"reflect"
	"testing"
)

// fakeRegistry marks every id available except those in down.
type fakeRegistry struct {
	down map[ScreenID]bool
}

func (r fakeRegistry) Available(id ScreenID) bool { return !r.down[id] }

func allUp() fakeRegistry { return fakeRegistry{} }

func collect(t *testing.T, s *Schedule, reg Registry, n int) []ScreenID {
	t.Helper()
	out := make([]ScreenID, 0, n)
	for i := 0; i < n; i++ {
		id, ok := s.Next(reg)
		if !ok {
			t.Fatalf("Next returned no screen at slot %d (got %v so far)", i, out)
		}
		out = append(out, id)
	}
	return out
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		entries []Entry
	}{
		{name: "empty", entries: nil},
		{name: "negative frequency", entries: []Entry{{Screen: "a", Frequency: -1}}},
		{name: "all zero weight", entries: []Entry{{Screen: "a", Frequency: 0}, {Screen: "b", Frequency: 0}}},
		{name: "alternate frequency too low", entries: []Entry{
			{Screen: "a", Frequency: 1, Alternate: &Alternate{Screens: []ScreenID{"x"}, Frequency: 1}},
		}},
		{name: "empty alternate list", entries: []Entry{
			{Screen: "a", Frequency: 1, Alternate: &Alternate{Frequency: 2}},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.entries)
			if err == nil {
				t.Fatalf("Build(%v) succeeded, want ConfigError", tt.entries)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Build error = %T, want *ConfigError", err)
			}
		})
	}
}

func TestBurstOrderWithinOneCycle(t *testing.T) {
	t.Parallel()
	s, err := Build([]Entry{
		{Screen: "a", Frequency: 1},
		{Screen: "b", Frequency: 2},
		{Screen: "c", Frequency: 3},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.TotalWeight() != 6 {
		t.Fatalf("TotalWeight = %d, want 6", s.TotalWeight())
	}

	got := collect(t, s, allUp(), 6)
	want := []ScreenID{"a", "b", "b", "c", "c", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cycle = %v, want %v", got, want)
	}
}

func TestAlternatingPair(t *testing.T) {
	t.Parallel()
	s, err := Build([]Entry{{Screen: "a", Frequency: 1}, {Screen: "b", Frequency: 1}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := collect(t, s, allUp(), 6)
	want := []ScreenID{"a", "b", "a", "b", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
}

func TestWeightedPair(t *testing.T) {
	t.Parallel()
	s, err := Build([]Entry{{Screen: "a", Frequency: 1}, {Screen: "b", Frequency: 2}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := collect(t, s, allUp(), 6)
	want := []ScreenID{"a", "b", "b", "a", "b", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
}

func TestAlternateRotationPersistsAcrossCycles(t *testing.T) {
	t.Parallel()
	s, err := Build([]Entry{
		{Screen: "a", Frequency: 1, Alternate: &Alternate{Screens: []ScreenID{"x", "y"}, Frequency: 2}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := collect(t, s, allUp(), 6)
	want := []ScreenID{"a", "x", "a", "y", "a", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
}

func TestAlternateRunShape(t *testing.T) {
	t.Parallel()
	// Period 3 with two alternates: one primary slot then two alternate
	// slots per run, rotation advancing once per non-primary slot.
	s, err := Build([]Entry{
		{Screen: "a", Frequency: 1, Alternate: &Alternate{Screens: []ScreenID{"x", "y", "z"}, Frequency: 3}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := collect(t, s, allUp(), 9)
	want := []ScreenID{"a", "x", "y", "a", "z", "x", "a", "y", "z"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
}

func TestZeroFrequencyEntryIsSkipped(t *testing.T) {
	t.Parallel()
	s, err := Build([]Entry{
		{Screen: "a", Frequency: 1},
		{Screen: "off", Frequency: 0},
		{Screen: "b", Frequency: 1},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.NodeCount() != 2 {
		t.Fatalf("NodeCount = %d, want 2", s.NodeCount())
	}
	got := collect(t, s, allUp(), 4)
	for _, id := range got {
		if id == "off" {
			t.Fatalf("disabled screen appeared in output: %v", got)
		}
	}
	if _, ok := s.RequestedIDs()["off"]; ok {
		t.Fatalf("disabled screen should not be in requested ids")
	}
}

func TestUnavailableScreensAreSkipped(t *testing.T) {
	t.Parallel()
	s, err := Build([]Entry{{Screen: "a", Frequency: 2}, {Screen: "b", Frequency: 1}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	reg := fakeRegistry{down: map[ScreenID]bool{"a": true}}
	for i := 0; i < 4; i++ {
		id, ok := s.Next(reg)
		if !ok {
			t.Fatalf("Next exhausted with b still available")
		}
		if id != "b" {
			t.Fatalf("Next = %q, want b", id)
		}
	}
}

func TestNextReturnsFalseWhenNothingAvailable(t *testing.T) {
	t.Parallel()
	s, err := Build([]Entry{{Screen: "a", Frequency: 3}, {Screen: "b", Frequency: 2}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	reg := fakeRegistry{down: map[ScreenID]bool{"a": true, "b": true}}
	if id, ok := s.Next(reg); ok {
		t.Fatalf("Next = %q, want no screen", id)
	}
	// The sweep must not loop forever and must leave the engine usable.
	got, ok := s.Next(allUp())
	if !ok || got == "" {
		t.Fatalf("engine unusable after exhausted sweep")
	}
}

func TestRequestedIDsIncludeAlternates(t *testing.T) {
	t.Parallel()
	s, err := Build([]Entry{
		{Screen: "a", Frequency: 1, Alternate: &Alternate{Screens: []ScreenID{"x", "y"}, Frequency: 2}},
		{Screen: "b", Frequency: 1},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ids := s.RequestedIDs()
	for _, want := range []ScreenID{"a", "b", "x", "y"} {
		if _, ok := ids[want]; !ok {
			t.Fatalf("RequestedIDs missing %q: %v", want, ids)
		}
	}
}

func TestFrequencyCountsOverOneWindow(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		{Screen: "a", Frequency: 4},
		{Screen: "b", Frequency: 1},
		{Screen: "c", Frequency: 2},
	}
	s, err := Build(entries)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	window := collect(t, s, allUp(), s.TotalWeight())
	counts := map[ScreenID]int{}
	for _, id := range window {
		counts[id]++
	}
	want := map[ScreenID]int{"a": 4, "b": 1, "c": 2}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
}
