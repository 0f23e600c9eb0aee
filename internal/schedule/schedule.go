// Package schedule implements the frequency-weighted screen rotation engine.
//
// The engine is pure and deterministic: it performs no I/O and owns no
// clock. Availability is delegated to a per-tick Registry snapshot supplied
// by the caller, because which screens can render depends on data that
// changes between ticks.
package schedule

import (
	"fmt"
)

// ScreenID identifies one renderable content unit ("weather", "travel", ...).
type ScreenID string

// Registry reports which screens can currently render. The caller rebuilds
// it every tick; the engine only consults availability.
type Registry interface {
	Available(id ScreenID) bool
}

// Entry is one configured rotation entry.
//
// Frequency is how many consecutive slots the entry occupies per cycle
// (burst scheduling). Zero disables the entry without removing it from the
// configuration. When Alternate is set, the entry occupies
// Alternate.Frequency slots per cycle: the first shows the primary screen,
// the rest rotate through the alternate list.
type Entry struct {
	Screen    ScreenID
	Frequency int
	Alternate *Alternate
}

type Alternate struct {
	Screens   []ScreenID
	Frequency int
}

// ConfigError reports a malformed schedule configuration. It is fatal to
// Build but recoverable by re-reading the file later.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// node is the engine's internal representation of one enabled entry.
//
// altCursor persists across cycles of the node so alternate rotation
// continues where it left off; posCursor is per-cycle and resets to zero
// each time the node is exhausted.
type node struct {
	primary   ScreenID
	alternate []ScreenID
	period    int

	altCursor int
	posCursor int
}

// Schedule is the rotation state machine: an ordered node list plus a
// cursor. It is not safe for concurrent use; the orchestrator is the only
// caller.
type Schedule struct {
	nodes      []node
	nodeCursor int

	requested   map[ScreenID]struct{}
	totalWeight int
}

// Build validates entries and constructs a fresh Schedule with all cursors
// at zero.
func Build(entries []Entry) (*Schedule, error) {
	if len(entries) == 0 {
		return nil, configErrorf("schedule has no entries")
	}

	s := &Schedule{requested: make(map[ScreenID]struct{})}
	for _, e := range entries {
		if e.Screen == "" {
			return nil, configErrorf("schedule entry with empty screen id")
		}
		if e.Frequency < 0 {
			return nil, configErrorf("screen %q: frequency must be >= 0", e.Screen)
		}
		if e.Alternate != nil {
			if len(e.Alternate.Screens) == 0 {
				return nil, configErrorf("screen %q: alternate screen list is empty", e.Screen)
			}
			if e.Alternate.Frequency < 2 {
				return nil, configErrorf("screen %q: alternate frequency must be >= 2", e.Screen)
			}
			for _, alt := range e.Alternate.Screens {
				if alt == "" {
					return nil, configErrorf("screen %q: alternate with empty screen id", e.Screen)
				}
			}
		}

		if e.Frequency == 0 {
			// Disabled entry: stays in the file for later, never scheduled.
			continue
		}

		n := node{primary: e.Screen, period: e.Frequency}
		if e.Alternate != nil {
			n.alternate = append([]ScreenID(nil), e.Alternate.Screens...)
			n.period = e.Alternate.Frequency
		}
		s.nodes = append(s.nodes, n)
		s.totalWeight += n.period

		s.requested[e.Screen] = struct{}{}
		for _, alt := range n.alternate {
			s.requested[alt] = struct{}{}
		}
	}

	if len(s.nodes) == 0 || s.totalWeight == 0 {
		return nil, configErrorf("schedule has no enabled entries")
	}
	return s, nil
}

// Next advances the engine and returns the next available screen id.
//
// Cursor advances are committed as a side effect of visiting each position,
// so skipping an unavailable candidate never rolls back state. After one
// full sweep of TotalWeight candidate positions with nothing available it
// returns ok=false, leaving the cursors wherever they landed.
func (s *Schedule) Next(reg Registry) (ScreenID, bool) {
	for attempts := 0; attempts < s.totalWeight; attempts++ {
		n := &s.nodes[s.nodeCursor]

		var candidate ScreenID
		if n.posCursor == 0 || len(n.alternate) == 0 {
			candidate = n.primary
		} else {
			candidate = n.alternate[n.altCursor]
			n.altCursor = (n.altCursor + 1) % len(n.alternate)
		}

		n.posCursor++
		if n.posCursor >= n.period {
			n.posCursor = 0
			s.nodeCursor = (s.nodeCursor + 1) % len(s.nodes)
		}

		if reg != nil && reg.Available(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// RequestedIDs returns the set of every primary and alternate screen id in
// the enabled schedule. The data refresher uses it to limit polling to
// feeds a scheduled screen can actually consume.
func (s *Schedule) RequestedIDs() map[ScreenID]struct{} {
	out := make(map[ScreenID]struct{}, len(s.requested))
	for id := range s.requested {
		out[id] = struct{}{}
	}
	return out
}

// TotalWeight is the sum of every node's period: the length of one full
// rotation cycle and the bound on a Next sweep.
func (s *Schedule) TotalWeight() int { return s.totalWeight }

// NodeCount reports how many enabled entries the schedule carries.
func (s *Schedule) NodeCount() int { return len(s.nodes) }
