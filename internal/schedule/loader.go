package schedule

import (
	"os"
	"time"
)

// Loader re-reads the schedule file when its modification time changes and
// builds a fresh Schedule (cursors reset, per the clean-restart contract).
//
// A parse or build failure keeps the previously loaded schedule in place so
// a half-written file never blanks the rotation.
type Loader struct {
	path  string
	known func(ScreenID) bool

	mtime   time.Time
	current *Schedule
}

func NewLoader(path string, known func(ScreenID) bool) *Loader {
	return &Loader{path: path, known: known}
}

// Current returns the last successfully built schedule, or nil before the
// first successful load.
func (l *Loader) Current() *Schedule { return l.current }

// Reload checks the file's mtime and rebuilds the schedule when it changed
// (or when force is set). It reports whether a new schedule was installed.
func (l *Loader) Reload(force bool) (*Schedule, bool, error) {
	st, err := os.Stat(l.path)
	if err != nil {
		if l.current != nil && !force {
			return l.current, false, nil
		}
		return l.current, false, err
	}

	if !force && l.current != nil && st.ModTime().Equal(l.mtime) {
		return l.current, false, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return l.current, false, err
	}
	entries, err := ParseConfig(data, l.known)
	if err != nil {
		return l.current, false, err
	}
	s, err := Build(entries)
	if err != nil {
		return l.current, false, err
	}

	l.current = s
	l.mtime = st.ModTime()
	return s, true, nil
}
