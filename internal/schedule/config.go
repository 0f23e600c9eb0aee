package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// The on-disk shape is a "screens" object mapping screen id to either a
// bare frequency or an object with an optional alternate block:
//
//	{"screens": {
//	    "travel": 4,
//	    "date":   {"frequency": 1, "alt": {"screen": ["time", "vrnof"], "frequency": 2}}
//	}}
//
// "alt.screen" accepts a single id or a list. Entry order in the file is
// the rotation order, so parsing walks the object with a token decoder
// instead of unmarshaling into a Go map.

type rawEntry struct {
	Frequency *int    `json:"frequency"`
	Alt       *rawAlt `json:"alt"`
}

type rawAlt struct {
	Screen    json.RawMessage `json:"screen"`
	Frequency int             `json:"frequency"`
}

// ParseConfig decodes a schedule file into ordered entries. known reports
// whether a screen id exists in the catalog; ids failing it are rejected.
func ParseConfig(data []byte, known func(ScreenID) bool) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, configErrorf("schedule configuration must be a JSON object")
	}

	var entries []Entry
	seenScreens := false
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, configErrorf("schedule parse: %v", err)
		}
		key, _ := keyTok.(string)
		if key != "screens" {
			return nil, configErrorf("unknown top-level key %q", key)
		}
		seenScreens = true
		entries, err = parseScreens(dec, known)
		if err != nil {
			return nil, err
		}
	}
	if !seenScreens {
		return nil, configErrorf("configuration must provide a non-empty 'screens' mapping")
	}
	return entries, nil
}

func parseScreens(dec *json.Decoder, known func(ScreenID) bool) ([]Entry, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, configErrorf("'screens' must be an object")
	}

	var entries []Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, configErrorf("schedule parse: %v", err)
		}
		id, _ := keyTok.(string)
		if id == "" {
			return nil, configErrorf("screen identifiers must be non-empty strings")
		}
		if known != nil && !known(ScreenID(id)) {
			return nil, configErrorf("unknown screen id %q", id)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, configErrorf("screen %q: %v", id, err)
		}
		e, err := parseEntry(ScreenID(id), raw, known)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return nil, configErrorf("schedule parse: %v", err)
	}
	if len(entries) == 0 {
		return nil, configErrorf("configuration must provide a non-empty 'screens' mapping")
	}
	return entries, nil
}

func parseEntry(id ScreenID, raw json.RawMessage, known func(ScreenID) bool) (Entry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		// Bare frequency form.
		var freq int
		if err := json.Unmarshal(trimmed, &freq); err != nil {
			return Entry{}, configErrorf("frequency for %q must be an integer", id)
		}
		return Entry{Screen: id, Frequency: freq}, nil
	}

	var re rawEntry
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&re); err != nil {
		return Entry{}, configErrorf("screen %q: %v", id, err)
	}
	if re.Frequency == nil {
		return Entry{}, configErrorf("frequency for %q must be provided", id)
	}

	e := Entry{Screen: id, Frequency: *re.Frequency}
	if re.Alt != nil {
		screens, err := parseAltScreens(id, re.Alt.Screen, known)
		if err != nil {
			return Entry{}, err
		}
		e.Alternate = &Alternate{Screens: screens, Frequency: re.Alt.Frequency}
	}
	return e, nil
}

// parseAltScreens accepts "alt.screen" as a single id or a list of ids.
func parseAltScreens(owner ScreenID, raw json.RawMessage, known func(ScreenID) bool) ([]ScreenID, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, configErrorf("alternate screen id for %q must be provided", owner)
	}

	var ids []string
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, configErrorf("alternate screens for %q must be strings", owner)
		}
	} else {
		var one string
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, configErrorf("alternate screen id for %q must be a string", owner)
		}
		ids = []string{one}
	}

	out := make([]ScreenID, 0, len(ids))
	for _, s := range ids {
		if s == "" {
			return nil, configErrorf("alternate screen id for %q must be non-empty", owner)
		}
		if known != nil && !known(ScreenID(s)) {
			return nil, configErrorf("unknown alternate screen id %q for %q", s, owner)
		}
		out = append(out, ScreenID(s))
	}
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("unexpected end of input")
		}
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || d != want {
		return fmt.Errorf("expected %q", want)
	}
	return nil
}
