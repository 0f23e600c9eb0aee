package buttons

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Button indexes the four front-panel buttons.
type Button int

const (
	BtnA Button = iota
	BtnB
	BtnX
	BtnY
	buttonCount
)

func (b Button) String() string {
	switch b {
	case BtnA:
		return "A"
	case BtnB:
		return "B"
	case BtnX:
		return "X"
	case BtnY:
		return "Y"
	}
	return "?"
}

// LineSource reads the momentary state of all buttons in one pass.
type LineSource interface {
	// Read returns pressed state per button. A read error reports every
	// button released; the poller must not act on it.
	Read() ([buttonCount]bool, error)
	Close() error
}

// gpioSource reads Display HAT Mini buttons. Lines are wired active-low
// with the internal pull-up engaged, so gpio.Low means pressed.
type gpioSource struct {
	pins [buttonCount]gpio.PinIO
}

// OpenGPIO resolves the four named pins (e.g. "GPIO5") and arms their
// pull-ups. periph host.Init must have run already.
func OpenGPIO(a, b, x, y string) (LineSource, error) {
	names := [buttonCount]string{a, b, x, y}
	var s gpioSource
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("button %s: pin name required", Button(i))
		}
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("button %s: no pin %q", Button(i), name)
		}
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("button %s: configure %q: %w", Button(i), name, err)
		}
		s.pins[i] = p
	}
	return &s, nil
}

func (s *gpioSource) Read() ([buttonCount]bool, error) {
	var out [buttonCount]bool
	for i, p := range s.pins {
		out[i] = p.Read() == gpio.Low
	}
	return out, nil
}

func (s *gpioSource) Close() error {
	for _, p := range s.pins {
		_ = p.In(gpio.PullNoChange, gpio.NoEdge)
	}
	return nil
}

// nopSource backs headless runs; it never reports a press.
type nopSource struct{}

func NopSource() LineSource { return nopSource{} }

func (nopSource) Read() ([buttonCount]bool, error) { return [buttonCount]bool{}, nil }
func (nopSource) Close() error                     { return nil }
